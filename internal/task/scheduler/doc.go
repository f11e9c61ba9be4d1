// Package scheduler turns wall-clock schedules (cron, daily, weekly, one-shot)
// into tasks on the engine. It never runs jobs itself.
//
// Every schedule has a stable name. Registering a name again replaces the
// previous definition, and Trigger runs a named schedule on demand while
// sharing its overlap state with the timed runs.
package scheduler
