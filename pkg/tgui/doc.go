// Package tgui holds the Telegram rendering helpers: HTML-safe text, the
// message builder used for command replies, callback data and the reaction
// keyboard that stands in for readable reactions.
package tgui
