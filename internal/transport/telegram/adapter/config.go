package adapter

import "time"

const defaultAPIURL = "https://api.telegram.org"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// ReactionsPerRow caps reaction buttons per keyboard row (default 3).
	ReactionsPerRow int
	// APIURL overrides the Bot API endpoint.
	APIURL string
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.ReactionsPerRow <= 0 {
		c.ReactionsPerRow = 3
	}
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	return c
}
