package unlock

import (
	"log/slog"
	"time"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRevalidation controls whether a cached session is checked before a
// matching PIN admits the user. Enabled by default.
func WithRevalidation(enabled bool) Option {
	return func(c *Controller) {
		c.revalidate = enabled
	}
}

// WithMaxAttempts clears the gate after n consecutive incorrect PINs,
// forcing primary login. Zero, the default, means no limit.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n < 0 {
			n = 0
		}
		c.maxAttempts = n
	}
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}
