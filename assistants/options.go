package assistants

import (
	"time"

	"github.com/effective-security/opsdash/pkg/llms"
)

// Option is a function that can be used to modify the behavior of the Orchestrator.
type Option func(*Config)

// Config of the Orchestrator.
type Config struct {
	// MaxToolRounds limits the tool rounds of a run.
	// The model is offered tools while rounds remain.
	MaxToolRounds int
	// Callback is optional.
	Callback Callback
	// Location is used for the current date in the system prompt.
	Location *time.Location
	// Now returns the current time.
	Now func() time.Time
	// CallOptions are added to every model call.
	CallOptions []llms.CallOption
}

// NewConfig returns the configuration with defaults applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxToolRounds: DefaultMaxToolRounds,
		Location:      time.UTC,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	return cfg
}

// WithMaxToolRounds sets the number of tool rounds.
func WithMaxToolRounds(n int) Option {
	return func(c *Config) {
		c.MaxToolRounds = n
	}
}

// WithCallback sets the callback.
func WithCallback(cb Callback) Option {
	return func(c *Config) {
		c.Callback = cb
	}
}

// WithLocation sets the location of the current date.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		if loc != nil {
			c.Location = loc
		}
	}
}

// WithClock sets the current time provider.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithCallOptions adds the model call options.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *Config) {
		c.CallOptions = append(c.CallOptions, opts...)
	}
}
