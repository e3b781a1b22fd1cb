package chatclient

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	logger         zerolog.Logger
	spawn          func(func())
	now            func() time.Time
	receiptTimeout time.Duration
}

// Option tunes a state container.
type Option func(*options)

// WithLogger sets the logger used for background failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSpawn replaces the goroutine launcher used for read receipts. Tests pass
// a synchronous runner.
func WithSpawn(spawn func(func())) Option {
	return func(o *options) { o.spawn = spawn }
}

// WithClock replaces time.Now for optimistic timestamps and temp ids.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(component string, opts []Option) options {
	o := options{
		logger:         zerolog.Nop(),
		spawn:          func(fn func()) { go fn() },
		now:            time.Now,
		receiptTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With().Str("component", component).Logger()
	return o
}
