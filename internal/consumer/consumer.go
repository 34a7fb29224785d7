// Package consumer runs the observer side of the record pipeline: wait for
// a notification, re-read the record file, hand the rows to a Handler.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/notify"
	"codeberg.org/mutker/housemon/internal/record"
	"codeberg.org/mutker/housemon/internal/shutdown"
)

// DefaultInterval bounds how long a consumer sleeps between checks.
const DefaultInterval = time.Second

// Handler processes the full set of records after a change.
type Handler interface {
	Name() string
	Handle(ctx context.Context, records []record.AveragedRecord) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithInterval sets the notification wait timeout.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// Runner drives one Handler.
type Runner struct {
	path     string
	handler  Handler
	notifier *notify.Notifier
	stop     *shutdown.Controller
	interval time.Duration
	log      logger.Logger

	// mu serializes passes between Run and Drain.
	mu      sync.Mutex
	last    record.Version
	handled bool
	passes  atomic.Int64
}

// New returns a Runner watching the record file at path.
func New(path string, handler Handler, notifier *notify.Notifier, stop *shutdown.Controller, opts ...Option) *Runner {
	r := &Runner{
		path:     path,
		handler:  handler,
		notifier: notifier,
		stop:     stop,
		interval: DefaultInterval,
		log:      logger.For("consumer." + handler.Name()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until the shutdown flag is set or ctx ends. Each wake, whether
// by notification or by timeout, re-checks the record file; the handler
// runs when notified or when the file changed since the last pass, so a
// notification issued while the runner was busy is picked up within one
// interval.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := r.stop.Context(ctx)
	defer cancel()

	r.log.Debug().Str("path", r.path).Dur("interval", r.interval).Msg("Consumer started")

	for {
		if r.stop.IsSet() || ctx.Err() != nil {
			r.log.Debug().Msg("Consumer stopped")
			return nil
		}

		notified := r.notifier.Wait(ctx, r.interval)

		if r.stop.IsSet() || ctx.Err() != nil {
			r.log.Debug().Msg("Consumer stopped")
			return nil
		}

		r.check(ctx, notified)
	}
}

// Drain runs one final pass if the record file changed since the last
// one. The caller drains after the producer has finished and before it
// sets the shutdown flag, so the last records reach the handler.
func (r *Runner) Drain(ctx context.Context) {
	r.check(ctx, false)
}

func (r *Runner) check(ctx context.Context, notified bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := record.Stat(r.path)
	if err != nil {
		r.log.Debug().Err(err).Str("path", r.path).Msg("Record file unavailable")
		return
	}

	if !notified && r.handled && version.Equal(r.last) {
		return
	}

	records, err := record.Load(r.path)
	if err != nil {
		r.log.Warn().Err(err).Str("path", r.path).Msg("Failed to load records")
		return
	}

	r.last = version
	r.handled = true
	r.passes.Add(1)

	if err := r.handler.Handle(ctx, records); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			r.log.ErrorWithCode(appErr).Int("records", len(records)).Msg("Handler failed")
			return
		}
		r.log.Error().Err(err).Int("records", len(records)).Msg("Handler failed")
	}
}

// Passes returns how many times the handler has been invoked.
func (r *Runner) Passes() int {
	return int(r.passes.Load())
}

// Name returns the handler name.
func (r *Runner) Name() string {
	return r.handler.Name()
}
