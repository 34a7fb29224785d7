// Package poller runs the read, average, append, notify cycle.
package poller

import (
	"sync/atomic"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/history"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/notify"
	"codeberg.org/mutker/housemon/internal/record"
	"codeberg.org/mutker/housemon/internal/sensor"
	"codeberg.org/mutker/housemon/internal/shutdown"
)

// State is the position of the loop in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateNotifying
	StateWaiting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateNotifying:
		return "notifying"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Appender is the write side of the record store.
type Appender interface {
	Append(record.AveragedRecord) error
}

// Config holds the loop parameters.
type Config struct {
	Pin   int
	Delay time.Duration
	// MaxCycles stops the loop after that many cycles, failed reads
	// included. Zero means unlimited.
	MaxCycles int
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Source   sensor.Source
	Store    Appender
	Window   *history.Window
	Shutdown *shutdown.Controller
	Notifier *notify.Notifier
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock replaces time.Now as the source of record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) {
		l.clock = clock
	}
}

// WithLogger replaces the default component logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// Loop is the single producer of records.
type Loop struct {
	cfg  Config
	deps Deps

	clock func() time.Time
	log   logger.Logger

	state    atomic.Int32
	cycles   atomic.Int64
	appended atomic.Int64
}

// New validates cfg and deps and returns an idle Loop.
func New(cfg Config, deps Deps, opts ...Option) (*Loop, error) {
	errFactory := errors.New()

	if cfg.Delay <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidDelay, cfg.Delay)
	}
	if cfg.MaxCycles < 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "count must not be negative")
	}
	if deps.Source == nil || deps.Store == nil || deps.Window == nil ||
		deps.Shutdown == nil || deps.Notifier == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "poller: missing dependency")
	}

	l := &Loop{
		cfg:   cfg,
		deps:  deps,
		clock: time.Now,
		log:   logger.For("poller"),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Run cycles until the shutdown flag is set, MaxCycles is reached, or an
// append fails. Sensor failures are logged and skipped. The returned error
// is non-nil only for append failures.
func (l *Loop) Run() error {
	defer l.setState(StateStopped)

	l.log.Info().
		Int("pin", l.cfg.Pin).
		Dur("delay", l.cfg.Delay).
		Int("window", l.deps.Window.Cap()).
		Int("max_cycles", l.cfg.MaxCycles).
		Msg("Poll loop started")

	for {
		if l.deps.Shutdown.IsSet() {
			l.log.Info().Msg("Poll loop stopped")
			return nil
		}

		l.setState(StatePolling)
		if err := l.cycle(); err != nil {
			return err
		}

		cycles := l.cycles.Add(1)
		if l.cfg.MaxCycles > 0 && cycles >= int64(l.cfg.MaxCycles) {
			l.log.Info().Int64("cycles", cycles).Msg("Cycle limit reached")
			return nil
		}

		l.setState(StateWaiting)
		if l.deps.Shutdown.Wait(l.cfg.Delay) {
			l.log.Info().Msg("Poll loop stopped")
			return nil
		}
	}
}

func (l *Loop) cycle() error {
	reading, err := l.deps.Source.Read(l.cfg.Pin)
	if err != nil {
		l.log.Warn().
			Int("pin", l.cfg.Pin).
			Str("sensor", l.deps.Source.Name()).
			Err(err).
			Msg("Failed to read sensor, skipping cycle")
		return nil
	}

	reading.Timestamp = l.clock()
	avgTemperature, avgHumidity := l.deps.Window.Push(reading.Temperature, reading.Humidity)
	rec := record.NewAveragedRecord(reading, avgTemperature, avgHumidity)

	if err := l.deps.Store.Append(rec); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			l.log.ErrorWithCode(appErr).Msg("Failed to append record")
		} else {
			l.log.Error().Err(err).Msg("Failed to append record")
		}
		return err
	}
	l.appended.Add(1)

	l.log.Info().
		Float64("temperature", rec.Temperature).
		Float64("humidity", rec.Humidity).
		Float64("avg_temperature", rec.AvgTemperature).
		Float64("avg_humidity", rec.AvgHumidity).
		Int("samples", l.deps.Window.Len()).
		Msg("")

	l.setState(StateNotifying)
	l.deps.Notifier.Notify()

	return nil
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Cycles returns the number of completed cycles, failed reads included.
func (l *Loop) Cycles() int {
	return int(l.cycles.Load())
}

// Appended returns the number of records written.
func (l *Loop) Appended() int {
	return int(l.appended.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}
