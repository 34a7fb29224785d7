// Package telemetry mirrors the record log into SQLite.
package telemetry

import (
	"context"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/record"
)

type service struct {
	repo Repository
	cfg  Config
	log  logger.Logger
}

func NewService(cfg Config) (Mirror, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	log := logger.For("telemetry")

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{repo: repo, cfg: cfg, log: log}, nil
}

func (*service) Name() string {
	return "telemetry"
}

// Handle inserts the records newer than the newest mirrored row.
func (s *service) Handle(ctx context.Context, records []record.AveragedRecord) error {
	errFactory := errors.New()

	latest, ok, err := s.repo.Latest(ctx)
	if err != nil {
		return errFactory.Wrap(ErrMirror, err)
	}

	pending := records
	if ok {
		pending = pending[:0:0]
		for _, rec := range records {
			if rec.Timestamp.Unix() > latest.Unix() {
				pending = append(pending, rec)
			}
		}
	}

	if len(pending) == 0 {
		return nil
	}

	inserted, err := s.repo.Insert(ctx, pending)
	if err != nil {
		return errFactory.Wrap(ErrMirror, err)
	}

	s.log.Debug().
		Int("pending", len(pending)).
		Int("inserted", inserted).
		Msg("Records mirrored")

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}
