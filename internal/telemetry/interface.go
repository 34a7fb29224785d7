package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/housemon/internal/record"
)

// Mirror copies new records into the database. It is a consumer.Handler.
type Mirror interface {
	Name() string
	Handle(ctx context.Context, records []record.AveragedRecord) error
	Close() error
}

// Repository defines the interface for record storage
type Repository interface {
	// Latest returns the newest stored timestamp; ok is false when the
	// table is empty.
	Latest(ctx context.Context) (ts time.Time, ok bool, err error)
	Insert(ctx context.Context, records []record.AveragedRecord) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
