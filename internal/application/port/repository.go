package port

import "context"

// Repository persists aggregate updates outside the process. Implementations
// are best-effort collaborators; the core never blocks on them.
type Repository interface {
	UpsertLatestPrice(ctx context.Context, source, symbol string, price float64, ts int64) error
	InsertSample(ctx context.Context, source, symbol string, price float64, ts int64) error
	Close() error
}
