package ticker

import (
	"context"

	"pricedeck/internal/application/port"
)

// NoopRepo discards everything; the default when no storage is configured.
type NoopRepo struct{}

func NewNoopRepo() *NoopRepo { return &NoopRepo{} }

func (NoopRepo) UpsertLatestPrice(ctx context.Context, source, symbol string, price float64, ts int64) error {
	return nil
}

func (NoopRepo) InsertSample(ctx context.Context, source, symbol string, price float64, ts int64) error {
	return nil
}

func (NoopRepo) Close() error { return nil }

var _ port.Repository = (*NoopRepo)(nil)
