package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pricedeck/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(source, symbol)
);
CREATE INDEX IF NOT EXISTS idx_latest_symbol ON latest_prices(symbol);

CREATE TABLE IF NOT EXISTS samples (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts_ms);
CREATE INDEX IF NOT EXISTS idx_samples_key ON samples(source, symbol);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, source, symbol string, price float64, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO latest_prices(source, symbol, price, ts_ms, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(source, symbol) DO UPDATE SET
  price = excluded.price,
  ts_ms = excluded.ts_ms,
  updated_at = excluded.updated_at
`, source, symbol, price, ts, now)
	return err
}

func (r *Repo) InsertSample(ctx context.Context, source, symbol string, price float64, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO samples(source, symbol, price, ts_ms, created_at)
VALUES(?, ?, ?, ?, ?)
`, source, symbol, price, ts, now)
	return err
}

// GetLatestPrice reads one latest price back; used by tooling and tests.
func (r *Repo) GetLatestPrice(ctx context.Context, source, symbol string) (price float64, ts int64, err error) {
	row := r.db.QueryRowContext(ctx, `
SELECT price, ts_ms FROM latest_prices WHERE source = ? AND symbol = ?
`, source, symbol)
	err = row.Scan(&price, &ts)
	return price, ts, err
}

var _ port.Repository = (*Repo)(nil)
