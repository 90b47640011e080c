package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pricedeck/internal/application/port"
)

type Repo struct {
	rdb          *redis.Client
	keyLatest    string // prefix + ":latest", hash keyed "SOURCE:SYMBOL"
	sampleStream string // prefix + ":samples"
	ttl          time.Duration
}

type LatestPrice struct {
	Source string  `json:"source"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Ts     int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	if prefix == "" {
		prefix = "pricedeck"
	}
	return &Repo{
		rdb:          rdb,
		keyLatest:    prefix + ":latest",
		sampleStream: prefix + ":samples",
		ttl:          ttl,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, source, symbol string, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	lp := LatestPrice{Source: source, Symbol: symbol, Price: price, Ts: ts}
	b, _ := json.Marshal(lp)

	field := fmt.Sprintf("%s:%s", source, symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertSample(ctx context.Context, source, symbol string, price float64, ts int64) error {
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.sampleStream,
		MaxLen: 100000,
		Approx: true,
		Values: map[string]any{
			"source": source,
			"symbol": symbol,
			"price":  price,
			"ts_ms":  ts,
		},
	}).Result()
	return err
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
