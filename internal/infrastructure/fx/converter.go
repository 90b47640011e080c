// Package fx maintains the USDT->USD conversion rate used by adapters that
// quote in USDT.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Coinbase spot quote endpoint; returns {"data":{"amount":"1.0001"}}.
	DefaultURL     = "https://api.coinbase.com/v2/prices/USDT-USD/spot"
	DefaultRefresh = 10 * time.Second
)

// Converter refreshes the rate on a fixed interval. A failed refresh keeps
// the last known-good rate (stale beats absent); the rate is reported
// unavailable only before the first successful fetch.
type Converter struct {
	url    string
	every  time.Duration
	client *http.Client

	mu   sync.RWMutex
	rate float64
	ok   bool
}

func New(url string, every time.Duration) *Converter {
	if url == "" {
		url = DefaultURL
	}
	if every <= 0 {
		every = DefaultRefresh
	}
	return &Converter{
		url:    url,
		every:  every,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Rate returns the current conversion rate. ok is false only before the
// first successful fetch.
func (c *Converter) Rate() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.ok
}

// Run fetches immediately, then on every tick, until ctx is cancelled.
func (c *Converter) Run(ctx context.Context) error {
	c.refresh(ctx)

	ticker := time.NewTicker(c.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

type quoteResp struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

func (c *Converter) refresh(ctx context.Context) {
	rate, err := c.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("unit rate refresh failed, keeping last value")
		}
		return
	}

	c.mu.Lock()
	c.rate = rate
	c.ok = true
	c.mu.Unlock()
}

func (c *Converter) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unit rate: unexpected status %d", resp.StatusCode)
	}

	var body quoteResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(body.Data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("unit rate: bad amount %q: %w", body.Data.Amount, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("unit rate: non-positive rate %v", rate)
	}
	return rate, nil
}
