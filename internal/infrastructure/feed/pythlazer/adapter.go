// Package pythlazer consumes the Lazer real-time stream. Prices are 8-decimal
// fixed-point integers; access is gated on a bearer token.
package pythlazer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://pyth-lazer.dourolabs.app/v1/stream"

// priceScale: raw integer price carries 8 decimal places.
const priceScale = 1e8

const subscriptionID = 1

var feedIDs = map[domain.Symbol]int{
	domain.SymbolBTCUSDT: 1,
	domain.SymbolETHUSDT: 2,
	domain.SymbolTSLA:    1435,
}

func init() {
	codes := make(map[domain.Symbol]string, len(feedIDs))
	for sym, id := range feedIDs {
		codes[sym] = strconv.Itoa(id)
	}
	feed.MustCodes(domain.SourcePythLazer, codes)

	feed.Register(feed.Descriptor{
		Source:       domain.SourcePythLazer,
		Categories:   []domain.Category{domain.CategoryCrypto, domain.CategoryEquity},
		DefaultURL:   wsURL,
		Coalesce:     true,
		RequiresAuth: true,
		Header: func(d feed.Deps) http.Header {
			h := http.Header{}
			h.Set("Authorization", "Bearer "+d.Token)
			return h
		},
		Supports: func(sym domain.Symbol) bool {
			_, ok := feedIDs[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, feedID: feedIDs[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	feedID    int
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourcePythLazer }

type subReq struct {
	SubscriptionID int      `json:"subscriptionId"`
	Type           string   `json:"type"`
	PriceFeedIDs   []int    `json:"priceFeedIds"`
	Properties     []string `json:"properties"`
	Chains         []string `json:"chains"`
	Channel        string   `json:"channel"`
}

func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false
	return send(subReq{
		SubscriptionID: subscriptionID,
		Type:           "subscribe",
		PriceFeedIDs:   []int{a.feedID},
		Properties:     []string{"price"},
		Chains:         []string{},
		Channel:        "real_time",
	})
}

type streamMsg struct {
	Type           string `json:"type"`
	SubscriptionID int    `json:"subscriptionId"`
	Parsed         struct {
		TimestampUs string `json:"timestampUs"`
		PriceFeeds  []struct {
			PriceFeedID int    `json:"priceFeedId"`
			Price       string `json:"price"`
		} `json:"priceFeeds"`
	} `json:"parsed"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg streamMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "pythlazer").Err(err).Msg("frame dropped")
		return
	}

	switch msg.Type {
	case "subscribed":
		a.confirmed = true
		return
	case "streamUpdated":
	default:
		return
	}
	if msg.SubscriptionID != subscriptionID || len(msg.Parsed.PriceFeeds) == 0 {
		return
	}

	pf := msg.Parsed.PriceFeeds[0]
	if pf.PriceFeedID != a.feedID {
		return
	}
	rawPrice, err := strconv.ParseFloat(pf.Price, 64)
	if err != nil || rawPrice <= 0 {
		return
	}

	ts := time.Now().UnixMilli()
	if us, err := strconv.ParseInt(msg.Parsed.TimestampUs, 10, 64); err == nil && us > 0 {
		ts = us / 1000
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{
		Price: rawPrice / priceScale,
		Ts:    ts,
	})
}
