// Package okx streams the best-bid/offer channel (bbo-tbt) and quotes the
// mid price. Prices arrive in USDT and are converted to USD.
package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://ws.okx.com:8443/ws/v5/public"

// 交易对映射：内部符号 -> OKX instId
var symbolCodes = feed.MustCodes(domain.SourceOKX, map[domain.Symbol]string{
	domain.SymbolBTCUSDT: "BTC-USDT",
	domain.SymbolETHUSDT: "ETH-USDT",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:     domain.SourceOKX,
		Categories: []domain.Category{domain.CategoryCrypto},
		DefaultURL: wsURL,
		Coalesce:   true,
		Supports: func(sym domain.Symbol) bool {
			_, ok := symbolCodes[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, instID: symbolCodes[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	instID    string
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourceOKX }

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subReq struct {
	Op   string   `json:"op"`
	Args []subArg `json:"args"`
}

func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false
	return send(subReq{
		Op:   "subscribe",
		Args: []subArg{{Channel: "bbo-tbt", InstID: a.instID}},
	})
}

type bboMsg struct {
	Event string `json:"event,omitempty"` // "subscribe" ack / "error"
	Arg   subArg `json:"arg"`
	Data  []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg bboMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "okx").Err(err).Msg("frame dropped")
		return
	}

	if msg.Event == "subscribe" {
		a.confirmed = true
		return
	}
	if msg.Arg.Channel != "bbo-tbt" || msg.Arg.InstID != a.instID || len(msg.Data) == 0 {
		return
	}

	tick := msg.Data[0]
	if len(tick.Bids) == 0 || len(tick.Asks) == 0 ||
		len(tick.Bids[0]) == 0 || len(tick.Asks[0]) == 0 {
		return
	}
	bid, err1 := strconv.ParseFloat(tick.Bids[0][0], 64)
	ask, err2 := strconv.ParseFloat(tick.Asks[0][0], 64)
	if err1 != nil || err2 != nil {
		return
	}
	rate, ok := a.deps.Rate.Rate()
	if !ok {
		return
	}

	ts, err := strconv.ParseInt(tick.Ts, 10, 64)
	if err != nil || ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{
		Price: (bid + ask) / 2 * rate,
		Ts:    ts,
	})
}
