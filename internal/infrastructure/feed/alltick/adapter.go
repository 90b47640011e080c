// Package alltick consumes the AllTick multiplexed forex/equity stream. The
// protocol is command-id based: subscriptions for last-trade ticks and
// level-1 depth, acks carrying a ret code, and a mandatory 10s heartbeat
// without which the server drops the connection. Access is token-gated.
package alltick

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://quote.alltick.io/quote-stock-b-ws-api"

const (
	cmdHeartbeat    = 22000
	cmdSubDepth     = 22002
	cmdSubTick      = 22004
	cmdPushTick     = 22998
	cmdPushDepth    = 22999
	heartbeatEvery  = 10 * time.Second
	depthLevelBest  = 1
)

var symbolCodes = feed.MustCodes(domain.SourceAllTick, map[domain.Symbol]string{
	domain.SymbolEURUSD: "EURUSD",
	domain.SymbolGBPUSD: "GBPUSD",
	domain.SymbolAAPL:   "AAPL.US",
	domain.SymbolTSLA:   "TSLA.US",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:       domain.SourceAllTick,
		Categories:   []domain.Category{domain.CategoryForex, domain.CategoryEquity},
		DefaultURL:   wsURL,
		RequiresAuth: true,
		URL: func(base string, d feed.Deps) string {
			sep := "?"
			if strings.Contains(base, "?") {
				sep = "&"
			}
			return base + sep + "token=" + d.Token
		},
		Supports: func(sym domain.Symbol) bool {
			_, ok := symbolCodes[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, code: symbolCodes[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	code      string
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourceAllTick }

type symbolEntry struct {
	Code       string `json:"code"`
	DepthLevel int    `json:"depth_level,omitempty"`
}

type subReq struct {
	CmdID int    `json:"cmd_id"`
	SeqID int    `json:"seq_id"`
	Trace string `json:"trace"`
	Data  struct {
		SymbolList []symbolEntry `json:"symbol_list"`
	} `json:"data"`
}

type heartbeatReq struct {
	CmdID int            `json:"cmd_id"`
	SeqID int            `json:"seq_id"`
	Trace string         `json:"trace"`
	Data  map[string]any `json:"data"`
}

// OnOpen subscribes to last-trade ticks and best bid/ask depth for the
// active symbol. Both run on the same connection (multiplexed pushes).
func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false

	tick := subReq{CmdID: cmdSubTick, SeqID: 1, Trace: uuid.NewString()}
	tick.Data.SymbolList = []symbolEntry{{Code: a.code}}
	if err := send(tick); err != nil {
		return err
	}

	depth := subReq{CmdID: cmdSubDepth, SeqID: 2, Trace: uuid.NewString()}
	depth.Data.SymbolList = []symbolEntry{{Code: a.code, DepthLevel: depthLevelBest}}
	return send(depth)
}

func (a *Adapter) HeartbeatEvery() time.Duration { return heartbeatEvery }

func (a *Adapter) Heartbeat(send port.SendFunc) error {
	return send(heartbeatReq{
		CmdID: cmdHeartbeat,
		SeqID: 1,
		Trace: uuid.NewString(),
		Data:  map[string]any{},
	})
}

type depthEntry struct {
	Price string `json:"price"`
}

type pushMsg struct {
	CmdID int  `json:"cmd_id"`
	Ret   *int `json:"ret,omitempty"` // acks only
	Data  struct {
		Code     string       `json:"code"`
		TickTime string       `json:"tick_time"`
		Price    string       `json:"price"`
		Bids     []depthEntry `json:"bids"`
		Asks     []depthEntry `json:"asks"`
	} `json:"data"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg pushMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "alltick").Err(err).Msg("frame dropped")
		return
	}

	// Subscription or heartbeat ack.
	if msg.Ret != nil {
		a.confirmed = true
		return
	}

	switch msg.CmdID {
	case cmdPushTick:
		if msg.Data.Code != a.code {
			return
		}
		price, err := strconv.ParseFloat(msg.Data.Price, 64)
		if err != nil || price <= 0 {
			return
		}
		a.deps.Emit(a.deps.Symbol, domain.PriceSample{Price: price, Ts: a.tickTs(msg.Data.TickTime)})

	case cmdPushDepth:
		if msg.Data.Code != a.code {
			return
		}
		if len(msg.Data.Bids) == 0 || len(msg.Data.Asks) == 0 {
			return
		}
		bid, err1 := strconv.ParseFloat(msg.Data.Bids[0].Price, 64)
		ask, err2 := strconv.ParseFloat(msg.Data.Asks[0].Price, 64)
		if err1 != nil || err2 != nil {
			return
		}
		a.deps.Emit(a.deps.Symbol, domain.PriceSample{Price: (bid + ask) / 2, Ts: a.tickTs(msg.Data.TickTime)})
	}
}

func (a *Adapter) tickTs(raw string) int64 {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil && ts > 0 {
		return ts
	}
	return time.Now().UnixMilli()
}
