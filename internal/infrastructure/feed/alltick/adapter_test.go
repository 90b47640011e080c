package alltick

import (
	"encoding/json"
	"testing"

	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

func newTestAdapter(sym domain.Symbol, emitted *[]domain.PriceSample) *Adapter {
	return &Adapter{
		deps: feed.Deps{
			Symbol: sym,
			Emit: func(s domain.Symbol, p domain.PriceSample) {
				*emitted = append(*emitted, p)
			},
		},
		code: symbolCodes[sym],
	}
}

func TestTickPush(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolEURUSD, &emitted)

	a.OnMessage([]byte(`{
		"cmd_id":22998,
		"data":{"code":"EURUSD","price":"1.08543","tick_time":"1700000000000"}
	}`))

	if len(emitted) != 1 {
		t.Fatalf("emitted %d samples, want 1", len(emitted))
	}
	if emitted[0].Price != 1.08543 {
		t.Errorf("price = %v, want 1.08543", emitted[0].Price)
	}
	if emitted[0].Ts != 1700000000000 {
		t.Errorf("ts = %v, want tick_time", emitted[0].Ts)
	}
}

func TestDepthPushQuotesMid(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolAAPL, &emitted)

	a.OnMessage([]byte(`{
		"cmd_id":22999,
		"data":{"code":"AAPL.US","tick_time":"1700000000000",
			"bids":[{"price":"230.10"}],"asks":[{"price":"230.30"}]}
	}`))

	if len(emitted) != 1 {
		t.Fatalf("emitted %d samples, want 1", len(emitted))
	}
	if emitted[0].Price != 230.2 {
		t.Errorf("price = %v, want mid 230.2", emitted[0].Price)
	}
}

func TestAckCarriesNoPrice(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolEURUSD, &emitted)

	a.OnMessage([]byte(`{"cmd_id":22005,"ret":200,"msg":"ok"}`))

	if !a.confirmed {
		t.Error("ack did not mark the subscription confirmed")
	}
	if len(emitted) != 0 {
		t.Errorf("ack emitted %d samples, want 0", len(emitted))
	}
}

func TestIgnoresForeignCodes(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolEURUSD, &emitted)

	a.OnMessage([]byte(`{"cmd_id":22998,"data":{"code":"GBPUSD","price":"1.27","tick_time":"1"}}`))

	if len(emitted) != 0 {
		t.Fatalf("emitted %d samples for foreign code, want 0", len(emitted))
	}
}

func TestSubscribeFramesCarryTraceAndCode(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolGBPUSD, &emitted)

	var sent []subReq
	err := a.OnOpen(func(v any) error {
		sent = append(sent, v.(subReq))
		return nil
	})
	if err != nil {
		t.Fatalf("OnOpen: %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("OnOpen sent %d frames, want tick + depth", len(sent))
	}
	if sent[0].CmdID != cmdSubTick || sent[1].CmdID != cmdSubDepth {
		t.Errorf("cmd ids = %d,%d", sent[0].CmdID, sent[1].CmdID)
	}
	for i, req := range sent {
		if req.Trace == "" {
			t.Errorf("frame %d missing trace id", i)
		}
		if len(req.Data.SymbolList) != 1 || req.Data.SymbolList[0].Code != "GBPUSD" {
			t.Errorf("frame %d symbol list = %+v", i, req.Data.SymbolList)
		}
	}
	if sent[1].Data.SymbolList[0].DepthLevel != depthLevelBest {
		t.Errorf("depth subscription level = %d, want %d", sent[1].Data.SymbolList[0].DepthLevel, depthLevelBest)
	}
}

func TestHeartbeatFrame(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(domain.SymbolEURUSD, &emitted)

	if a.HeartbeatEvery() != heartbeatEvery {
		t.Errorf("heartbeat interval = %v", a.HeartbeatEvery())
	}

	var sent heartbeatReq
	err := a.Heartbeat(func(v any) error {
		sent = v.(heartbeatReq)
		return nil
	})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if sent.CmdID != cmdHeartbeat {
		t.Errorf("cmd id = %d, want %d", sent.CmdID, cmdHeartbeat)
	}
	if sent.Trace == "" {
		t.Error("heartbeat missing trace id")
	}

	// Must serialize with an object (not null) data field.
	b, err := json.Marshal(sent)
	if err != nil {
		t.Fatal(err)
	}
	var round map[string]any
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatal(err)
	}
	if _, ok := round["data"].(map[string]any); !ok {
		t.Errorf("heartbeat data field = %v, want object", round["data"])
	}
}
