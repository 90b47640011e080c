package domain

import (
	"fmt"
	"strings"
)

// Source identifies one upstream feed.
type Source string

const (
	SourceBinance   Source = "BINANCE"
	SourceBybit     Source = "BYBIT"
	SourceOKX       Source = "OKX"
	SourceCoinbase  Source = "COINBASE"
	SourceAllTick   Source = "ALLTICK"
	SourcePyth      Source = "PYTH"
	SourcePythLazer Source = "PYTHLAZER"
)

// Category classifies an instrument; it decides which sources can serve it.
type Category int

const (
	CategoryCrypto Category = iota
	CategoryForex
	CategoryEquity
)

func (c Category) String() string {
	switch c {
	case CategoryCrypto:
		return "crypto"
	case CategoryForex:
		return "forex"
	case CategoryEquity:
		return "equity"
	default:
		return "unknown"
	}
}

// Symbol is the internal instrument code. Vendor-specific codes live in the
// per-adapter mapping tables.
type Symbol string

const (
	SymbolBTCUSDT Symbol = "BTCUSDT"
	SymbolETHUSDT Symbol = "ETHUSDT"
	SymbolEURUSD  Symbol = "EURUSD"
	SymbolGBPUSD  Symbol = "GBPUSD"
	SymbolAAPL    Symbol = "AAPL"
	SymbolTSLA    Symbol = "TSLA"
)

var symbolCategories = map[Symbol]Category{
	SymbolBTCUSDT: CategoryCrypto,
	SymbolETHUSDT: CategoryCrypto,
	SymbolEURUSD:  CategoryForex,
	SymbolGBPUSD:  CategoryForex,
	SymbolAAPL:    CategoryEquity,
	SymbolTSLA:    CategoryEquity,
}

func (s Symbol) Category() Category {
	return symbolCategories[s]
}

// Known reports whether s is one of the supported instruments.
func (s Symbol) Known() bool {
	_, ok := symbolCategories[s]
	return ok
}

// ParseSymbol normalizes user/config input into a Symbol.
func ParseSymbol(raw string) (Symbol, error) {
	s := Symbol(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Known() {
		return "", fmt.Errorf("unknown symbol: %q", raw)
	}
	return s, nil
}

// Symbols returns the supported instrument set in a stable order.
func Symbols() []Symbol {
	return []Symbol{
		SymbolBTCUSDT, SymbolETHUSDT,
		SymbolEURUSD, SymbolGBPUSD,
		SymbolAAPL, SymbolTSLA,
	}
}

// SourceKey is the unit of aggregation: one feed quoting one instrument.
type SourceKey struct {
	Source Source
	Symbol Symbol
}

func (k SourceKey) String() string {
	return string(k.Source) + ":" + string(k.Symbol)
}
