package domain

// PriceSample is one normalized price observation produced by a feed adapter.
// Immutable after creation; owned by the aggregate store once recorded.
type PriceSample struct {
	Price float64
	Ts    int64 // unix ms, source clock when the feed provides one
}

// PriceMetric is the derived "latest value + delta" state for one SourceKey.
type PriceMetric struct {
	Price         float64
	Change        float64
	ChangePercent float64
	Ts            int64
}

// MetricAfter computes the metric this sample produces given the previous
// latest price for the same key. On the first sample the previous price is
// the sample itself, so change and percent are zero.
func (s PriceSample) MetricAfter(prev float64, hasPrev bool) PriceMetric {
	previous := s.Price
	if hasPrev {
		previous = prev
	}
	change := s.Price - previous
	pct := 0.0
	if previous > 0 {
		pct = change / previous * 100
	}
	return PriceMetric{
		Price:         s.Price,
		Change:        change,
		ChangePercent: pct,
		Ts:            s.Ts,
	}
}
