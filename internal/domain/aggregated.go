package domain

import "github.com/shopspring/decimal"

// AggregatedPosition is one asset merged across all partitions.
type AggregatedPosition struct {
	Asset     string                        `json:"asset"`
	AmountSum decimal.Decimal               `json:"amount"`
	HoldsSum  decimal.Decimal               `json:"holds"`
	TotalSum  decimal.Decimal               `json:"balance"`
	ByAccount map[Partition]decimal.Decimal `json:"accounts"`
}

// NewAggregatedPosition creates an empty accumulator for asset.
func NewAggregatedPosition(asset string) *AggregatedPosition {
	return &AggregatedPosition{
		Asset:     asset,
		AmountSum: decimal.Zero,
		HoldsSum:  decimal.Zero,
		TotalSum:  decimal.Zero,
		ByAccount: make(map[Partition]decimal.Decimal),
	}
}

// Add merges a record of the same asset into the position.
// The per-account breakdown tracks totals, matching what gets reconciled.
func (p *AggregatedPosition) Add(r BalanceRecord) {
	p.AmountSum = p.AmountSum.Add(r.Available)
	p.HoldsSum = p.HoldsSum.Add(r.Holds)
	p.TotalSum = p.TotalSum.Add(r.Total)
	p.ByAccount[r.Partition] = p.ByAccount[r.Partition].Add(r.Total)
}

// Empty reports whether the position holds nothing.
func (p AggregatedPosition) Empty() bool {
	return !p.TotalSum.IsPositive() && !p.HoldsSum.IsPositive() && !p.AmountSum.IsPositive()
}
