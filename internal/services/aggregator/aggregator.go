// Package aggregator merges per-partition balances into one position per asset.
package aggregator

import (
	"sort"

	"github.com/vadiminshakov/coinbook/internal/domain"
)

// Aggregate groups records by exact asset symbol in a single pass and drops empty positions.
// Output follows first-seen asset order; callers that rank must sort explicitly.
func Aggregate(records []domain.BalanceRecord) []domain.AggregatedPosition {
	if len(records) == 0 {
		return []domain.AggregatedPosition{}
	}

	bySymbol := make(map[string]*domain.AggregatedPosition)
	order := make([]string, 0)
	for _, r := range records {
		p, ok := bySymbol[r.Asset]
		if !ok {
			p = domain.NewAggregatedPosition(r.Asset)
			bySymbol[r.Asset] = p
			order = append(order, r.Asset)
		}
		p.Add(r)
	}

	out := make([]domain.AggregatedPosition, 0, len(order))
	for _, asset := range order {
		p := bySymbol[asset]
		if p.Empty() {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// SortByTotal returns a copy sorted by TotalSum descending. Ties keep input order.
func SortByTotal(positions []domain.AggregatedPosition) []domain.AggregatedPosition {
	sorted := append([]domain.AggregatedPosition(nil), positions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalSum.GreaterThan(sorted[j].TotalSum)
	})
	return sorted
}
