package aggregator

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/coinbook/internal/domain"
)

func rec(asset, available, holds, total string, p domain.Partition) domain.BalanceRecord {
	return domain.BalanceRecord{
		Asset:     asset,
		Available: decimal.RequireFromString(available),
		Holds:     decimal.RequireFromString(holds),
		Total:     decimal.RequireFromString(total),
		Partition: p,
	}
}

func TestAggregateExample(t *testing.T) {
	out := Aggregate([]domain.BalanceRecord{
		rec("BTC", "1.0", "0.5", "1.5", domain.PartitionMain),
		rec("BTC", "0.2", "0", "0.2", domain.PartitionTrade),
	})

	require.Len(t, out, 1)
	p := out[0]
	assert.Equal(t, "BTC", p.Asset)
	assert.True(t, p.AmountSum.Equal(decimal.RequireFromString("1.2")), p.AmountSum.String())
	assert.True(t, p.HoldsSum.Equal(decimal.RequireFromString("0.5")), p.HoldsSum.String())
	assert.True(t, p.TotalSum.Equal(decimal.RequireFromString("1.7")), p.TotalSum.String())
	require.Len(t, p.ByAccount, 2)
	assert.True(t, p.ByAccount[domain.PartitionMain].Equal(decimal.RequireFromString("1.5")))
	assert.True(t, p.ByAccount[domain.PartitionTrade].Equal(decimal.RequireFromString("0.2")))
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.NotNil(t, Aggregate([]domain.BalanceRecord{}))
}

func TestAggregateDust(t *testing.T) {
	tests := []struct {
		name     string
		records  []domain.BalanceRecord
		retained bool
	}{
		{name: "all zero dropped", records: []domain.BalanceRecord{rec("DOGE", "0", "0", "0", domain.PartitionMain)}},
		{name: "tiny balance retained", records: []domain.BalanceRecord{rec("DOGE", "0", "0", "0.0001", domain.PartitionMain)}, retained: true},
		{name: "holds only retained", records: []domain.BalanceRecord{rec("DOGE", "0", "3", "0", domain.PartitionTrade)}, retained: true},
		{
			name: "zero in every partition dropped",
			records: []domain.BalanceRecord{
				rec("XRP", "0", "0", "0", domain.PartitionMain),
				rec("XRP", "0", "0", "0", domain.PartitionTrade),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Aggregate(tt.records)
			if tt.retained {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestAggregateByAccountUsesTotal(t *testing.T) {
	out := Aggregate([]domain.BalanceRecord{
		rec("ETH", "1", "2", "3", domain.PartitionMain),
		rec("ETH", "1", "0", "1", domain.PartitionMain),
	})

	require.Len(t, out, 1)
	require.Len(t, out[0].ByAccount, 1)
	assert.True(t, out[0].ByAccount[domain.PartitionMain].Equal(decimal.NewFromInt(4)))
}

func TestAggregateOrderIndependent(t *testing.T) {
	records := []domain.BalanceRecord{
		rec("BTC", "0.1", "0.01", "0.11", domain.PartitionMain),
		rec("ETH", "1.3", "0", "1.3", domain.PartitionTrade),
		rec("BTC", "0.2", "0.02", "0.22", domain.PartitionTrade),
		rec("USDT", "10.7", "5.3", "16", domain.PartitionMain),
		rec("ETH", "0.7", "0.3", "1", domain.PartitionMain),
		rec("BTC", "0.3", "0", "0.3", domain.PartitionMain),
	}
	want := index(Aggregate(records))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.BalanceRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := index(Aggregate(shuffled))
		require.Len(t, got, len(want))
		for asset, w := range want {
			g := got[asset]
			assert.True(t, w.AmountSum.Equal(g.AmountSum), asset)
			assert.True(t, w.HoldsSum.Equal(g.HoldsSum), asset)
			assert.True(t, w.TotalSum.Equal(g.TotalSum), asset)
			for p, v := range w.ByAccount {
				assert.True(t, v.Equal(g.ByAccount[p]), asset)
			}
		}
	}
}

func TestAggregateCaseSensitive(t *testing.T) {
	out := Aggregate([]domain.BalanceRecord{
		rec("usdt", "1", "0", "1", domain.PartitionMain),
		rec("USDT", "1", "0", "1", domain.PartitionMain),
	})
	assert.Len(t, out, 2)
}

func TestSortByTotalStable(t *testing.T) {
	in := []domain.AggregatedPosition{
		{Asset: "A", TotalSum: decimal.NewFromInt(5)},
		{Asset: "B", TotalSum: decimal.NewFromInt(40)},
		{Asset: "C", TotalSum: decimal.NewFromInt(5)},
		{Asset: "D", TotalSum: decimal.NewFromInt(30)},
	}

	sorted := SortByTotal(in)
	var assets []string
	for _, p := range sorted {
		assets = append(assets, p.Asset)
	}
	assert.Equal(t, []string{"B", "D", "A", "C"}, assets)
	assert.Equal(t, "A", in[0].Asset)
}

func index(positions []domain.AggregatedPosition) map[string]domain.AggregatedPosition {
	m := make(map[string]domain.AggregatedPosition, len(positions))
	for _, p := range positions {
		m[p.Asset] = p
	}
	return m
}
