package domain

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBalanceRecord(t *testing.T) {
	tests := []struct {
		name      string
		asset     string
		available string
		holds     string
		total     string
		partition Partition
		wantErr   string
	}{
		{name: "valid", asset: "BTC", available: "1", holds: "0.5", total: "1.5", partition: PartitionMain},
		{name: "empty asset", asset: " ", available: "1", holds: "0", total: "1", partition: PartitionMain, wantErr: "asset is required"},
		{name: "empty partition", asset: "BTC", available: "1", holds: "0", total: "1", wantErr: "partition is required"},
		{name: "negative holds", asset: "BTC", available: "1", holds: "-1", total: "0", partition: PartitionTrade, wantErr: "BTC holds is negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewBalanceRecord(tt.asset,
				decimal.RequireFromString(tt.available),
				decimal.RequireFromString(tt.holds),
				decimal.RequireFromString(tt.total),
				tt.partition)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.asset, r.Asset)
			assert.Equal(t, tt.partition, r.Partition)
		})
	}
}

func TestBalanceRecordDeviation(t *testing.T) {
	r := BalanceRecord{
		Asset:     "ETH",
		Available: decimal.RequireFromString("1.0"),
		Holds:     decimal.RequireFromString("0.5"),
		Total:     decimal.RequireFromString("1.6"),
		Partition: PartitionTrade,
	}

	assert.True(t, r.Deviation().Equal(decimal.RequireFromString("0.1")))
	assert.False(t, r.Consistent(decimal.RequireFromString("0.01")))
	assert.True(t, r.Consistent(decimal.RequireFromString("0.1")))
	assert.False(t, r.Zero())
}

func TestRecordKeyValidate(t *testing.T) {
	assert.NoError(t, RecordKey{Asset: "BTC", Date: "2025-09-25", Partition: PartitionMain}.Validate())
	assert.Error(t, RecordKey{Asset: "BTC", Date: "25/09/2025", Partition: PartitionMain}.Validate())
	assert.Error(t, RecordKey{Asset: "", Date: "2025-09-25", Partition: PartitionMain}.Validate())
	assert.Error(t, RecordKey{Asset: "BTC", Date: "2025-09-25"}.Validate())
	assert.Equal(t, "BTC/2025-09-25/main", RecordKey{Asset: "BTC", Date: "2025-09-25", Partition: PartitionMain}.String())
}

func TestOptional(t *testing.T) {
	some := Some("note")
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, "note", v)
	assert.False(t, some.IsAbsent())

	assert.True(t, None[string]().IsAbsent())
	assert.True(t, Cleared[string]().IsCleared())
	assert.False(t, Cleared[string]().IsSet())

	assert.True(t, OptionalString("").IsAbsent())
	assert.True(t, OptionalString("x").IsSet())
}

func TestQuantitiesMarshalAsNumbers(t *testing.T) {
	r, err := NewBalanceRecord("BTC", decimal.RequireFromString("0.5"), decimal.Zero, decimal.RequireFromString("0.5"), PartitionMain)
	require.NoError(t, err)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"asset":"BTC","available":0.5,"holds":0,"total":0.5,"account":"main"}`, string(raw))

	var back BalanceRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Available.Equal(r.Available))

	p := NewAggregatedPosition("BTC")
	p.Add(r)
	raw, err = json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"asset":"BTC","amount":0.5,"holds":0,"balance":0.5,"accounts":{"main":0.5}}`, string(raw))
}
