// Package domain defines the balance and reconciliation records shared by coinbook services.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantities leave the process as JSON numbers, matching the tool contract.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Partition is a sub-account bucket on the exchange.
type Partition string

const (
	// PartitionMain funding account.
	PartitionMain Partition = "main"
	// PartitionTrade spot trading account.
	PartitionTrade Partition = "trade"
)

// DefaultPartitions is the fetch order used when none is configured.
var DefaultPartitions = []Partition{PartitionMain, PartitionTrade}

func (p Partition) String() string {
	return string(p)
}

// BalanceRecord is one asset position under a single partition.
// Total is reported by the exchange and is not assumed to equal Available + Holds.
type BalanceRecord struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Holds     decimal.Decimal `json:"holds"`
	Total     decimal.Decimal `json:"total"`
	Partition Partition       `json:"account"`
}

// NewBalanceRecord creates a validated BalanceRecord.
func NewBalanceRecord(asset string, available, holds, total decimal.Decimal, partition Partition) (BalanceRecord, error) {
	if strings.TrimSpace(asset) == "" {
		return BalanceRecord{}, fmt.Errorf("asset is required")
	}
	if strings.TrimSpace(string(partition)) == "" {
		return BalanceRecord{}, fmt.Errorf("partition is required for %s", asset)
	}
	quantities := []struct {
		name  string
		value decimal.Decimal
	}{{"available", available}, {"holds", holds}, {"balance", total}}
	for _, q := range quantities {
		if q.value.IsNegative() {
			return BalanceRecord{}, fmt.Errorf("%s %s is negative: %s", asset, q.name, q.value.String())
		}
	}

	return BalanceRecord{
		Asset:     asset,
		Available: available,
		Holds:     holds,
		Total:     total,
		Partition: partition,
	}, nil
}

// Deviation returns Total - (Available + Holds).
func (b BalanceRecord) Deviation() decimal.Decimal {
	return b.Total.Sub(b.Available.Add(b.Holds))
}

// Consistent reports whether the deviation is within tolerance.
func (b BalanceRecord) Consistent(tolerance decimal.Decimal) bool {
	return b.Deviation().Abs().LessThanOrEqual(tolerance)
}

// Zero reports whether every quantity is zero.
func (b BalanceRecord) Zero() bool {
	return b.Available.IsZero() && b.Holds.IsZero() && b.Total.IsZero()
}
