package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date format of reconciliation keys.
const DateLayout = "2006-01-02"

// RecordKey is the natural key of one remote row.
type RecordKey struct {
	Asset     string    `json:"asset"`
	Date      string    `json:"date"`
	Partition Partition `json:"account"`
}

// Validate checks that every key part is present and the date is ISO formatted.
func (k RecordKey) Validate() error {
	if strings.TrimSpace(k.Asset) == "" {
		return fmt.Errorf("asset is required")
	}
	if strings.TrimSpace(string(k.Partition)) == "" {
		return fmt.Errorf("account is required")
	}
	return ValidateDate(k.Date)
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Asset, k.Date, k.Partition)
}

// ValidateDate checks an ISO YYYY-MM-DD date.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", date)
	}
	return nil
}

// Holding is the payload of one upsert.
type Holding struct {
	Key       RecordKey
	Amount    decimal.Decimal
	Holds     decimal.Decimal
	Total     decimal.Decimal
	Note      Optional[string]
	CostBasis Optional[decimal.Decimal]
}

// HoldingFromRecord builds the upsert payload for a per-partition balance.
func HoldingFromRecord(r BalanceRecord, date string, note Optional[string]) Holding {
	return Holding{
		Key:    RecordKey{Asset: r.Asset, Date: date, Partition: r.Partition},
		Amount: r.Available,
		Holds:  r.Holds,
		Total:  r.Total,
		Note:   note,
	}
}

// RecordRef addresses a remote record.
type RecordRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// UpsertResult describes the outcome of one upsert.
type UpsertResult struct {
	Key     RecordKey `json:"key"`
	Ref     RecordRef `json:"ref"`
	Created bool      `json:"created"`
}
