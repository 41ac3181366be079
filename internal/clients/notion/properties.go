package notion

import (
	"github.com/vadiminshakov/coinbook/internal/domain"
)

// Database property names.
const (
	PropAsset     = "Asset"
	PropDate      = "Date"
	PropAccount   = "Account"
	PropAmount    = "Amount"
	PropHolds     = "Holds"
	PropBalance   = "Balance"
	PropCostBasis = "TotalSpent"
	PropNotes     = "Notes"
)

type filter struct {
	Property string         `json:"property"`
	Title    *equalsCompare `json:"title,omitempty"`
	Date     *equalsCompare `json:"date,omitempty"`
	Select   *equalsCompare `json:"select,omitempty"`
}

type equalsCompare struct {
	Equals string `json:"equals"`
}

type queryRequest struct {
	Filter struct {
		And []filter `json:"and"`
	} `json:"filter"`
	PageSize int `json:"page_size"`
}

// keyQuery filters on all three key properties jointly.
func keyQuery(key domain.RecordKey) queryRequest {
	var q queryRequest
	q.Filter.And = []filter{
		{Property: PropAsset, Title: &equalsCompare{Equals: key.Asset}},
		{Property: PropDate, Date: &equalsCompare{Equals: key.Date}},
		{Property: PropAccount, Select: &equalsCompare{Equals: key.Partition.String()}},
	}
	q.PageSize = 1
	return q
}

func richText(content string) []map[string]any {
	return []map[string]any{{"text": map[string]any{"content": content}}}
}

// properties renders h. Absent optional fields are omitted so they never clear remote values.
func properties(h domain.Holding) map[string]any {
	props := map[string]any{
		PropAsset:   map[string]any{"title": richText(h.Key.Asset)},
		PropDate:    map[string]any{"date": map[string]any{"start": h.Key.Date}},
		PropAccount: map[string]any{"select": map[string]any{"name": h.Key.Partition.String()}},
		PropAmount:  map[string]any{"number": h.Amount.InexactFloat64()},
		PropHolds:   map[string]any{"number": h.Holds.InexactFloat64()},
		PropBalance: map[string]any{"number": h.Total.InexactFloat64()},
	}

	if v, ok := h.CostBasis.Get(); ok {
		props[PropCostBasis] = map[string]any{"number": v.InexactFloat64()}
	} else if h.CostBasis.IsCleared() {
		props[PropCostBasis] = map[string]any{"number": nil}
	}

	if v, ok := h.Note.Get(); ok {
		props[PropNotes] = map[string]any{"rich_text": richText(v)}
	} else if h.Note.IsCleared() {
		props[PropNotes] = map[string]any{"rich_text": []any{}}
	}

	return props
}
