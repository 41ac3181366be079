// Package report derives portfolio heuristics from aggregated positions.
// Totals are summed in raw asset units; no fiat valuation is applied.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/services/aggregator"
)

var hundred = decimal.NewFromInt(100)

// Thresholds tunes the heuristics.
type Thresholds struct {
	// TopN positions are checked for concentration.
	TopN int
	// ConcentrationPct flags positions whose share is strictly above it.
	ConcentrationPct decimal.Decimal
	// DustBelow flags positions with 0 < total < DustBelow.
	DustBelow decimal.Decimal
	// StableLowPct and StableHighPct bound the stablecoin share, exclusive.
	StableLowPct  decimal.Decimal
	StableHighPct decimal.Decimal
	Stablecoins   []string
}

// DefaultThresholds returns the stock heuristic settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TopN:             5,
		ConcentrationPct: decimal.NewFromInt(30),
		DustBelow:        decimal.NewFromInt(5),
		StableLowPct:     decimal.NewFromInt(5),
		StableHighPct:    decimal.NewFromInt(40),
		Stablecoins:      []string{"USDT", "USDC", "DAI", "FDUSD", "TUSD"},
	}
}

// Report is the outcome of the heuristics.
type Report struct {
	AsOf        time.Time
	Summary     string
	Suggestions []string
	// Positions are sorted by total, largest first.
	Positions  []domain.AggregatedPosition
	GrandTotal decimal.Decimal
}

// Build runs the default heuristics.
func Build(positions []domain.AggregatedPosition, asOf time.Time) Report {
	return DefaultThresholds().Build(positions, asOf)
}

// Build runs the heuristics with t.
func (t Thresholds) Build(positions []domain.AggregatedPosition, asOf time.Time) Report {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.TotalSum)
	}

	ranked := aggregator.SortByTotal(positions)
	suggestions := make([]string, 0)

	// concentration
	top := ranked
	if t.TopN >= 0 && len(top) > t.TopN {
		top = top[:t.TopN]
	}
	for _, p := range top {
		share := shareOf(p.TotalSum, total)
		if share.GreaterThan(t.ConcentrationPct) {
			suggestions = append(suggestions,
				fmt.Sprintf("%s is %s%% of portfolio; consider trimming.", p.Asset, share.StringFixed(1)))
		}
	}

	// dust, in aggregation order
	for _, p := range positions {
		if p.TotalSum.IsPositive() && p.TotalSum.LessThan(t.DustBelow) {
			suggestions = append(suggestions,
				fmt.Sprintf("%s balance is small (%s); consider consolidating.", p.Asset, p.TotalSum.StringFixed(4)))
		}
	}

	// stablecoin buffer
	if !total.IsZero() {
		stable := decimal.Zero
		for _, p := range positions {
			if t.isStable(p.Asset) {
				stable = stable.Add(p.TotalSum)
			}
		}
		share := shareOf(stable, total)
		switch {
		case share.LessThan(t.StableLowPct):
			suggestions = append(suggestions,
				fmt.Sprintf("Stablecoin buffer <%s%%; consider increasing dry powder.", t.StableLowPct.String()))
		case share.GreaterThan(t.StableHighPct):
			suggestions = append(suggestions,
				fmt.Sprintf("High stablecoin share (>%s%%); consider deploying if unintentional.", t.StableHighPct.String()))
		}
	}

	return Report{
		AsOf:        asOf,
		Summary:     fmt.Sprintf("%d assets; unit-sum=%s (no fiat valuation).", len(positions), total.StringFixed(4)),
		Suggestions: suggestions,
		Positions:   ranked,
		GrandTotal:  total,
	}
}

func (t Thresholds) isStable(asset string) bool {
	for _, s := range t.Stablecoins {
		if s == asset {
			return true
		}
	}
	return false
}

func shareOf(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred)
}

// Markdown renders the report for terminal output.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio report\n\n")
	fmt.Fprintf(&b, "_As of %s_\n\n", r.AsOf.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", r.Summary)

	if len(r.Positions) > 0 {
		b.WriteString("| Asset | Available | Holds | Total | Share |\n")
		b.WriteString("|---|---:|---:|---:|---:|\n")
		for _, p := range r.Positions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s%% |\n",
				p.Asset,
				p.AmountSum.String(),
				p.HoldsSum.String(),
				p.TotalSum.String(),
				shareOf(p.TotalSum, r.GrandTotal).StringFixed(1))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Suggestions\n\n")
	if len(r.Suggestions) == 0 {
		b.WriteString("Nothing to flag.\n")
		return b.String()
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}
