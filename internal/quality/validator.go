// Package quality validates and repairs bar windows before they reach the
// detector or regime classifier, grounded on the teacher's
// internal/data/quality.go DataQualityValidator.
package quality

import (
	"fmt"
	"sort"

	"github.com/finsight/finsight/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IssueType classifies one problem found in a bar window.
type IssueType string

const (
	IssueMissingData   IssueType = "missing_data"
	IssueInvalidOHLC   IssueType = "invalid_ohlc"
	IssueNegativeVolume IssueType = "negative_volume"
	IssueDuplicate     IssueType = "duplicate_timestamp"
	IssueOutOfOrder    IssueType = "out_of_order"
)

// IssueSeverity weights how much an issue should penalize the quality score.
type IssueSeverity int

const (
	SeverityInfo IssueSeverity = iota
	SeverityWarning
	SeverityCritical
)

// Issue is one problem found in a bar window.
type Issue struct {
	Type     IssueType
	Severity IssueSeverity
	BarIndex int
	Message  string
}

// Report summarizes the outcome of validating one bar window.
type Report struct {
	Symbol        string
	TotalBars     int
	Issues        []Issue
	QualityScore  float64 // 0-1
	IsUsable      bool
}

// Validator checks bar-window invariants (spec §3: low<=open,close<=high,
// volume>=0) and scores overall usability.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a bar-window validator.
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate checks bars in order and produces a Report. It does not mutate
// the input; callers needing repaired bars call Clean separately.
func (v *Validator) Validate(symbol string, bars []types.Bar) Report {
	report := Report{Symbol: symbol, TotalBars: len(bars)}

	if len(bars) == 0 {
		report.Issues = append(report.Issues, Issue{Type: IssueMissingData, Severity: SeverityCritical, Message: "no bars supplied"})
		report.IsUsable = false
		return report
	}

	seen := make(map[int64]bool, len(bars))
	for i, bar := range bars {
		if i > 0 && bar.Instant.Before(bars[i-1].Instant) {
			report.Issues = append(report.Issues, Issue{Type: IssueOutOfOrder, Severity: SeverityCritical, BarIndex: i,
				Message: fmt.Sprintf("bar %d is out of chronological order", i)})
		}
		ts := bar.Instant.Unix()
		if seen[ts] {
			report.Issues = append(report.Issues, Issue{Type: IssueDuplicate, Severity: SeverityWarning, BarIndex: i,
				Message: fmt.Sprintf("duplicate timestamp at bar %d", i)})
		}
		seen[ts] = true

		if bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) || bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) || bar.Low.GreaterThan(bar.High) {
			report.Issues = append(report.Issues, Issue{Type: IssueInvalidOHLC, Severity: SeverityCritical, BarIndex: i,
				Message: fmt.Sprintf("bar %d violates low<=open,close<=high", i)})
		}
		if bar.Volume.IsNegative() {
			report.Issues = append(report.Issues, Issue{Type: IssueNegativeVolume, Severity: SeverityCritical, BarIndex: i,
				Message: fmt.Sprintf("bar %d has negative volume", i)})
		}
	}

	report.QualityScore = v.score(report)
	report.IsUsable = !v.hasCritical(report)

	if v.logger != nil && len(report.Issues) > 0 {
		v.logger.Warn("bar window quality issues",
			zap.String("symbol", symbol),
			zap.Int("issueCount", len(report.Issues)),
			zap.Float64("qualityScore", report.QualityScore))
	}

	return report
}

func (v *Validator) hasCritical(report Report) bool {
	for _, issue := range report.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func (v *Validator) score(report Report) float64 {
	if report.TotalBars == 0 {
		return 0
	}
	penalty := 0.0
	for _, issue := range report.Issues {
		switch issue.Severity {
		case SeverityCritical:
			penalty += 1.0
		case SeverityWarning:
			penalty += 0.3
		case SeverityInfo:
			penalty += 0.05
		}
	}
	score := 1.0 - penalty/float64(report.TotalBars)
	if score < 0 {
		score = 0
	}
	return score
}

// Clean sorts bars chronologically, drops duplicate timestamps (keeping
// the first occurrence) and bars with non-positive close, and repairs
// High/Low to encompass Open/Close — mirroring the teacher's CleanData.
func Clean(bars []types.Bar) []types.Bar {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Instant.Before(sorted[j].Instant) })

	cleaned := make([]types.Bar, 0, len(sorted))
	seen := make(map[int64]bool, len(sorted))
	for _, bar := range sorted {
		if bar.Close.LessThanOrEqual(decimal.Zero) {
			continue
		}
		ts := bar.Instant.Unix()
		if seen[ts] {
			continue
		}
		seen[ts] = true

		bar.High = decimal.Max(bar.High, bar.Open, bar.Close)
		bar.Low = decimal.Min(bar.Low, bar.Open, bar.Close)
		if bar.Volume.IsNegative() {
			bar.Volume = decimal.Zero
		}
		cleaned = append(cleaned, bar)
	}
	return cleaned
}
