// Package reconcile provides the cost-plus price rule.
// Used by the audit and sync drivers to decide, per catalog item, whether the
// stored wholesale price matches cost plus markup, and to build the minimal
// meta update that corrects it.
package reconcile

import (
	"fmt"
	"math"
	"strconv"

	"costplus/internal/model"
)

// Discrepancy tolerances. A price is off only when the absolute difference
// is strictly greater than the tolerance. The drivers have always used
// different values and they are kept apart on purpose.
const (
	AuditTolerance = 0.01
	SyncTolerance  = 0.009
)

// Status is the classification of one item.
type Status string

const (
	StatusComplete    Status = "complete"
	StatusFixable     Status = "fixable"
	StatusMissingCost Status = "missing_cost"
)

// Result is the classification of one item or an aggregated variable product.
// Money fields are nil when unknown.
type Result struct {
	Status        Status
	Reason        string
	Cost          *float64
	CurrentPrice  *float64
	ExpectedPrice *float64
}

// Round2 rounds half-up to cents.
func Round2(v float64) float64 {
	return model.Round2(v)
}

// FormatPrice renders v as the fixed 2-decimal string stored in meta.
func FormatPrice(v float64) string {
	return model.FormatPrice(v)
}

// ExpectedPrice applies the markup rule: round2(cost * (1 + markup/100)).
func ExpectedPrice(cost, markupPercent float64) float64 {
	return Round2(cost * (1 + markupPercent/100))
}

// discrepancy is |current - expected| rounded to a millionth, so float noise
// in the subtraction never carries an exact one-cent gap over a tolerance.
func discrepancy(current, expected float64) float64 {
	return math.Round(math.Abs(current-expected)*1e6) / 1e6
}

// Classify evaluates the price rule for one item's metadata.
//
// Algorithm:
//  1. Read cost and current price from the named entries
//  2. No cost → missing_cost
//  3. expected = round2(cost * (1 + markup/100))
//  4. No current price → fixable
//  5. |current - expected| > tolerance → fixable
//  6. Otherwise → complete
func Classify(entries []model.MetadataEntry, costKey, wholesaleKey string, markupPercent, tolerance float64) Result {
	var current *float64
	if v, ok := model.MetaNumber(entries, wholesaleKey); ok {
		current = model.Float(v)
	}

	cost, ok := model.MetaNumber(entries, costKey)
	if !ok {
		return Result{
			Status:       StatusMissingCost,
			Reason:       "No cost meta found",
			CurrentPrice: current,
		}
	}

	expected := ExpectedPrice(cost, markupPercent)
	res := Result{
		Cost:          model.Float(cost),
		CurrentPrice:  current,
		ExpectedPrice: model.Float(expected),
	}

	switch {
	case current == nil:
		res.Status = StatusFixable
		res.Reason = "Missing wholesale price"
	case discrepancy(*current, expected) > tolerance:
		res.Status = StatusFixable
		res.Reason = fmt.Sprintf("Incorrect wholesale: %s vs expected %s", formatNumber(*current), formatNumber(expected))
	default:
		res.Status = StatusComplete
		res.Reason = "Wholesale price matches expected"
	}
	return res
}

// AggregateVariations derives a variable product's status from its variations:
// fixable if any variation is fixable, else missing_cost if any lacks cost,
// else complete. No variations at all is missing_cost.
func AggregateVariations(variations []Result) Result {
	if len(variations) == 0 {
		return Result{Status: StatusMissingCost, Reason: "No variation data loaded"}
	}

	var fixable, missing int
	for _, v := range variations {
		switch v.Status {
		case StatusFixable:
			fixable++
		case StatusMissingCost:
			missing++
		}
	}

	total := len(variations)
	switch {
	case fixable > 0:
		return Result{
			Status: StatusFixable,
			Reason: fmt.Sprintf("%d/%d variations missing or incorrect wholesale", fixable, total),
		}
	case missing > 0:
		return Result{
			Status: StatusMissingCost,
			Reason: fmt.Sprintf("%d/%d variations missing cost", missing, total),
		}
	default:
		return Result{Status: StatusComplete, Reason: "All variations complete"}
	}
}

// NeedsWrite reports whether a fixable result should be written.
// With onlyMissing, items that already carry a price are left alone even
// when that price is wrong.
func NeedsWrite(r Result, onlyMissing bool) bool {
	if r.Status != StatusFixable {
		return false
	}
	if onlyMissing && r.CurrentPrice != nil {
		return false
	}
	return true
}

// BuildMetaUpdate returns the meta_data payload that sets key to value.
// The existing entry's ID is reused so the store updates in place instead of
// adding a duplicate entry.
func BuildMetaUpdate(entries []model.MetadataEntry, key, value string) []model.MetadataEntry {
	update := model.MetadataEntry{Key: key, Value: model.NewMetaValue(value)}
	if existing, ok := model.FindMeta(entries, key); ok && existing.EntryID != 0 {
		update.EntryID = existing.EntryID
	}
	return []model.MetadataEntry{update}
}

// WithParentCost fills in a variation's missing cost from its parent product.
// The returned slice is a copy when a parent cost is appended; entries is
// never modified.
func WithParentCost(variation, parent []model.MetadataEntry, costKey string) []model.MetadataEntry {
	if _, ok := model.MetaNumber(variation, costKey); ok {
		return variation
	}
	if _, ok := model.MetaNumber(parent, costKey); !ok {
		return variation
	}
	parentEntry, _ := model.FindMeta(parent, costKey)

	out := make([]model.MetadataEntry, 0, len(variation)+1)
	for _, e := range variation {
		if e.Key == costKey {
			continue
		}
		out = append(out, e)
	}
	parentEntry.EntryID = 0
	return append([]model.MetadataEntry{parentEntry}, out...)
}

// formatNumber prints a price the shortest way that round-trips.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
