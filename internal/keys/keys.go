// Package keys detects which meta keys hold the cost and the wholesale price.
package keys

import (
	"regexp"

	"costplus/internal/model"
)

// CostCandidates is the ranked list of conventional cost meta keys.
var CostCandidates = []string{
	"mycost",
	"_mycost",
	"my_cost",
	"_my_cost",
	"cost",
	"_cost",
	"_wc_cog_cost",
	"wc_cog_cost",
	"_alg_wc_cog_cost",
	"alg_wc_cog_cost",
}

var (
	wholesalePattern = regexp.MustCompile(`(?i)^wholesalex_b2b_role_\d+_base_price$`)
	costPattern      = regexp.MustCompile(`(?i)(^|_)my_?cost$|(^|_)cost$`)
)

// KeyResolver picks meta keys from one item's metadata.
type KeyResolver interface {
	// ResolveCostKey returns the key holding a numeric cost. preferred is tried
	// first and may be empty.
	ResolveCostKey(entries []model.MetadataEntry, preferred string) (string, bool)
	// ResolveWholesaleKey returns the first key naming a role base price.
	ResolveWholesaleKey(entries []model.MetadataEntry) (string, bool)
}

// RankedResolver resolves cost keys from CostCandidates, then from a
// suffix pattern, and wholesale keys from the WholesaleX role pattern.
type RankedResolver struct{}

var _ KeyResolver = RankedResolver{}

func (RankedResolver) ResolveCostKey(entries []model.MetadataEntry, preferred string) (string, bool) {
	if preferred != "" && hasNumeric(entries, preferred) {
		return preferred, true
	}
	for _, key := range CostCandidates {
		if hasNumeric(entries, key) {
			return key, true
		}
	}
	for _, e := range entries {
		if costPattern.MatchString(e.Key) && isNumeric(e.Value) {
			return e.Key, true
		}
	}
	return "", false
}

func (RankedResolver) ResolveWholesaleKey(entries []model.MetadataEntry) (string, bool) {
	for _, e := range entries {
		if wholesalePattern.MatchString(e.Key) {
			return e.Key, true
		}
	}
	return "", false
}

// IsWholesaleKey reports whether key looks like a WholesaleX role base price.
func IsWholesaleKey(key string) bool {
	return wholesalePattern.MatchString(key)
}

func hasNumeric(entries []model.MetadataEntry, key string) bool {
	_, ok := model.MetaNumber(entries, key)
	return ok
}

func isNumeric(v model.MetaValue) bool {
	if v == nil {
		return false
	}
	_, ok := v.Number()
	return ok
}

// Tracker carries key detection across a traversal.
// Overrides are final. Unresolved keys are filled in from the first item
// whose metadata yields one, in the order Observe is called.
type Tracker struct {
	resolver KeyResolver

	costKey      string
	wholesaleKey string
}

// NewTracker creates a Tracker. costOverride and wholesaleOverride are used
// verbatim when non-empty.
func NewTracker(resolver KeyResolver, costOverride, wholesaleOverride string) *Tracker {
	if resolver == nil {
		resolver = RankedResolver{}
	}
	return &Tracker{
		resolver:     resolver,
		costKey:      costOverride,
		wholesaleKey: wholesaleOverride,
	}
}

// Observe feeds one item's metadata into detection.
func (t *Tracker) Observe(entries []model.MetadataEntry) {
	if t.costKey == "" {
		if key, ok := t.resolver.ResolveCostKey(entries, ""); ok {
			t.costKey = key
		}
	}
	if t.wholesaleKey == "" {
		if key, ok := t.resolver.ResolveWholesaleKey(entries); ok {
			t.wholesaleKey = key
		}
	}
}

// Done reports whether both keys are known.
func (t *Tracker) Done() bool {
	return t.costKey != "" && t.wholesaleKey != ""
}

// CostKey returns the cost key resolved so far.
func (t *Tracker) CostKey() string { return t.costKey }

// WholesaleKey returns the wholesale key resolved so far.
func (t *Tracker) WholesaleKey() string { return t.wholesaleKey }

// Result returns the final keys, or a KeyResolutionError naming the flag
// that would have supplied the missing one. Wholesale is reported first.
func (t *Tracker) Result() (costKey, wholesaleKey string, err error) {
	if t.wholesaleKey == "" {
		return "", "", &model.KeyResolutionError{What: "WholesaleX", Flag: "--wholesale-key"}
	}
	if t.costKey == "" {
		return "", "", &model.KeyResolutionError{
			What: "cost",
			Flag: "--cost-key",
			Hint: "for example _wc_cog_cost or mycost",
		}
	}
	return t.costKey, t.wholesaleKey, nil
}
