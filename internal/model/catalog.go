// Package model holds the catalog types shared by the client, the resolver,
// the price rules and both drivers.
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind is the WooCommerce item type.
type Kind string

const (
	KindSimple    Kind = "simple"
	KindVariable  Kind = "variable"
	KindVariation Kind = "variation"
)

// CatalogItem is a read-only snapshot of a product or variation.
type CatalogItem struct {
	ID       int64
	ParentID int64 // variations only
	Name     string
	SKU      string
	Kind     Kind
	Meta     []MetadataEntry // remote order
}

// IsVariable reports whether the item owns variations.
func (i CatalogItem) IsVariable() bool {
	return i.Kind == KindVariable
}

// EntityType is the report label for the item: "variation" or "product".
func (i CatalogItem) EntityType() string {
	if i.Kind == KindVariation {
		return "variation"
	}
	return "product"
}

// MetadataEntry is one meta_data pair.
// EntryID is zero for entries that were never persisted remotely.
type MetadataEntry struct {
	Key     string
	Value   MetaValue
	EntryID int64
}

// MetaValue is a normalized meta value: NumericMeta, TextMeta or MissingMeta.
type MetaValue interface {
	isMetaValue()
	// Number returns the numeric reading of the value, if any.
	Number() (float64, bool)
	// String returns the value as it should appear in reports and payloads.
	String() string
}

// NumericMeta is a value that parsed to a finite number.
type NumericMeta struct {
	Value float64
	Raw   string
}

// TextMeta is a present value with no numeric reading.
type TextMeta struct {
	Text string
}

// MissingMeta is a null or absent value.
type MissingMeta struct{}

func (NumericMeta) isMetaValue() {}
func (TextMeta) isMetaValue()    {}
func (MissingMeta) isMetaValue() {}

func (m NumericMeta) Number() (float64, bool) { return m.Value, true }
func (TextMeta) Number() (float64, bool)      { return 0, false }
func (MissingMeta) Number() (float64, bool)   { return 0, false }

func (m NumericMeta) String() string { return m.Raw }
func (m TextMeta) String() string    { return m.Text }
func (MissingMeta) String() string   { return "" }

// NewMetaValue normalizes a raw string meta value.
func NewMetaValue(raw string) MetaValue {
	if n, ok := ParseMetaNumber(raw); ok {
		return NumericMeta{Value: n, Raw: raw}
	}
	if raw == "" {
		return MissingMeta{}
	}
	return TextMeta{Text: raw}
}

// MetaValueFromJSON normalizes an untyped JSON meta value.
// Strings go through the strip-and-parse rule. Number tokens are parsed as
// JSON numbers, exponent included. Objects, arrays and booleans are kept as
// text so they never count as prices.
func MetaValueFromJSON(raw json.RawMessage) MetaValue {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return MissingMeta{}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return TextMeta{Text: string(trimmed)}
		}
		return NewMetaValue(s)
	case '{', '[', 't', 'f':
		return TextMeta{Text: string(trimmed)}
	default:
		raw := string(trimmed)
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return TextMeta{Text: raw}
		}
		return NumericMeta{Value: n, Raw: raw}
	}
}

// FindMeta returns the first entry with key.
func FindMeta(entries []MetadataEntry, key string) (MetadataEntry, bool) {
	if key == "" {
		return MetadataEntry{}, false
	}
	for _, e := range entries {
		if e.Key == key {
			return e, true
		}
	}
	return MetadataEntry{}, false
}

// MetaNumber returns the numeric value stored under key, if any.
func MetaNumber(entries []MetadataEntry, key string) (float64, bool) {
	e, ok := FindMeta(entries, key)
	if !ok || e.Value == nil {
		return 0, false
	}
	return e.Value.Number()
}

// NormalizeKind maps the remote type string onto a Kind.
// Unknown types (grouped, external, ...) are kept verbatim.
func NormalizeKind(t string) Kind {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return KindSimple
	}
	return Kind(t)
}
