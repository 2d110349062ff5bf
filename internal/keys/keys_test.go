package keys

import (
	"errors"
	"testing"

	"costplus/internal/model"
)

func meta(kv ...string) []model.MetadataEntry {
	var out []model.MetadataEntry
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.MetadataEntry{Key: kv[i], Value: model.NewMetaValue(kv[i+1])})
	}
	return out
}

func TestRankedResolver_ResolveCostKey(t *testing.T) {
	tests := []struct {
		name      string
		entries   []model.MetadataEntry
		preferred string
		want      string
		wantOK    bool
	}{
		{
			name:    "first candidate wins",
			entries: meta("_wc_cog_cost", "5", "mycost", "10"),
			want:    "mycost",
			wantOK:  true,
		},
		{
			name:    "non numeric candidate skipped",
			entries: meta("mycost", "n/a", "_cost", "7"),
			want:    "_cost",
			wantOK:  true,
		},
		{
			name:    "empty candidate is absent",
			entries: meta("mycost", "", "_wc_cog_cost", "4.50"),
			want:    "_wc_cog_cost",
			wantOK:  true,
		},
		{
			name:      "preferred numeric wins",
			entries:   meta("mycost", "10", "supplier_cost", "8"),
			preferred: "supplier_cost",
			want:      "supplier_cost",
			wantOK:    true,
		},
		{
			name:      "preferred non numeric falls back",
			entries:   meta("mycost", "10", "supplier_cost", "tbd"),
			preferred: "supplier_cost",
			want:      "mycost",
			wantOK:    true,
		},
		{
			name:    "suffix pattern fallback",
			entries: meta("_yoast_title", "x", "_supplier_my_cost", "3.25"),
			want:    "_supplier_my_cost",
			wantOK:  true,
		},
		{
			name:    "pattern ignores unrelated suffix",
			entries: meta("_costume", "3", "costing", "1"),
			wantOK:  false,
		},
		{
			name:   "no metadata",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RankedResolver{}.ResolveCostKey(tt.entries, tt.preferred)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolveCostKey() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRankedResolver_ResolveWholesaleKey(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.MetadataEntry
		want    string
		wantOK  bool
	}{
		{"single role", meta("wholesalex_b2b_role_7_base_price", "12"), "wholesalex_b2b_role_7_base_price", true},
		{"first in entry order", meta("wholesalex_b2b_role_9_base_price", "", "wholesalex_b2b_role_2_base_price", "1"), "wholesalex_b2b_role_9_base_price", true},
		{"case insensitive", meta("WholesaleX_B2B_Role_12_Base_Price", "1"), "WholesaleX_B2B_Role_12_Base_Price", true},
		{"value need not be numeric", meta("wholesalex_b2b_role_3_base_price", ""), "wholesalex_b2b_role_3_base_price", true},
		{"non numeric role", meta("wholesalex_b2b_role_x_base_price", "1"), "", false},
		{"sale price key", meta("wholesalex_b2b_role_3_sale_price", "1"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RankedResolver{}.ResolveWholesaleKey(tt.entries)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolveWholesaleKey() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTracker_IncrementalDetection(t *testing.T) {
	tr := NewTracker(nil, "", "")

	tr.Observe(meta("_price", "20"))
	if tr.Done() {
		t.Fatal("Done() after item without keys")
	}

	tr.Observe(meta("wholesalex_b2b_role_5_base_price", "12"))
	if tr.WholesaleKey() != "wholesalex_b2b_role_5_base_price" {
		t.Errorf("WholesaleKey() = %q", tr.WholesaleKey())
	}

	tr.Observe(meta("_wc_cog_cost", "10", "wholesalex_b2b_role_9_base_price", "1"))
	if !tr.Done() {
		t.Fatal("Done() = false after both keys seen")
	}

	// Later items never change a resolved key.
	tr.Observe(meta("mycost", "1"))

	cost, wholesale, err := tr.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if cost != "_wc_cog_cost" || wholesale != "wholesalex_b2b_role_5_base_price" {
		t.Errorf("Result() = (%q, %q)", cost, wholesale)
	}
}

func TestTracker_OverridesVerbatim(t *testing.T) {
	tr := NewTracker(nil, "custom_cost", "custom_price")
	tr.Observe(meta("mycost", "10", "wholesalex_b2b_role_1_base_price", "12"))

	cost, wholesale, err := tr.Result()
	if err != nil {
		t.Fatal(err)
	}
	if cost != "custom_cost" || wholesale != "custom_price" {
		t.Errorf("Result() = (%q, %q), want overrides", cost, wholesale)
	}
}

func TestTracker_Unresolved(t *testing.T) {
	tests := []struct {
		name     string
		entries  []model.MetadataEntry
		wantFlag string
	}{
		{"nothing found", meta("_price", "1"), "--wholesale-key"},
		{"only wholesale found", meta("wholesalex_b2b_role_1_base_price", "1"), "--cost-key"},
		{"only cost found", meta("mycost", "1"), "--wholesale-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(RankedResolver{}, "", "")
			tr.Observe(tt.entries)

			_, _, err := tr.Result()
			if !errors.Is(err, model.ErrKeyResolution) {
				t.Fatalf("err = %v, want ErrKeyResolution", err)
			}
			var kre *model.KeyResolutionError
			if !errors.As(err, &kre) || kre.Flag != tt.wantFlag {
				t.Errorf("flag = %v, want %s", kre, tt.wantFlag)
			}
		})
	}
}

func TestIsWholesaleKey(t *testing.T) {
	if !IsWholesaleKey("wholesalex_b2b_role_42_base_price") {
		t.Error("expected match")
	}
	if IsWholesaleKey("_regular_price") {
		t.Error("unexpected match")
	}
}
