package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"costplus/internal/model"
)

const (
	costKey      = "mycost"
	wholesaleKey = "wholesalex_b2b_role_1_base_price"
)

func entries(cost, wholesale string) []model.MetadataEntry {
	var out []model.MetadataEntry
	if cost != "" {
		out = append(out, model.MetadataEntry{Key: costKey, Value: model.NewMetaValue(cost), EntryID: 11})
	}
	if wholesale != "" {
		out = append(out, model.MetadataEntry{Key: wholesaleKey, Value: model.NewMetaValue(wholesale), EntryID: 22})
	}
	return out
}

func TestClassify_MissingWholesale(t *testing.T) {
	res := Classify(entries("10", ""), costKey, wholesaleKey, 20, AuditTolerance)

	if res.Status != StatusFixable {
		t.Errorf("Status = %s, want fixable", res.Status)
	}
	if res.ExpectedPrice == nil || *res.ExpectedPrice != 12 {
		t.Errorf("ExpectedPrice = %v, want 12", res.ExpectedPrice)
	}
	if res.CurrentPrice != nil {
		t.Errorf("CurrentPrice = %v, want nil", *res.CurrentPrice)
	}
	if res.Reason != "Missing wholesale price" {
		t.Errorf("Reason = %q", res.Reason)
	}
}

func TestClassify_Matches(t *testing.T) {
	res := Classify(entries("10", "12.00"), costKey, wholesaleKey, 20, AuditTolerance)

	if res.Status != StatusComplete {
		t.Errorf("Status = %s, want complete", res.Status)
	}
	if *res.Cost != 10 || *res.CurrentPrice != 12 || *res.ExpectedPrice != 12 {
		t.Errorf("money = %v/%v/%v", *res.Cost, *res.CurrentPrice, *res.ExpectedPrice)
	}
}

func TestClassify_Incorrect(t *testing.T) {
	res := Classify(entries("10", "11.00"), costKey, wholesaleKey, 20, AuditTolerance)

	if res.Status != StatusFixable {
		t.Errorf("Status = %s, want fixable", res.Status)
	}
	if res.Reason != "Incorrect wholesale: 11 vs expected 12" {
		t.Errorf("Reason = %q", res.Reason)
	}
}

func TestClassify_NoCost(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.MetadataEntry
	}{
		{"no metadata", nil},
		{"text cost", entries("call us", "12.00")},
		{"empty cost", []model.MetadataEntry{{Key: costKey, Value: model.NewMetaValue("")}}},
		{"null cost", []model.MetadataEntry{{Key: costKey, Value: model.MissingMeta{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.entries, costKey, wholesaleKey, 20, AuditTolerance)
			if res.Status != StatusMissingCost {
				t.Errorf("Status = %s, want missing_cost", res.Status)
			}
			if res.ExpectedPrice != nil || res.Cost != nil {
				t.Error("cost and expected price should be nil")
			}
			if res.Reason != "No cost meta found" {
				t.Errorf("Reason = %q", res.Reason)
			}
		})
	}
}

func TestClassify_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		cost      string
		current   string
		tolerance float64
		want      Status
	}{
		{"audit: one cent over", "10", "12.01", AuditTolerance, StatusComplete},
		{"audit: one cent under", "10", "11.99", AuditTolerance, StatusComplete},
		{"audit: two cents over", "10", "12.02", AuditTolerance, StatusFixable},
		{"audit: one cent over 1.20", "1", "1.21", AuditTolerance, StatusComplete},
		{"audit: one cent over 60", "50", "60.01", AuditTolerance, StatusComplete},
		{"audit: one cent over 120", "100", "120.01", AuditTolerance, StatusComplete},
		{"audit: one cent under 120", "100", "119.99", AuditTolerance, StatusComplete},
		{"audit: just over a cent", "10", "12.0101", AuditTolerance, StatusFixable},
		{"sync: one cent over", "10", "12.01", SyncTolerance, StatusFixable},
		{"sync: one cent over 1.20", "1", "1.21", SyncTolerance, StatusFixable},
		{"sync: one cent over 60", "50", "60.01", SyncTolerance, StatusFixable},
		{"sync: one cent over 120", "100", "120.01", SyncTolerance, StatusFixable},
		{"sync: exactly 0.009 over", "10", "12.009", SyncTolerance, StatusComplete},
		{"sync: exactly 0.009 over 120", "100", "120.009", SyncTolerance, StatusComplete},
		{"sync: just over 0.009", "10", "12.0091", SyncTolerance, StatusFixable},
		{"sync: exact", "10", "12", SyncTolerance, StatusComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(entries(tt.cost, tt.current), costKey, wholesaleKey, 20, tt.tolerance)
			if res.Status != tt.want {
				t.Errorf("Status = %s, want %s (%s)", res.Status, tt.want, res.Reason)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	in := entries("$7.35", "8.80")
	first := Classify(in, costKey, wholesaleKey, 20, AuditTolerance)

	for i := 0; i < 5; i++ {
		got := Classify(in, costKey, wholesaleKey, 20, AuditTolerance)
		if diff := cmp.Diff(first, got); diff != "" {
			t.Fatalf("Classify not deterministic (-first +got):\n%s", diff)
		}
	}
}

func TestExpectedPrice(t *testing.T) {
	tests := []struct {
		cost, markup, want float64
	}{
		{10, 20, 12},
		{0, 20, 0},
		{10, 0, 10},
		{7.35, 20, 8.82},
		{19.99, 35, 26.99},
		{1, 100, 2},
	}

	for _, tt := range tests {
		if got := ExpectedPrice(tt.cost, tt.markup); got != tt.want {
			t.Errorf("ExpectedPrice(%v, %v) = %v, want %v", tt.cost, tt.markup, got, tt.want)
		}
	}
}

func TestAggregateVariations(t *testing.T) {
	complete := Result{Status: StatusComplete}
	fixable := Result{Status: StatusFixable}
	missing := Result{Status: StatusMissingCost}

	tests := []struct {
		name       string
		variations []Result
		wantStatus Status
		wantReason string
	}{
		{"one fixable of three", []Result{fixable, complete, complete}, StatusFixable, "1/3 variations missing or incorrect wholesale"},
		{"fixable beats missing", []Result{missing, fixable, missing}, StatusFixable, "1/3 variations missing or incorrect wholesale"},
		{"missing cost", []Result{complete, missing}, StatusMissingCost, "1/2 variations missing cost"},
		{"all complete", []Result{complete, complete}, StatusComplete, "All variations complete"},
		{"no variations", nil, StatusMissingCost, "No variation data loaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateVariations(tt.variations)
			if got.Status != tt.wantStatus || got.Reason != tt.wantReason {
				t.Errorf("AggregateVariations() = (%s, %q), want (%s, %q)", got.Status, got.Reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestNeedsWrite(t *testing.T) {
	missingPrice := Classify(entries("10", ""), costKey, wholesaleKey, 20, SyncTolerance)
	wrongPrice := Classify(entries("10", "11"), costKey, wholesaleKey, 20, SyncTolerance)
	okPrice := Classify(entries("10", "12"), costKey, wholesaleKey, 20, SyncTolerance)

	tests := []struct {
		name        string
		res         Result
		onlyMissing bool
		want        bool
	}{
		{"missing price", missingPrice, false, true},
		{"missing price, only missing", missingPrice, true, true},
		{"wrong price", wrongPrice, false, true},
		{"wrong price, only missing", wrongPrice, true, false},
		{"correct price", okPrice, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsWrite(tt.res, tt.onlyMissing); got != tt.want {
				t.Errorf("NeedsWrite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildMetaUpdate(t *testing.T) {
	t.Run("existing entry keeps its id", func(t *testing.T) {
		got := BuildMetaUpdate(entries("10", "11"), wholesaleKey, "12.00")
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
		if got[0].EntryID != 22 || got[0].Key != wholesaleKey || got[0].Value.String() != "12.00" {
			t.Errorf("update = %+v", got[0])
		}
	})

	t.Run("new entry has no id", func(t *testing.T) {
		got := BuildMetaUpdate(entries("10", ""), wholesaleKey, "12.00")
		if got[0].EntryID != 0 {
			t.Errorf("EntryID = %d, want 0", got[0].EntryID)
		}
	})
}

func TestWithParentCost(t *testing.T) {
	parent := entries("8", "")

	t.Run("variation without cost inherits", func(t *testing.T) {
		variation := entries("", "")
		got := WithParentCost(variation, parent, costKey)

		res := Classify(got, costKey, wholesaleKey, 20, AuditTolerance)
		if res.Cost == nil || *res.Cost != 8 {
			t.Fatalf("Cost = %v, want 8", res.Cost)
		}
		if len(variation) != 0 {
			t.Error("input slice was modified")
		}
	})

	t.Run("unparseable variation cost inherits", func(t *testing.T) {
		got := WithParentCost(entries("tbd", ""), parent, costKey)
		if n, ok := model.MetaNumber(got, costKey); !ok || n != 8 {
			t.Errorf("cost = %v, %v; want 8", n, ok)
		}
	})

	t.Run("own cost wins", func(t *testing.T) {
		got := WithParentCost(entries("5", ""), parent, costKey)
		if n, _ := model.MetaNumber(got, costKey); n != 5 {
			t.Errorf("cost = %v, want 5", n)
		}
	})

	t.Run("parent without cost", func(t *testing.T) {
		variation := entries("", "12")
		got := WithParentCost(variation, nil, costKey)
		if len(got) != len(variation) {
			t.Errorf("entries changed: %+v", got)
		}
	})
}
