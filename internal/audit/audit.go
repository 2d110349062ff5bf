// Package audit runs the read-only wholesale price audit and renders its
// report for the console, as JSON, or as CSV.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"costplus/internal/adapter"
	"costplus/internal/catalog"
	"costplus/internal/keys"
	"costplus/internal/metrics"
	"costplus/internal/model"
	"costplus/internal/reconcile"
)

const driverName = "audit"

// Options configures an audit run.
type Options struct {
	MarkupPercent float64
	// CostKey and WholesaleKey override detection when set.
	CostKey      string
	WholesaleKey string
	// InheritParentCost lets a variation without cost use its parent's.
	InheritParentCost bool

	RunID    string // Default: random UUID
	Resolver keys.KeyResolver
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

// Report is the full audit result. Field names follow the JSON report
// consumed by existing tooling.
type Report struct {
	RunID       string              `json:"runId"`
	GeneratedAt string              `json:"generatedAt"`
	Config      ReportConfig        `json:"config"`
	Summary     Summary             `json:"summary"`
	MissingCost []Row               `json:"missingCostProducts"`
	Fixable     []Row               `json:"fixableProducts"`
	Errors      []catalog.ItemError `json:"errors"`
	Details     []Row               `json:"details"`
}

// ReportConfig echoes the settings the report was produced with.
type ReportConfig struct {
	MarkupPercent float64 `json:"markupPercent"`
	CostKey       string  `json:"costKey"`
	WholesaleKey  string  `json:"wholesaleKey"`
}

// Counts splits a status count between products and variations.
type Counts struct {
	Products   int `json:"products"`
	Variations int `json:"variations"`
}

// Total is products plus variations.
func (c Counts) Total() int { return c.Products + c.Variations }

// Summary holds per-status counts.
type Summary struct {
	TotalProducts   int    `json:"totalProducts"`
	TotalVariations int    `json:"totalVariations"`
	Complete        Counts `json:"complete"`
	Fixable         Counts `json:"fixable"`
	MissingCost     Counts `json:"missingCost"`
}

// Total is every product and variation reviewed.
func (s Summary) Total() int { return s.TotalProducts + s.TotalVariations }

// Row is one line of the detail listing.
type Row struct {
	EntityType        string           `json:"entityType"`
	ID                int64            `json:"id"`
	ParentID          int64            `json:"parentId,omitempty"`
	ProductType       string           `json:"productType"`
	SKU               string           `json:"sku"`
	Name              string           `json:"name"`
	Status            reconcile.Status `json:"status"`
	Reason            string           `json:"reason"`
	Cost              *float64         `json:"cost"`
	CurrentWholesale  *float64         `json:"currentWholesale"`
	ExpectedWholesale *float64         `json:"expectedWholesale"`
}

// Run loads a fresh snapshot and audits it.
func Run(ctx context.Context, cat adapter.Catalog, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	snap, err := catalog.Load(ctx, cat, catalog.Options{
		CostKey:      opts.CostKey,
		WholesaleKey: opts.WholesaleKey,
		Resolver:     opts.Resolver,
		Logger:       logger,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	report := Build(snap, opts)
	opts.Metrics.RecordRun(driverName, time.Since(start))
	logger.Info("audit complete",
		"run_id", report.RunID,
		"complete", report.Summary.Complete.Total(),
		"fixable", report.Summary.Fixable.Total(),
		"missing_cost", report.Summary.MissingCost.Total(),
		"errors", len(report.Errors),
		"duration", time.Since(start),
	)
	return report, nil
}

// Build classifies every item of snap. Simple products and variations are
// classified with the audit tolerance; variable products get the status
// aggregated from their variations, listed after them.
func Build(snap *catalog.Snapshot, opts Options) *Report {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &Report{
		RunID:       runID,
		GeneratedAt: now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Config: ReportConfig{
			MarkupPercent: opts.MarkupPercent,
			CostKey:       snap.CostKey,
			WholesaleKey:  snap.WholesaleKey,
		},
		Summary: Summary{
			TotalProducts:   len(snap.Products),
			TotalVariations: snap.TotalVariations,
		},
		MissingCost: []Row{},
		Fixable:     []Row{},
		Errors:      snap.Errors,
		Details:     []Row{},
	}
	if r.Errors == nil {
		r.Errors = []catalog.ItemError{}
	}

	for _, p := range snap.Products {
		if p.Item.IsVariable() {
			r.addVariable(p, snap, opts)
			continue
		}

		res := reconcile.Classify(p.Item.Meta, snap.CostKey, snap.WholesaleKey, opts.MarkupPercent, reconcile.AuditTolerance)
		row := productRow(p.Item, res)
		r.Details = append(r.Details, row)
		r.count(row, false, opts.Metrics)
	}
	return r
}

func (r *Report) addVariable(p catalog.Product, snap *catalog.Snapshot, opts Options) {
	results := make([]reconcile.Result, 0, len(p.Variations))
	for _, v := range p.Variations {
		entries := v.Meta
		if opts.InheritParentCost {
			entries = reconcile.WithParentCost(entries, p.Item.Meta, snap.CostKey)
		}
		res := reconcile.Classify(entries, snap.CostKey, snap.WholesaleKey, opts.MarkupPercent, reconcile.AuditTolerance)
		results = append(results, res)

		row := Row{
			EntityType:        "variation",
			ID:                v.ID,
			ParentID:          p.Item.ID,
			ProductType:       string(model.KindVariation),
			SKU:               v.SKU,
			Name:              catalog.VariationName(v, p.Item),
			Status:            res.Status,
			Reason:            res.Reason,
			Cost:              res.Cost,
			CurrentWholesale:  res.CurrentPrice,
			ExpectedWholesale: res.ExpectedPrice,
		}
		r.Details = append(r.Details, row)
		r.count(row, true, opts.Metrics)
	}

	agg := reconcile.AggregateVariations(results)
	row := productRow(p.Item, reconcile.Result{Status: agg.Status, Reason: agg.Reason})
	r.Details = append(r.Details, row)

	// The product row is only listed on its own when nothing below it
	// could be listed.
	switch agg.Status {
	case reconcile.StatusComplete:
		r.Summary.Complete.Products++
	case reconcile.StatusFixable:
		r.Summary.Fixable.Products++
	case reconcile.StatusMissingCost:
		r.Summary.MissingCost.Products++
		if len(p.Variations) == 0 {
			r.MissingCost = append(r.MissingCost, row)
		}
	}
	opts.Metrics.RecordItem(driverName, "product", string(agg.Status))
}

func (r *Report) count(row Row, variation bool, rec *metrics.Recorder) {
	var c *Counts
	switch row.Status {
	case reconcile.StatusComplete:
		c = &r.Summary.Complete
	case reconcile.StatusFixable:
		c = &r.Summary.Fixable
		r.Fixable = append(r.Fixable, row)
	case reconcile.StatusMissingCost:
		c = &r.Summary.MissingCost
		r.MissingCost = append(r.MissingCost, row)
	default:
		return
	}
	if variation {
		c.Variations++
	} else {
		c.Products++
	}
	rec.RecordItem(driverName, row.EntityType, string(row.Status))
}

func productRow(p model.CatalogItem, res reconcile.Result) Row {
	return Row{
		EntityType:        "product",
		ID:                p.ID,
		ProductType:       catalog.ProductType(p),
		SKU:               p.SKU,
		Name:              p.Name,
		Status:            res.Status,
		Reason:            res.Reason,
		Cost:              res.Cost,
		CurrentWholesale:  res.CurrentPrice,
		ExpectedWholesale: res.ExpectedPrice,
	}
}
