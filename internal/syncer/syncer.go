// Package syncer writes the expected cost-plus wholesale price to every
// product and variation whose stored price is missing or off.
package syncer

import (
	"context"
	"fmt"
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

const driverName = "sync"

// Mode names how a run treats planned changes.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// Options configures a sync run. The zero value is a dry run.
type Options struct {
	MarkupPercent float64
	CostKey       string
	WholesaleKey  string
	Apply         bool
	// OnlyMissing restricts writes to items with no stored price.
	OnlyMissing       bool
	InheritParentCost bool

	RunID    string // Default: random UUID
	Resolver keys.KeyResolver
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

// EntityStats counts one entity type.
type EntityStats struct {
	Reviewed    int `json:"reviewed"`
	MissingCost int `json:"missingCost"`
	NeedsUpdate int `json:"needsUpdate"`
	Updated     int `json:"updated"`
}

// Stats splits counts between simple products and variations.
type Stats struct {
	Simple    EntityStats `json:"simple"`
	Variation EntityStats `json:"variation"`
}

// Change is one planned or applied price write.
type Change struct {
	EntityType string   `json:"entityType"`
	ID         int64    `json:"id"`
	ParentID   int64    `json:"parentId,omitempty"`
	Name       string   `json:"name"`
	Cost       float64  `json:"cost"`
	Current    *float64 `json:"current"`
	Expected   float64  `json:"expected"`
	Value      string   `json:"value"`
	Applied    bool     `json:"applied"`
}

// Result is the outcome of a run. It is returned even when a write fails,
// holding everything done up to the failure.
type Result struct {
	RunID         string              `json:"runId"`
	Mode          Mode                `json:"mode"`
	MarkupPercent float64             `json:"markupPercent"`
	OnlyMissing   bool                `json:"onlyMissing"`
	CostKey       string              `json:"costKey"`
	WholesaleKey  string              `json:"wholesaleKey"`
	StartedAt     time.Time           `json:"startedAt"`
	FinishedAt    time.Time           `json:"finishedAt"`
	Stats         Stats               `json:"stats"`
	Changes       []Change            `json:"changes"`
	Errors        []catalog.ItemError `json:"errors"`
}

// Run loads a fresh snapshot and corrects it. In dry-run mode nothing is
// written; changes are only counted and listed.
func Run(ctx context.Context, cat adapter.Catalog, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	res := &Result{
		RunID:         opts.RunID,
		Mode:          ModeDryRun,
		MarkupPercent: opts.MarkupPercent,
		OnlyMissing:   opts.OnlyMissing,
		StartedAt:     now().UTC(),
		Changes:       []Change{},
		Errors:        []catalog.ItemError{},
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	if opts.Apply {
		res.Mode = ModeApply
	}
	logger = logger.With("run_id", res.RunID, "mode", string(res.Mode))
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
	res.CostKey = snap.CostKey
	res.WholesaleKey = snap.WholesaleKey
	if len(snap.Errors) > 0 {
		res.Errors = snap.Errors
	}

	s := &syncer{cat: cat, opts: opts, res: res, logger: logger}
	err = s.run(ctx, snap)

	res.FinishedAt = now().UTC()
	opts.Metrics.RecordRun(driverName, time.Since(start))

	attrs := []any{
		"needs_update", res.Stats.Simple.NeedsUpdate + res.Stats.Variation.NeedsUpdate,
		"updated", res.Stats.Simple.Updated + res.Stats.Variation.Updated,
		"missing_cost", res.Stats.Simple.MissingCost + res.Stats.Variation.MissingCost,
		"duration", time.Since(start),
	}
	if err != nil {
		logger.Error("sync aborted", append(attrs, "error", err)...)
		return res, err
	}
	logger.Info("sync complete", attrs...)
	return res, nil
}

type syncer struct {
	cat    adapter.Catalog
	opts   Options
	res    *Result
	logger *slog.Logger
}

func (s *syncer) run(ctx context.Context, snap *catalog.Snapshot) error {
	for _, p := range snap.Products {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !p.Item.IsVariable() {
			if err := s.reconcile(ctx, p.Item, p.Item.Meta, &s.res.Stats.Simple, snap); err != nil {
				return err
			}
			continue
		}

		for _, v := range p.Variations {
			entries := v.Meta
			if s.opts.InheritParentCost {
				entries = reconcile.WithParentCost(entries, p.Item.Meta, snap.CostKey)
			}
			if v.Name == "" {
				v.Name = catalog.VariationName(v, p.Item)
			}
			if err := s.reconcile(ctx, v, entries, &s.res.Stats.Variation, snap); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconcile handles one simple product or variation. entries is the meta
// used for classification; the write always targets item's own entries.
func (s *syncer) reconcile(ctx context.Context, item model.CatalogItem, entries []model.MetadataEntry, st *EntityStats, snap *catalog.Snapshot) error {
	entity := item.EntityType()
	st.Reviewed++

	r := reconcile.Classify(entries, snap.CostKey, snap.WholesaleKey, s.opts.MarkupPercent, reconcile.SyncTolerance)
	s.opts.Metrics.RecordItem(driverName, entity, string(r.Status))

	switch r.Status {
	case reconcile.StatusMissingCost:
		st.MissingCost++
		return nil
	case reconcile.StatusComplete:
		return nil
	}
	if !reconcile.NeedsWrite(r, s.opts.OnlyMissing) {
		return nil
	}

	st.NeedsUpdate++
	value := reconcile.FormatPrice(*r.ExpectedPrice)
	change := Change{
		EntityType: entity,
		ID:         item.ID,
		ParentID:   item.ParentID,
		Name:       item.Name,
		Cost:       *r.Cost,
		Current:    r.CurrentPrice,
		Expected:   *r.ExpectedPrice,
		Value:      value,
	}

	if !s.opts.Apply {
		s.res.Changes = append(s.res.Changes, change)
		s.logger.Debug("would update wholesale price",
			"entity", entity,
			"id", item.ID,
			"current", model.FormatMoney(r.CurrentPrice),
			"expected", value,
		)
		return nil
	}

	update := reconcile.BuildMetaUpdate(item.Meta, snap.WholesaleKey, value)
	err := s.cat.UpdateMeta(ctx, item, update)
	s.opts.Metrics.RecordWrite(entity, err)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", entity, item.ID, err)
	}

	change.Applied = true
	st.Updated++
	s.res.Changes = append(s.res.Changes, change)
	s.logger.Info("updated wholesale price",
		"entity", entity,
		"id", item.ID,
		"current", model.FormatMoney(r.CurrentPrice),
		"expected", value,
	)
	return nil
}
