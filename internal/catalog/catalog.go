// Package catalog loads a point-in-time snapshot of the store for one run.
//
// The traversal is sequential: all products, then for each variable product
// its variations. Meta key detection happens along the way, in the same
// order, so the first product or variation carrying a recognizable key
// decides it.
package catalog

import (
	"context"
	"log/slog"

	"costplus/internal/adapter"
	"costplus/internal/keys"
	"costplus/internal/metrics"
	"costplus/internal/model"
)

// ErrTypeVariationFetch marks a failed variation listing.
const ErrTypeVariationFetch = "variation_fetch_error"

// ItemError is a recoverable per-product failure. The product stays in the
// snapshot with no variations.
type ItemError struct {
	Type        string `json:"type"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Message     string `json:"message"`
}

// Product is a top-level catalog item with its variations, if any.
type Product struct {
	Item       model.CatalogItem
	Variations []model.CatalogItem
}

// Snapshot is everything one run reads from the store.
type Snapshot struct {
	Products        []Product
	Errors          []ItemError
	TotalVariations int
	CostKey         string
	WholesaleKey    string
}

// Options configures Load.
type Options struct {
	// CostKey and WholesaleKey skip detection when set.
	CostKey      string
	WholesaleKey string
	Resolver     keys.KeyResolver // Default: keys.RankedResolver
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
}

// Load walks the whole catalog and resolves both meta keys.
// A product listing failure or an unresolved key is fatal; a variation
// listing failure is recorded in Snapshot.Errors.
func Load(ctx context.Context, cat adapter.Catalog, opts Options) (*Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := keys.NewTracker(opts.Resolver, opts.CostKey, opts.WholesaleKey)

	products, err := cat.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded products", "count", len(products))

	snap := &Snapshot{Products: make([]Product, 0, len(products))}
	for _, p := range products {
		tracker.Observe(p.Meta)

		if !p.IsVariable() {
			snap.Products = append(snap.Products, Product{Item: p})
			continue
		}

		variations, err := cat.ListVariations(ctx, p.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("variation fetch failed",
				"product_id", p.ID,
				"product", p.Name,
				"error", err,
			)
			opts.Metrics.RecordItemError(ErrTypeVariationFetch)
			snap.Errors = append(snap.Errors, ItemError{
				Type:        ErrTypeVariationFetch,
				ProductID:   p.ID,
				ProductName: p.Name,
				Message:     err.Error(),
			})
			variations = nil
		}

		for _, v := range variations {
			if tracker.Done() {
				break
			}
			tracker.Observe(v.Meta)
		}

		snap.TotalVariations += len(variations)
		snap.Products = append(snap.Products, Product{Item: p, Variations: variations})
	}

	costKey, wholesaleKey, err := tracker.Result()
	if err != nil {
		return nil, err
	}
	snap.CostKey = costKey
	snap.WholesaleKey = wholesaleKey

	logger.Info("resolved meta keys",
		"cost_key", costKey,
		"wholesale_key", wholesaleKey,
		"products", len(snap.Products),
		"variations", snap.TotalVariations,
		"errors", len(snap.Errors),
	)
	return snap, nil
}

// VariationName is the display name of a variation, falling back to its
// parent's name for stores that don't send one.
func VariationName(v, parent model.CatalogItem) string {
	if v.Name != "" {
		return v.Name
	}
	return parent.Name
}

// ProductType is the report label for a top-level product.
func ProductType(p model.CatalogItem) string {
	if p.Kind == "" {
		return string(model.KindSimple)
	}
	return string(p.Kind)
}
