// Package adapter defines the interface between the reconciliation drivers
// and a remote product catalog.
package adapter

import (
	"context"

	"costplus/internal/model"
)

// Catalog abstracts the store operations the drivers need.
// The WooCommerce REST client is the production implementation; Mock backs
// the driver tests.
//
// Implementations return items in remote order and normalize meta values
// to model.MetaValue before returning.
type Catalog interface {
	// ListProducts returns every product of any status, following pagination
	// to the end.
	ListProducts(ctx context.Context) ([]model.CatalogItem, error)

	// ListVariations returns every variation of a variable product.
	ListVariations(ctx context.Context, productID int64) ([]model.CatalogItem, error)

	// UpdateMeta writes meta entries on a product or variation.
	// Entries carrying an EntryID update the existing entry; others insert.
	UpdateMeta(ctx context.Context, item model.CatalogItem, entries []model.MetadataEntry) error
}
