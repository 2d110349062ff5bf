package adapter

import (
	"context"
	"sync"

	"costplus/internal/model"
)

// Mock implements Catalog for testing.
// By default it serves Products and Variations from memory and applies
// writes to them, so a second run observes the first run's corrections.
// Each method can be overridden via function fields.
type Mock struct {
	Products        []model.CatalogItem
	Variations      map[int64][]model.CatalogItem
	VariationErrors map[int64]error

	ListProductsFunc   func(ctx context.Context) ([]model.CatalogItem, error)
	ListVariationsFunc func(ctx context.Context, productID int64) ([]model.CatalogItem, error)
	UpdateMetaFunc     func(ctx context.Context, item model.CatalogItem, entries []model.MetadataEntry) error

	mu          sync.Mutex
	Writes      []Write
	nextEntryID int64
}

// Write records one UpdateMeta call.
type Write struct {
	Item    model.CatalogItem
	Entries []model.MetadataEntry
}

// ListProducts calls the configured ListProductsFunc or returns Products.
func (m *Mock) ListProducts(ctx context.Context) ([]model.CatalogItem, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.Products), nil
}

// ListVariations calls the configured ListVariationsFunc, returns the
// configured error for productID, or returns its Variations.
func (m *Mock) ListVariations(ctx context.Context, productID int64) ([]model.CatalogItem, error) {
	if m.ListVariationsFunc != nil {
		return m.ListVariationsFunc(ctx, productID)
	}
	if err := m.VariationErrors[productID]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.Variations[productID]), nil
}

// UpdateMeta records the write, then calls UpdateMetaFunc or applies the
// entries to the in-memory catalog.
func (m *Mock) UpdateMeta(ctx context.Context, item model.CatalogItem, entries []model.MetadataEntry) error {
	m.mu.Lock()
	m.Writes = append(m.Writes, Write{Item: item, Entries: entries})
	m.mu.Unlock()

	if m.UpdateMetaFunc != nil {
		return m.UpdateMetaFunc(ctx, item, entries)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if item.Kind == model.KindVariation {
		vs := m.Variations[item.ParentID]
		for i := range vs {
			if vs[i].ID == item.ID {
				vs[i].Meta = m.applyMeta(vs[i].Meta, entries)
			}
		}
		return nil
	}
	for i := range m.Products {
		if m.Products[i].ID == item.ID {
			m.Products[i].Meta = m.applyMeta(m.Products[i].Meta, entries)
		}
	}
	return nil
}

// WriteCount returns the number of UpdateMeta calls so far.
func (m *Mock) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Writes)
}

// applyMeta mimics WordPress: an entry with an ID replaces that entry,
// one without is appended with a fresh ID.
func (m *Mock) applyMeta(meta, updates []model.MetadataEntry) []model.MetadataEntry {
	out := append([]model.MetadataEntry(nil), meta...)
	for _, u := range updates {
		replaced := false
		if u.EntryID != 0 {
			for i := range out {
				if out[i].EntryID == u.EntryID {
					out[i].Key = u.Key
					out[i].Value = u.Value
					replaced = true
					break
				}
			}
		}
		if !replaced {
			m.nextEntryID++
			u.EntryID = 100000 + m.nextEntryID
			out = append(out, u)
		}
	}
	return out
}

func cloneItems(items []model.CatalogItem) []model.CatalogItem {
	if items == nil {
		return nil
	}
	out := make([]model.CatalogItem, len(items))
	for i, it := range items {
		it.Meta = append([]model.MetadataEntry(nil), it.Meta...)
		out[i] = it
	}
	return out
}

// Verify Mock implements Catalog interface at compile time.
var _ Catalog = (*Mock)(nil)
