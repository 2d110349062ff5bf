// Package woocommerce implements the catalog client for WooCommerce stores
// using the REST API v3.
// All WooCommerce-specific types, transforms, and HTTP client logic live here.
package woocommerce

import (
	"encoding/json"
	"strings"

	"costplus/internal/model"
)

// === WooCommerce API Response Types ===

// WooProduct is a product or variation as returned by
// GET /products and GET /products/{id}/variations.
// Only the fields the price rule needs are decoded.
type WooProduct struct {
	ID       int64     `json:"id"`
	ParentID int64     `json:"parent_id"`
	Name     string    `json:"name"`
	SKU      string    `json:"sku"`
	Type     string    `json:"type"`   // simple, variable, grouped, external; absent on older variations
	Status   string    `json:"status"` // publish, draft, private, ...
	MetaData []WooMeta `json:"meta_data"`
}

// WooMeta is one meta_data entry. Value is untyped in WordPress: strings,
// numbers, objects and arrays all occur, so it is kept raw until normalized.
type WooMeta struct {
	ID    int64           `json:"id"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// WooErrorResponse represents a WooCommerce API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// WooSystemStatus is the subset of GET /system_status used by the doctor.
type WooSystemStatus struct {
	Environment struct {
		Version   string `json:"version"`
		WPVersion string `json:"wp_version"`
		SiteURL   string `json:"site_url"`
	} `json:"environment"`
}

// === WooCommerce API Request Types ===

// WooMetaUpdate is one entry of a meta_data write. ID is omitted for inserts.
type WooMetaUpdate struct {
	ID    int64  `json:"id,omitempty"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WooMetaUpdateRequest is the body of PUT /products/{id} and
// PUT /products/{id}/variations/{vid}.
type WooMetaUpdateRequest struct {
	MetaData []WooMetaUpdate `json:"meta_data"`
}

// === Transforms ===

// ToCatalogItem normalizes a REST product. Variations are always tagged
// KindVariation, whatever the store reports in type.
func ToCatalogItem(p WooProduct, variation bool) model.CatalogItem {
	item := model.CatalogItem{
		ID:       p.ID,
		ParentID: p.ParentID,
		Name:     p.Name,
		SKU:      p.SKU,
		Kind:     model.NormalizeKind(p.Type),
		Meta:     toMetadataEntries(p.MetaData),
	}
	if variation {
		item.Kind = model.KindVariation
	}
	return item
}

func toMetadataEntries(in []WooMeta) []model.MetadataEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.MetadataEntry, 0, len(in))
	for _, m := range in {
		out = append(out, model.MetadataEntry{
			Key:     m.Key,
			Value:   model.MetaValueFromJSON(m.Value),
			EntryID: m.ID,
		})
	}
	return out
}

// toMetaUpdateRequest builds the write payload. Values are sent as their
// string form, which for prices is the fixed 2-decimal rendering.
func toMetaUpdateRequest(entries []model.MetadataEntry) WooMetaUpdateRequest {
	req := WooMetaUpdateRequest{MetaData: make([]WooMetaUpdate, 0, len(entries))}
	for _, e := range entries {
		var value string
		if e.Value != nil {
			value = e.Value.String()
		}
		req.MetaData = append(req.MetaData, WooMetaUpdate{
			ID:    e.EntryID,
			Key:   e.Key,
			Value: value,
		})
	}
	return req
}

// errorMessage extracts the best available message from an error body:
// the JSON message, else the raw text.
func errorMessage(body []byte) (code, message string) {
	var wcErr WooErrorResponse
	if err := json.Unmarshal(body, &wcErr); err == nil && wcErr.Message != "" {
		return wcErr.Code, wcErr.Message
	}
	return wcErr.Code, strings.TrimSpace(string(body))
}
