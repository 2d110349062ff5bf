package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplus/internal/adapter"
	"costplus/internal/model"
)

func meta(kv ...string) []model.MetadataEntry {
	var out []model.MetadataEntry
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.MetadataEntry{Key: kv[i], Value: model.NewMetaValue(kv[i+1])})
	}
	return out
}

func TestLoad_DetectsKeysFromVariations(t *testing.T) {
	cat := &adapter.Mock{
		Products: []model.CatalogItem{
			{ID: 1, Name: "Plain", Kind: model.KindSimple, Meta: meta("_price", "5")},
			{ID: 2, Name: "Shirt", Kind: model.KindVariable},
		},
		Variations: map[int64][]model.CatalogItem{
			2: {
				{ID: 21, ParentID: 2, Kind: model.KindVariation, Meta: meta("_wc_cog_cost", "4")},
				{ID: 22, ParentID: 2, Kind: model.KindVariation, Meta: meta("wholesalex_b2b_role_3_base_price", "6")},
			},
		},
	}

	snap, err := Load(context.Background(), cat, Options{})
	require.NoError(t, err)

	assert.Equal(t, "_wc_cog_cost", snap.CostKey)
	assert.Equal(t, "wholesalex_b2b_role_3_base_price", snap.WholesaleKey)
	assert.Equal(t, 2, snap.TotalVariations)
	require.Len(t, snap.Products, 2)
	assert.Len(t, snap.Products[1].Variations, 2)
	assert.Empty(t, snap.Errors)
}

func TestLoad_VariationFetchErrorIsRecorded(t *testing.T) {
	cat := &adapter.Mock{
		Products: []model.CatalogItem{
			{ID: 1, Name: "Hoodie", Kind: model.KindVariable},
			{ID: 2, Name: "Mug", Kind: model.KindSimple, Meta: meta("mycost", "3", "wholesalex_b2b_role_1_base_price", "3.60")},
		},
		VariationErrors: map[int64]error{
			1: model.NewStatusError(500, "", "boom"),
		},
	}

	snap, err := Load(context.Background(), cat, Options{})
	require.NoError(t, err)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, ItemError{
		Type:        ErrTypeVariationFetch,
		ProductID:   1,
		ProductName: "Hoodie",
		Message:     "Woo API error 500: boom",
	}, snap.Errors[0])
	assert.Empty(t, snap.Products[0].Variations)
	assert.Equal(t, 0, snap.TotalVariations)
}

func TestLoad_ProductListingErrorIsFatal(t *testing.T) {
	want := model.NewStatusError(401, "woocommerce_rest_cannot_view", "nope")
	cat := &adapter.Mock{
		ListProductsFunc: func(context.Context) ([]model.CatalogItem, error) { return nil, want },
	}

	_, err := Load(context.Background(), cat, Options{})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestLoad_UnresolvedKeys(t *testing.T) {
	cat := &adapter.Mock{
		Products: []model.CatalogItem{{ID: 1, Kind: model.KindSimple, Meta: meta("mycost", "3")}},
	}

	_, err := Load(context.Background(), cat, Options{})
	var kre *model.KeyResolutionError
	require.True(t, errors.As(err, &kre))
	assert.Equal(t, "--wholesale-key", kre.Flag)

	snap, err := Load(context.Background(), cat, Options{WholesaleKey: "custom_price"})
	require.NoError(t, err)
	assert.Equal(t, "mycost", snap.CostKey)
	assert.Equal(t, "custom_price", snap.WholesaleKey)
}

func TestLoad_EmptyCatalog(t *testing.T) {
	_, err := Load(context.Background(), &adapter.Mock{}, Options{})
	assert.ErrorIs(t, err, model.ErrKeyResolution)

	snap, err := Load(context.Background(), &adapter.Mock{}, Options{CostKey: "c", WholesaleKey: "w"})
	require.NoError(t, err)
	assert.Empty(t, snap.Products)
}

func TestVariationName(t *testing.T) {
	parent := model.CatalogItem{Name: "Shirt"}
	assert.Equal(t, "Shirt - Large", VariationName(model.CatalogItem{Name: "Shirt - Large"}, parent))
	assert.Equal(t, "Shirt", VariationName(model.CatalogItem{}, parent))
}
