package offer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalStripsQueryAndFragment(t *testing.T) {
	base := "https://articulo.mercadolibre.com.mx/MLM-123456-audifonos-_JM"
	withTracking := base + "?tracking_id=abc&position=3#polycard_client=offers"

	assert.Equal(t, base, Canonical(withTracking, ""))
	assert.Equal(t, Canonical(base, ""), Canonical(base+"?searchVariation=999", ""))
}

func TestCanonicalIsIdempotent(t *testing.T) {
	inputs := []string{
		"https://articulo.mercadolibre.com.mx/MLM-1-x-_JM?a=1#b",
		"HTTPS://WWW.Example.com/Path/To/Item?x=1",
		"https://example.com",
		"not a url?with=query",
		"/relative/path#frag",
		"",
	}
	for _, in := range inputs {
		once := Canonical(in, "MLM999")
		assert.Equal(t, once, Canonical(once, "MLM999"), in)
	}
}

func TestCanonicalFallsBackToID(t *testing.T) {
	assert.Equal(t, "MLM42", Canonical("", " MLM42 "))
	assert.Equal(t, "MLM42", Canonical("  ", "MLM42"))
}

func TestAffiliateKey(t *testing.T) {
	a := AffiliateKey("https://Articulo.MercadoLibre.com.mx/MLM-1?Variation=2#reviews")
	b := AffiliateKey("https://articulo.mercadolibre.com.mx/mlm-1?variation=2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, AffiliateKey("https://articulo.mercadolibre.com.mx/mlm-1?variation=3"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$1,299", 1299},
		{"1299.00", 1299},
		{"$ 1,299.50", 1299.5},
		{"1.299,50", 1299.5},
		{"12.345.678", 12345678},
		{"999", 999},
		{"49,9", 49.9},
		{"$1.299", 1299},
		{"$2.000", 2000},
		{"$12.999", 12999},
		{"0.500", 0.5},
		{"1299.5", 1299.5},
		{"", 0},
		{"gratis", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAmount(tt.in), tt.in)
	}
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 1234, ParseCount("(1,234)"))
	assert.Equal(t, 500, ParseCount("+500 vendidos"))
	assert.Equal(t, 5000, ParseCount("+5mil vendidos"))
	assert.Equal(t, 0, ParseCount(""))
}

func TestFromRawDefaults(t *testing.T) {
	o := FromRaw(Raw{
		ID:        "MLM1",
		Title:     "  Audífonos inalámbricos ",
		Price:     "$500",
		Permalink: "https://articulo.mercadolibre.com.mx/MLM-1?x=1",
	})
	assert.Equal(t, "Audífonos inalámbricos", o.Title)
	assert.Equal(t, 500.0, o.OriginalPrice)
	assert.Equal(t, 0.0, o.Rating)
	assert.Equal(t, 0, o.ReviewCount)
	assert.Equal(t, 0, o.SoldQuantity)
	assert.Equal(t, "https://articulo.mercadolibre.com.mx/MLM-1", o.Key)
	assert.False(t, o.Valid())
}

func TestDiscount(t *testing.T) {
	o := Offer{Title: "x", Price: 400, OriginalPrice: 1000}
	assert.InDelta(t, 0.6, o.Discount(), 1e-9)
	assert.Equal(t, 60, o.RoundedDiscountPct())
	assert.True(t, o.Valid())

	assert.Equal(t, 0.0, Offer{Price: 1000, OriginalPrice: 1000}.Discount())
	assert.Equal(t, 0.0, Offer{Price: 0, OriginalPrice: 1000}.Discount())
}

func TestCollapseKeepsLowerPrice(t *testing.T) {
	offers := Ingest([]Raw{
		{ID: "A", Title: "Bocina", Price: "$1,299", OriginalPrice: "$2,000", Permalink: "https://x.mx/item-a?pos=1"},
		{ID: "B", Title: "Reloj", Price: "900", OriginalPrice: "1500", Permalink: "https://x.mx/item-b"},
		{ID: "A2", Title: "Bocina", Price: "1299.00", OriginalPrice: "2000.00", Permalink: "https://x.mx/item-a?pos=7"},
		{ID: "A3", Title: "Bocina", Price: "1199.00", OriginalPrice: "2000.00", Permalink: "https://x.mx/item-a#top"},
	})

	out := Collapse(offers)
	assert.Len(t, out, 2)
	assert.Equal(t, "A3", out[0].ID)
	assert.Equal(t, 1199.0, out[0].Price)
	assert.Equal(t, "B", out[1].ID)
}

func TestCollapseSamePriceDifferentFormatting(t *testing.T) {
	offers := Ingest([]Raw{
		{ID: "first", Title: "Bocina", Price: "$1,299", OriginalPrice: "$2,000", Permalink: "https://x.mx/item-a?utm=1"},
		{ID: "second", Title: "Bocina", Price: "1299.00", OriginalPrice: "2000", Permalink: "https://x.mx/item-a?utm=2"},
		{ID: "third", Title: "Bocina", Price: "$1.299", OriginalPrice: "$2.000", Permalink: "https://x.mx/item-a?utm=3"},
	})

	out := Collapse(offers)
	assert.Len(t, out, 1)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, 1299.0, out[0].Price)
	assert.Equal(t, 2000.0, out[0].OriginalPrice)
}
