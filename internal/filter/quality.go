package filter

import (
	"strings"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
)

// Official promo labels, keyed by the folded text that identifies them
var officialTags = []struct {
	match string
	label string
}{
	{"relampago", "⚡ Oferta Relámpago"},
	{"imperdible", "💎 Imperdible"},
	{"oferta del dia", "⏰ Oferta del Día"},
	{"mas vendido", "🔥 Más Vendido"},
	{"recomendado", "⭐ Recomendado"},
}

const fullLabel = "⚡ FULL"

var strongPromos = []string{"relampago", "imperdible", "oferta del dia", "full", "mas vendido"}

// HasStrongPromo reports whether the tag carries a strong platform promotion
func HasStrongPromo(tag string) bool {
	folded := helpers.FoldText(tag)
	for _, p := range strongPromos {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

// IsLowQuality rejects listings with a poor rating, or with no signal at all
func IsLowQuality(o offer.Offer) bool {
	if o.ReviewCount >= 10 && o.Rating < 3.5 {
		return true
	}
	return o.SoldQuantity < 50 && !HasStrongPromo(o.PromoTag) && o.Rating == 0
}

// NormalizeTag maps a raw badge to its official label and keeps the FULL
// fulfillment marker. Unknown non-empty tags are returned unchanged.
func NormalizeTag(raw string) string {
	folded := helpers.FoldText(raw)

	tag := ""
	for _, t := range officialTags {
		if strings.Contains(folded, t.match) {
			tag = t.label
			break
		}
	}

	if strings.Contains(folded, "full") {
		switch {
		case tag == "":
			tag = fullLabel
		case !strings.Contains(strings.ToUpper(tag), "FULL"):
			tag = tag + " | " + fullLabel
		}
	}

	if tag == "" {
		return strings.TrimSpace(raw)
	}
	return tag
}

// Enrich normalizes the promo tag and, for listings without any rating or
// reviews, fills in the quality signals implied by the platform promotion.
func Enrich(o offer.Offer) offer.Offer {
	o.PromoTag = NormalizeTag(o.PromoTag)

	if o.Rating == 0 && o.ReviewCount == 0 && o.PromoTag != "" {
		folded := helpers.FoldText(o.PromoTag)
		if strings.Contains(folded, "relampago") || strings.Contains(folded, "mas vendido") || strings.Contains(folded, "full") {
			o.Rating, o.ReviewCount, o.SoldQuantity = 4.5, 100, 500
		} else {
			o.Rating, o.ReviewCount, o.SoldQuantity = 4.0, 50, 100
		}
	}
	return o
}
