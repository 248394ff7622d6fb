// Package validator decides whether an advertised discount reflects a real
// price drop or an inflated "original" price.
package validator

import (
	"math"

	"sjsage522/promobot/internal/offer"
)

// Thresholds are the cutoffs of the decision procedure. Percentages are on
// a 0-100 scale, tolerances are fractions.
type Thresholds struct {
	// HistoryTolerance is how close to the 30-day low the price must be
	HistoryTolerance float64
	// PriceBeforeTolerance is how close the platform's previous price must
	// be to the advertised original
	PriceBeforeTolerance float64
	// HardRejectPct rejects any discount above it
	HardRejectPct float64
	// SuspiciousPct starts the band that needs social proof
	SuspiciousPct float64
	// MinGenuinePct is the smallest discount worth accepting
	MinGenuinePct float64
	// TrustedReviews and TrustedRating accept a suspicious discount
	TrustedReviews int
	TrustedRating  float64
	// MinSuspiciousReviews rejects a suspicious discount below it
	MinSuspiciousReviews int
}

// DefaultThresholds returns the stock cutoffs
func DefaultThresholds() Thresholds {
	return Thresholds{
		HistoryTolerance:     0.05,
		PriceBeforeTolerance: 0.10,
		HardRejectPct:        80,
		SuspiciousPct:        60,
		MinGenuinePct:        20,
		TrustedReviews:       500,
		TrustedRating:        4.5,
		MinSuspiciousReviews: 100,
	}
}

// History holds price references scraped from the product page. A zero
// field means the reference was not found.
type History struct {
	Lowest30d   float64 `json:"lowest_30d,omitempty"`
	Highest30d  float64 `json:"highest_30d,omitempty"`
	PriceBefore float64 `json:"price_before,omitempty"`
}

// Empty reports whether no reference was found
func (h *History) Empty() bool {
	return h == nil || (h.Lowest30d == 0 && h.Highest30d == 0 && h.PriceBefore == 0)
}

// Verdict reasons
const (
	ReasonInvalidPrices   = "invalid_prices"
	ReasonNearLow         = "near_30d_low"
	ReasonAboveLow        = "above_30d_low"
	ReasonPlatformPrice   = "platform_previous_price"
	ReasonTooDeep         = "too_deep"
	ReasonTrustedDeep     = "deep_with_social_proof"
	ReasonUnprovenDeep    = "deep_without_reviews"
	ReasonRealistic       = "realistic"
	ReasonTooSmall        = "too_small"
	ReasonDefaultAccepted = "default"
)

// Validator applies Thresholds to offers
type Validator struct {
	t Thresholds
}

// New creates a validator
func New(t Thresholds) *Validator {
	return &Validator{t: t}
}

// Thresholds returns the active cutoffs
func (v *Validator) Thresholds() Thresholds {
	return v.t
}

// IsReal reports whether the discount looks genuine. h may be nil.
func (v *Validator) IsReal(o offer.Offer, h *History) bool {
	ok, _ := v.Verdict(o, h)
	return ok
}

// Verdict is IsReal plus the rule that decided it. Rules apply in order:
// price sanity, 30-day low, platform previous price, discount bands.
func (v *Validator) Verdict(o offer.Offer, h *History) (bool, string) {
	if !o.PricesValid() {
		return false, ReasonInvalidPrices
	}

	if h != nil && h.Lowest30d > 0 {
		diff := math.Abs(o.Price-h.Lowest30d) / h.Lowest30d
		if diff < v.t.HistoryTolerance {
			return true, ReasonNearLow
		}
		if o.Price > h.Lowest30d*(1+v.t.HistoryTolerance) {
			return false, ReasonAboveLow
		}
	}

	if h != nil && h.PriceBefore > 0 {
		if math.Abs(o.OriginalPrice-h.PriceBefore)/o.OriginalPrice < v.t.PriceBeforeTolerance {
			return true, ReasonPlatformPrice
		}
	}

	pct := o.Discount() * 100
	if pct > v.t.HardRejectPct {
		return false, ReasonTooDeep
	}
	if pct > v.t.SuspiciousPct {
		if o.ReviewCount >= v.t.TrustedReviews && o.Rating >= v.t.TrustedRating {
			return true, ReasonTrustedDeep
		}
		if o.ReviewCount < v.t.MinSuspiciousReviews {
			return false, ReasonUnprovenDeep
		}
	}
	if pct >= v.t.MinGenuinePct && pct <= v.t.SuspiciousPct {
		return true, ReasonRealistic
	}
	if pct < v.t.MinGenuinePct {
		return false, ReasonTooSmall
	}
	return true, ReasonDefaultAccepted
}

// confidence adjustments, applied additively from a neutral 0.5
var (
	historyBands = []struct {
		below float64
		delta float64
	}{
		{0.02, 0.35},
		{0.05, 0.25},
		{0.10, 0.10},
	}
	historyPenalty = -0.20

	reviewBands = []struct {
		reviews int
		rating  float64
		delta   float64
	}{
		{1000, 4.5, 0.20},
		{500, 4.3, 0.10},
		{100, 4.0, 0.05},
	}
	fewReviews        = 50
	fewReviewsPenalty = -0.15
)

// Confidence estimates in [0,1] how likely the discount is genuine. It is
// used to reweight the score, never to reject.
func (v *Validator) Confidence(o offer.Offer, h *History) float64 {
	if o.Price <= 0 || o.OriginalPrice <= 0 {
		return 0
	}

	c := 0.5

	if h != nil && h.Lowest30d > 0 {
		diff := math.Abs(o.Price-h.Lowest30d) / h.Lowest30d
		delta := historyPenalty
		for _, b := range historyBands {
			if diff < b.below {
				delta = b.delta
				break
			}
		}
		c += delta
	}

	matched := false
	for _, b := range reviewBands {
		if o.ReviewCount >= b.reviews && o.Rating >= b.rating {
			c += b.delta
			matched = true
			break
		}
	}
	if !matched && o.ReviewCount < fewReviews {
		c += fewReviewsPenalty
	}

	pct := (o.OriginalPrice - o.Price) / o.OriginalPrice * 100
	switch {
	case pct >= 25 && pct <= 50:
		c += 0.15
	case pct > 50 && pct <= 70:
		c += 0.05
	case pct > 75:
		c -= 0.30
	}

	switch {
	case o.SoldQuantity >= 1000:
		c += 0.10
	case o.SoldQuantity >= 100:
		c += 0.05
	}

	return math.Max(0, math.Min(1, c))
}
