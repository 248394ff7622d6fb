// Package scorer ranks surviving candidates by discount depth.
package scorer

import (
	"math"
	"sort"

	"sjsage522/promobot/internal/offer"
)

// Rejected is the score of a candidate that must not be published
const Rejected = -1.0

// floorDiscount is the smallest discount ever scored, whatever the config says
const floorDiscount = 0.20

// cheapPenalty is subtracted from items below MinTicket
const cheapPenalty = 50.0

// Scorer turns discounts into sortable scores
type Scorer struct {
	// MinDiscount is the minimum discount fraction; values below 0.20 are raised
	MinDiscount float64
	// MinTicket penalizes items cheaper than this amount
	MinTicket float64
}

// New creates a scorer
func New(minDiscount, minTicket float64) *Scorer {
	return &Scorer{MinDiscount: minDiscount, MinTicket: minTicket}
}

// Score returns the score (0-100 scale, or Rejected) and the discount fraction
func (s *Scorer) Score(o offer.Offer) (float64, float64) {
	score, discount, _ := s.evaluate(o)
	return score, discount
}

// evaluate also reports acceptance, since a penalized score may equal Rejected
func (s *Scorer) evaluate(o offer.Offer) (float64, float64, bool) {
	if !o.PricesValid() {
		return Rejected, 0, false
	}
	discount := (o.OriginalPrice - o.Price) / o.OriginalPrice
	if discount < math.Max(s.MinDiscount, floorDiscount) {
		return Rejected, discount, false
	}

	score := discount * 100
	if o.Price < s.MinTicket {
		score -= cheapPenalty
	}
	return score, discount, true
}

// Weighted scales a score by confidence; 0.5 confidence keeps the score as is
func Weighted(o offer.Offer) float64 {
	return o.Score * (0.5 + o.Confidence)
}

// Apply scores every offer and returns the ones with a positive score, with
// Score and DiscountPct set. Cheap items whose penalty cancels the discount
// are dropped.
func (s *Scorer) Apply(offers []offer.Offer) []offer.Offer {
	out := make([]offer.Offer, 0, len(offers))
	for _, o := range offers {
		score, discount, ok := s.evaluate(o)
		if !ok || score <= 0 {
			continue
		}
		o.Score = score
		o.DiscountPct = discount * 100
		out = append(out, o)
	}
	return out
}

// Rank sorts offers in place, best first. Ties keep their input order.
func Rank(offers []offer.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return Weighted(offers[i]) > Weighted(offers[j])
	})
}

// Top returns at most n offers from the head of a ranked slice
func Top(offers []offer.Offer, n int) []offer.Offer {
	if n < 0 || n >= len(offers) {
		return offers
	}
	return offers[:n]
}
