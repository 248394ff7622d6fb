// Package offer defines the candidate listing type that flows through a cycle,
// plus identity keys and ingestion helpers.
package offer

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Raw is a listing record as returned by a source, with display-formatted
// amounts.
type Raw struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Price         string `json:"price"`
	OriginalPrice string `json:"original_price"`
	Permalink     string `json:"permalink"`
	ImageURL      string `json:"image_url,omitempty"`
	PromoTag      string `json:"promo_tag,omitempty"`
	CouponText    string `json:"coupon_text,omitempty"`
	Category      string `json:"category,omitempty"`
	Rating        string `json:"rating,omitempty"`
	ReviewCount   string `json:"reviews_count,omitempty"`
	SoldQuantity  string `json:"sold_quantity,omitempty"`
}

// Offer is a candidate listing. Rating, ReviewCount and SoldQuantity are zero
// when the source did not report them. DiscountPct, Score and Confidence are
// derived by later stages.
type Offer struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	PromoTag      string  `json:"promo_tag,omitempty"`
	CouponText    string  `json:"coupon_text,omitempty"`
	Category      string  `json:"category,omitempty"`
	Rating        float64 `json:"rating"`
	ReviewCount   int     `json:"reviews_count"`
	SoldQuantity  int     `json:"sold_quantity"`
	ImageURL      string  `json:"image_url,omitempty"`
	Permalink     string  `json:"permalink"`
	Key           string  `json:"key"`

	DiscountPct float64 `json:"discount_pct"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
}

// FromRaw builds an Offer from a source record
func FromRaw(r Raw) Offer {
	o := Offer{
		ID:            strings.TrimSpace(r.ID),
		Title:         strings.TrimSpace(r.Title),
		Price:         ParseAmount(r.Price),
		OriginalPrice: ParseAmount(r.OriginalPrice),
		PromoTag:      strings.TrimSpace(r.PromoTag),
		CouponText:    strings.TrimSpace(r.CouponText),
		Category:      strings.TrimSpace(r.Category),
		Rating:        parseRating(r.Rating),
		ReviewCount:   ParseCount(r.ReviewCount),
		SoldQuantity:  ParseCount(r.SoldQuantity),
		ImageURL:      strings.TrimSpace(r.ImageURL),
		Permalink:     strings.TrimSpace(r.Permalink),
	}
	// A listing without a struck-through price is shown at its original price.
	if o.OriginalPrice == 0 {
		o.OriginalPrice = o.Price
	}
	o.Key = Canonical(o.Permalink, o.ID)
	o.DiscountPct = o.Discount() * 100
	return o
}

// Ingest converts a batch of source records
func Ingest(raws []Raw) []Offer {
	offers := make([]Offer, 0, len(raws))
	for _, r := range raws {
		offers = append(offers, FromRaw(r))
	}
	return offers
}

// PricesValid reports whether both amounts are positive and the original is
// above the current price.
func (o Offer) PricesValid() bool {
	return o.Price > 0 && o.OriginalPrice > 0 && o.OriginalPrice > o.Price
}

// Valid reports whether the offer carries the minimum fields to be considered
func (o Offer) Valid() bool {
	return o.PricesValid() && o.Title != ""
}

// Discount returns the discount as a fraction of the original price, or 0
// when prices are invalid.
func (o Offer) Discount() float64 {
	if !o.PricesValid() {
		return 0
	}
	return (o.OriginalPrice - o.Price) / o.OriginalPrice
}

// RoundedDiscountPct returns the discount percentage rounded to an integer
func (o Offer) RoundedDiscountPct() int {
	return int(math.Round(o.Discount() * 100))
}

// ParseAmount parses a display amount such as "$1,299", "$1.299", "1299.00"
// or "1.299,50" into a float. A lone separator followed by exactly three
// digits groups thousands. Unparsable input yields 0.
func ParseAmount(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), ".,")
	if clean == "" {
		return 0
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever separator comes last is the decimal mark
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") == 1 && len(clean)-lastComma-1 != 3 {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	case lastDot >= 0 && len(clean)-lastDot-1 == 3 && clean[:lastDot] != "0":
		// "1.299": a lone dot before three digits groups thousands
		clean = strings.Replace(clean, ".", "", 1)
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ParseCount extracts an integer count from text such as "(1,234)",
// "+500 vendidos" or "+5mil vendidos".
func ParseCount(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	if strings.Contains(strings.ToLower(s), "mil") {
		n *= 1000
	}
	return n
}

func parseRating(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 5 {
		return 0
	}
	return v
}
