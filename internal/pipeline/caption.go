package pipeline

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
)

// TitleLimit is the number of title characters kept in a caption
const TitleLimit = 140

// FormatMoney renders an amount as "$1,299 MXN"
func FormatMoney(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return sign + "$" + b.String() + " MXN"
}

// RatingText renders the stars line, empty without a rating
func RatingText(rating float64, reviews int) string {
	if rating <= 0 {
		return ""
	}
	if reviews > 0 {
		return fmt.Sprintf("<b>⭐</b> <b>(%.1f)</b> (%d opiniones)", rating, reviews)
	}
	return fmt.Sprintf("<b>⭐</b> (%.1f)", rating)
}

// BuildCaption renders the HTML announcement of o
func BuildCaption(o offer.Offer) string {
	lines := []string{"<b>" + html.EscapeString(helpers.Truncate(o.Title, TitleLimit)) + "</b>"}

	var meta []string
	if o.PromoTag != "" {
		meta = append(meta, html.EscapeString(o.PromoTag))
	}
	if r := RatingText(o.Rating, o.ReviewCount); r != "" {
		meta = append(meta, r)
	}
	if len(meta) > 0 {
		lines = append(lines, strings.Join(meta, " | "))
	}

	lines = append(lines, fmt.Sprintf("💳 <b>%s</b> (<s>%s</s> -%d%%)",
		FormatMoney(o.Price), FormatMoney(o.OriginalPrice), o.RoundedDiscountPct()))

	if o.CouponText != "" {
		lines = append(lines, "<b>"+html.EscapeString(o.CouponText)+"</b>")
	}
	return strings.Join(lines, "\n")
}

// CleanImageURL returns a publishable image URL, or "" when the image is
// unusable
func CleanImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if strings.Contains(u, "mlstatic.com") {
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
	}

	lower := strings.ToLower(u)
	switch {
	case !strings.HasPrefix(lower, "http"):
		return ""
	case strings.HasSuffix(lower, ".svg"), strings.HasSuffix(lower, ".gif"):
		return ""
	case strings.Contains(lower, "pixel"):
		return ""
	}

	// thumbnails of the image CDN have a larger variant
	if strings.Contains(lower, "_v1.jpg") {
		u = strings.NewReplacer("_A.jpg", "_Q.jpg", "_B.jpg", "_Q.jpg", "_I.jpg", "_V.jpg").Replace(u)
	}
	return u
}
