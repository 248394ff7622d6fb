package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
)

// Card layouts change often; each selector lists the current layout first
const (
	cardSelector     = "li.ui-search-layout__item, div.ui-search-result__wrapper, div.poly-card, div.andes-card"
	titleSelector    = ".poly-component__title, .ui-search-item__title, h2"
	linkSelector     = "a.poly-component__title, a.ui-search-link, a"
	priceSelector    = ".poly-price__current .andes-money-amount__fraction, .ui-search-price__second-line .andes-money-amount__fraction"
	originalSelector = ".andes-money-amount--previous .andes-money-amount__fraction, .ui-search-price__original-value .andes-money-amount__fraction"
	ratingSelector   = ".poly-reviews__rating, .ui-search-reviews__rating"
	reviewsSelector  = ".poly-reviews__total, .ui-search-reviews__amount"
	badgeSelector    = ".poly-component__highlight, .ui-search-item__highlight-label, .andes-badge__content"
	fullSelector     = ".poly-component__shipped-from-fulfillment, .andes-icon--fulfillment, span.ui-search-item__fulfillment-label, .poly-component__shipping-badge"
	couponSelector   = ".ui-vpp-coupons-awareness__checkbox-label, .poly-coupon, .ui-search-item__coupon, span.andes-badge__content--green"
	soldSelector     = ".poly-component__sold, .ui-search-item__group__element--sold"
)

var (
	itemIDRe      = regexp.MustCompile(`MLM-?\d+`)
	couponPctRe   = regexp.MustCompile(`(\d{1,2})\s*%`)
	couponFixedRe = regexp.MustCompile(`\$\s*([\d.,]+)`)
	fullWordRe    = regexp.MustCompile(`\bFULL\b`)
)

// parseCard extracts one listing card; nil when title or link is missing
func parseCard(s *goquery.Selection, base *url.URL) *offer.Raw {
	title := strings.TrimSpace(s.Find(titleSelector).First().Text())
	if title == "" {
		return nil
	}
	href, _ := s.Find(linkSelector).First().Attr("href")
	link := resolve(base, href)
	if link == "" {
		return nil
	}

	r := &offer.Raw{
		ID:            itemID(s, link),
		Title:         helpers.CollapseSpaces(title),
		Permalink:     link,
		Price:         firstText(s, priceSelector),
		OriginalPrice: firstText(s, originalSelector),
		ImageURL:      imageURL(s),
		Rating:        firstText(s, ratingSelector),
		ReviewCount:   firstText(s, reviewsSelector),
		SoldQuantity:  firstText(s, soldSelector),
		CouponText:    couponText(s),
	}

	var badges []string
	s.Find(badgeSelector).Each(func(_ int, b *goquery.Selection) {
		if t := strings.TrimSpace(b.Text()); t != "" && !isCoupon(t) {
			badges = append(badges, t)
		}
	})
	if hasFull(s) {
		badges = append(badges, "FULL")
	}
	r.PromoTag = strings.Join(badges, " ")
	return r
}

func firstText(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func itemID(s *goquery.Selection, link string) string {
	if id, ok := s.Attr("data-item-id"); ok && id != "" {
		return id
	}
	if id, ok := s.Find("[data-item-id]").First().Attr("data-item-id"); ok && id != "" {
		return id
	}
	return itemIDRe.FindString(link)
}

func imageURL(s *goquery.Selection) string {
	img := s.Find("img").First()
	if src, ok := img.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	src, _ := img.Attr("src")
	return strings.TrimSpace(src)
}

func hasFull(s *goquery.Selection) bool {
	if s.Find(fullSelector).Length() > 0 {
		return true
	}
	return fullWordRe.MatchString(s.Text())
}

// isCoupon reports whether a label announces an applicable coupon.
// Shipping promos share the same green badge.
func isCoupon(text string) bool {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "ENVÍO") || strings.Contains(upper, "ENVIO") || strings.Contains(upper, "LLEGA") {
		return false
	}
	return strings.Contains(upper, "CUPÓN") || strings.Contains(upper, "CUPON") || strings.Contains(upper, "APLICAR")
}

// couponText renders the first coupon of a card as a caption note
func couponText(s *goquery.Selection) string {
	var note string
	s.Find(couponSelector).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		note = CouponNote(c.Text())
		return note == ""
	})
	return note
}

// CouponNote turns a coupon label into "🎟️ Cupón 10% OFF" or
// "🎟️ Cupón -$150". It returns "" for labels that are not coupons.
func CouponNote(label string) string {
	label = helpers.CollapseSpaces(label)
	if !isCoupon(label) {
		return ""
	}
	if m := couponPctRe.FindStringSubmatch(label); m != nil {
		return "🎟️ Cupón " + m[1] + "% OFF"
	}
	if m := couponFixedRe.FindStringSubmatch(label); m != nil {
		return "🎟️ Cupón -$" + m[1]
	}
	return ""
}
