// Package filter rejects listings the channel must not promote and
// normalizes the promotional signals of the ones it keeps.
package filter

import (
	"fmt"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
)

// Group is a named set of banned keywords
type Group struct {
	Label    string
	Keywords []string
}

// DefaultGroups are checked in order; the first group with a hit wins.
var DefaultGroups = []Group{
	{
		Label: "🔞 Adulto",
		Keywords: []string{
			"juguete sexual", "adultos", "sexy", "erotico",
			"dildo", "sexo", "condon", "pene", "vibrador", "lubricante",
		},
	},
	{
		Label: "👕 Ropa íntima",
		Keywords: []string{
			"ropa interior", "boxer", "calzon",
			"braga", "panty", "panties", "tanga", "lenceria", "brasier",
		},
	},
	{
		Label: "💊 Farmacia/suplemento",
		Keywords: []string{
			"vitamina", "suplemento alimenticio", "farmacia",
			"medicina", "pastilla", "tableta recubierta", "medicamento",
		},
	},
	{
		Label: "🏠 Línea blanca/muebles",
		Keywords: []string{
			"colchon", "matrimonial", "king", "queen",
			"parrilla de gas", "parrilla electrica", "estufa",
			"lavadora", "secadora", "refrigerador", "refrigeradora",
			"sala", "comedor", "ropero", "closet",
		},
	},
	{
		Label: "💳 Digital",
		Keywords: []string{
			"gift card", "tarjeta regalo",
			"saldo", "codigo digital", "licencia digital",
		},
	},
	{
		Label: "📚 Misceláneo",
		Keywords: []string{
			"libro usado", "revista", "fanzine",
			"pintura al oleo", "lienzo", "acuarela",
			"manualidades", "hecho a mano",
			"hospital", "hospitalario", "quirurgico", "ortopedico",
			"silla de ruedas", "muletas",
			"protector de pantalla", "mica de vidrio", "glass",
			"funda para celular", "case para iphone", "carcasa para",
			"correa para", "extensible para",
		},
	},
}

// Blocklist matches listings against keyword groups in a single pass
type Blocklist struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	groupOf  []int
	groups   []Group
}

// NewBlocklist builds the matcher. Keywords are accent-folded, so
// "colchón" and "colchon" block alike.
func NewBlocklist(groups []Group) *Blocklist {
	b := &Blocklist{groups: groups}
	for gi, g := range groups {
		for _, kw := range g.Keywords {
			b.keywords = append(b.keywords, helpers.FoldText(kw))
			b.groupOf = append(b.groupOf, gi)
		}
	}
	b.matcher = ahocorasick.NewStringMatcher(b.keywords)
	return b
}

// ShouldBlock checks title, category and promo tag. It returns the
// human-readable reason of the first matching group.
func (b *Blocklist) ShouldBlock(o offer.Offer) (string, bool) {
	text := helpers.FoldText(o.Title + " " + o.Category + " " + o.PromoTag)

	hits := b.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return "", false
	}

	// keywords are indexed group by group, so the smallest hit belongs to
	// the first matching group
	first := hits[0]
	for _, h := range hits[1:] {
		if h < first {
			first = h
		}
	}
	return fmt.Sprintf("%s: '%s'", b.groups[b.groupOf[first]].Label, b.keywords[first]), true
}

// GroupOf returns the group label of a reason produced by ShouldBlock
func GroupOf(reason string) string {
	label, _, _ := strings.Cut(reason, ":")
	return label
}
