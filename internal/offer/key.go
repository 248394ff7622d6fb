package offer

import (
	"net/url"
	"strings"
)

// Canonical derives the identity key of a listing: scheme, host and path of
// the permalink, without query or fragment. An empty permalink falls back to
// the raw identifier. Canonical(Canonical(x)) == Canonical(x).
func Canonical(permalink, id string) string {
	permalink = strings.TrimSpace(permalink)
	if permalink == "" {
		return strings.TrimSpace(id)
	}

	u, err := url.Parse(permalink)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return stripSuffixes(permalink)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
}

// AffiliateKey normalizes a product URL for referral link lookups. Matching is
// case-insensitive and the query string is kept, since referral identity is
// per exact product page.
func AffiliateKey(rawURL string) string {
	key := strings.ToLower(strings.TrimSpace(rawURL))
	if i := strings.IndexByte(key, '#'); i >= 0 {
		key = key[:i]
	}
	return key
}

func stripSuffixes(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// Collapse removes offers sharing a Key. The first occurrence keeps its
// position; a later duplicate with a strictly lower price replaces it.
func Collapse(offers []Offer) []Offer {
	index := make(map[string]int, len(offers))
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		i, seen := index[o.Key]
		if !seen {
			index[o.Key] = len(out)
			out = append(out, o)
			continue
		}
		if o.Price < out[i].Price {
			out[i] = o
		}
	}
	return out
}
