// Package crawler scrapes the marketplace offers listing into raw records.
package crawler

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
	"sjsage522/promobot/services/cache"
)

// ListingConfig configures a ListingCrawler
type ListingConfig struct {
	URL       string
	MinPrice  int
	MaxPrice  int
	BlockTime time.Duration
	// PageDelay separates consecutive page requests
	PageDelay time.Duration
}

// ListingCrawler fetches the offers listing page by page
type ListingCrawler struct {
	BaseCrawler
	cfg ListingConfig
	log *logger.Logger
}

// NewListingCrawler creates a crawler. cacheSvc may be nil.
func NewListingCrawler(cfg ListingConfig, cacheSvc cache.CacheService) *ListingCrawler {
	return &ListingCrawler{
		BaseCrawler: BaseCrawler{
			CacheKey:  "listing_rate_limited",
			CacheSvc:  cacheSvc,
			BlockTime: cfg.BlockTime,
		},
		cfg: cfg,
		log: logger.ForSource("listing"),
	}
}

// PageURL returns the URL of a 1-based listing page
func (c *ListingCrawler) PageURL(page int) string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	if c.cfg.MaxPrice > 0 {
		q.Set("price", strconv.Itoa(c.cfg.MinPrice)+"-"+strconv.Itoa(c.cfg.MaxPrice))
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchOffers scrapes up to pages listing pages. Records are deduplicated by
// permalink. When a later page fails the records gathered so far are
// returned together with the error.
func (c *ListingCrawler) FetchOffers(ctx context.Context, pages int) ([]offer.Raw, error) {
	seen := make(map[string]bool)
	var raws []offer.Raw

	for page := 1; page <= pages; page++ {
		if page > 1 && c.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return raws, ctx.Err()
			case <-time.After(c.cfg.PageDelay):
			}
		}

		pageURL := c.PageURL(page)
		found, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.log.Warn().Err(err).Int("page", page).Msg("Listing page failed")
			return raws, err
		}
		if len(found) == 0 {
			c.log.Debug().Int("page", page).Msg("Listing page has no cards, stopping")
			break
		}

		added := 0
		for _, r := range found {
			if seen[r.Permalink] {
				continue
			}
			seen[r.Permalink] = true
			raws = append(raws, r)
			added++
		}
		c.log.Info().Int("page", page).Int("cards", len(found)).Int("new", added).Msg("Listing page scraped")
	}
	return raws, nil
}

func (c *ListingCrawler) fetchPage(ctx context.Context, pageURL string) ([]offer.Raw, error) {
	body, err := c.fetchWithCache(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := c.createDocument(body)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.NewParsing("listing", "page url", err)
	}

	cards := doc.Find(cardSelector)
	return c.processCards(cards, func(s *goquery.Selection) *offer.Raw {
		return parseCard(s, base)
	}), nil
}

// resolve makes href absolute and drops the fragment
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}
