package crawler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/pkg/errors"
	"sjsage522/promobot/services/cache"
)

// FetchFunc downloads a page body
type FetchFunc func(ctx context.Context, url string) (io.Reader, error)

// BaseCrawler provides the fetch, parse and rate limit plumbing of a source
type BaseCrawler struct {
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Fetch     FetchFunc
}

// fetchWithCache fetches a URL unless the source is blocked. A rate limit
// answer blocks the source for BlockTime.
func (c *BaseCrawler) fetchWithCache(ctx context.Context, url string) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return nil, errors.NewRateLimit(c.CacheKey, c.BlockTime)
		}
	}

	fetch := c.Fetch
	if fetch == nil {
		fetch = helpers.FetchWithRandomHeaders
	}
	body, err := fetch(ctx, url)
	if err != nil {
		if c.CacheSvc != nil && c.CacheKey != "" && errors.IsType(err, errors.ErrorTypeRateLimit) {
			if setErr := c.CacheSvc.Set(c.CacheKey, []byte(fmt.Sprintf("%d", c.BlockTime/time.Second)), c.BlockTime); setErr != nil {
				return nil, setErr
			}
		}
		return nil, err
	}
	return body, nil
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, errors.NewParsing(c.CacheKey, "parse listing page", err)
	}
	return doc, nil
}

// processCards parses cards in parallel and keeps document order
func (c *BaseCrawler) processCards(selections *goquery.Selection, processor func(*goquery.Selection) *offer.Raw) []offer.Raw {
	results := make([]*offer.Raw, selections.Length())
	var wg sync.WaitGroup

	selections.Each(func(i int, s *goquery.Selection) {
		wg.Add(1)
		go func(i int, s *goquery.Selection) {
			defer wg.Done()
			results[i] = processor(s)
		}(i, s)
	})
	wg.Wait()

	var raws []offer.Raw
	for _, r := range results {
		if r != nil {
			raws = append(raws, *r)
		}
	}
	return raws
}
