package validator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
	"sjsage522/promobot/services/cache"
)

var (
	lowestRe      = regexp.MustCompile(`(?i)precio\s+m[aá]s\s+bajo\s+en\s+los\s+[úu]ltimos\s+30\s+d[íi]as[^$]*\$\s*([\d.,]+)`)
	highestRe     = regexp.MustCompile(`(?i)precio\s+m[aá]s\s+alto\s+en\s+los\s+[úu]ltimos\s+30\s+d[íi]as[^$]*\$\s*([\d.,]+)`)
	priceBeforeRe = regexp.MustCompile(`(?i)precio\s+anterior[^$]*\$\s*([\d.,]+)`)
)

// ExtractHistory finds the 30-day low/high and the previous price in a
// product page. It returns nil when none is present.
func ExtractHistory(r io.Reader) (*History, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.NewParsing("history", "parse product page", err)
	}
	text := helpers.CollapseSpaces(doc.Text())

	h := &History{
		Lowest30d:   firstAmount(lowestRe, text),
		Highest30d:  firstAmount(highestRe, text),
		PriceBefore: firstAmount(priceBeforeRe, text),
	}
	if h.Empty() {
		return nil, nil
	}
	return h, nil
}

func firstAmount(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	return offer.ParseAmount(m[1])
}

// FetchFunc downloads a page body
type FetchFunc func(ctx context.Context, url string) (io.Reader, error)

// HistoryFetcher looks up price references on product pages and caches the
// result, including "no history", for a TTL.
type HistoryFetcher struct {
	cache cache.CacheService
	ttl   time.Duration
	fetch FetchFunc
	log   *logger.Logger
}

// NewHistoryFetcher creates a fetcher. cacheSvc may be nil.
func NewHistoryFetcher(cacheSvc cache.CacheService, ttl time.Duration, fetch FetchFunc) *HistoryFetcher {
	if fetch == nil {
		fetch = helpers.FetchWithRandomHeaders
	}
	return &HistoryFetcher{
		cache: cacheSvc,
		ttl:   ttl,
		fetch: fetch,
		log:   logger.ForCache().WithStr("cache", "price-history"),
	}
}

// Lookup returns the price history of a product page, nil when the page
// shows none.
func (f *HistoryFetcher) Lookup(ctx context.Context, permalink string) (*History, error) {
	if strings.TrimSpace(permalink) == "" {
		return nil, nil
	}
	key := historyKey(permalink)

	if f.cache != nil {
		if data, err := f.cache.Get(key); err == nil {
			var h History
			if err := json.Unmarshal(data, &h); err == nil {
				if h.Empty() {
					return nil, nil
				}
				return &h, nil
			}
		}
	}

	body, err := f.fetch(ctx, permalink)
	if err != nil {
		return nil, err
	}
	h, err := ExtractHistory(body)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		cached := History{}
		if h != nil {
			cached = *h
		}
		data, _ := json.Marshal(cached)
		if err := f.cache.Set(key, data, f.ttl); err != nil {
			f.log.Warn().Err(err).Msg("Failed to cache price history")
		}
	}
	return h, nil
}

// memcache keys are limited to 250 bytes without spaces
func historyKey(permalink string) string {
	sum := md5.Sum([]byte(offer.Canonical(permalink, "")))
	return "history:" + hex.EncodeToString(sum[:])
}
