// Package affiliate turns product URLs into referral links, cache first,
// falling back to driving a logged-in browser session.
package affiliate

import (
	"context"
	"strings"
	"sync"

	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
	"sjsage522/promobot/services/store"
)

// DefaultPrefix is the referral link format of the marketplace
const DefaultPrefix = "https://mercadolibre.com/sec/"

// ValidLink reports whether link is a referral link with the given prefix
func ValidLink(link, prefix string) bool {
	return strings.HasPrefix(link, prefix) && len(link) > len(prefix) &&
		!strings.ContainsAny(link, " \t\r\n")
}

// Mapping is the product URL -> referral link table. It is read through in
// memory and written through to an AffiliateStore.
type Mapping struct {
	mu     sync.RWMutex
	prefix string
	links  map[string]string
	store  store.AffiliateStore
	log    *logger.Logger
}

// NewMapping creates an empty mapping. s may be nil for a memory-only table.
func NewMapping(prefix string, s store.AffiliateStore) *Mapping {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Mapping{
		prefix: prefix,
		links:  make(map[string]string),
		store:  s,
		log:    logger.ForResolver().WithStr("table", "affiliate"),
	}
}

// Load replaces the in-memory table with the stored one. Entries that are not
// valid referral links are skipped.
func (m *Mapping) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	stored, err := m.store.LoadAffiliates(ctx)
	if err != nil {
		return errors.NewPersistence("affiliate", "load mapping", err)
	}

	links := make(map[string]string, len(stored))
	skipped := 0
	for k, v := range stored {
		if !ValidLink(v, m.prefix) {
			skipped++
			continue
		}
		links[offer.AffiliateKey(k)] = v
	}

	m.mu.Lock()
	m.links = links
	m.mu.Unlock()

	m.log.Info().Int("links", len(links)).Int("skipped", skipped).Msg("Affiliate mapping loaded")
	return nil
}

// Get returns the referral link of a product URL
func (m *Mapping) Get(productURL string) (string, bool) {
	key := offer.AffiliateKey(productURL)
	if key == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[key]
	return link, ok
}

// Put stores a mapping. Invalid links are refused. The link stays in memory
// even when the durable write fails.
func (m *Mapping) Put(ctx context.Context, productURL, link string) error {
	key := offer.AffiliateKey(productURL)
	if key == "" {
		return errors.NewValidation("affiliate", "empty product url")
	}
	if !ValidLink(link, m.prefix) {
		return errors.NewValidation("affiliate", "not a referral link: "+link)
	}

	m.mu.Lock()
	m.links[key] = link
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.PutAffiliate(ctx, key, link); err != nil {
		return errors.NewPersistence("affiliate", "store mapping", err)
	}
	return nil
}

// Len returns the number of known links
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// Prefix returns the accepted referral prefix
func (m *Mapping) Prefix() string {
	return m.prefix
}
