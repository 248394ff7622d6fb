// Package seen remembers which products were already published, by canonical
// key, by title hash and by near-duplicate title.
package seen

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/services/store"
)

const (
	// DefaultSimilarity is the title similarity at which two listings are
	// treated as the same product.
	DefaultSimilarity = 0.9
	// DefaultRecentTitles bounds the similarity index
	DefaultRecentTitles = 500
)

// Color words differ between variants of one product and are ignored when
// comparing titles.
var colorWords = map[string]struct{}{
	"negro": {}, "negra": {}, "blanco": {}, "blanca": {}, "gris": {},
	"rojo": {}, "roja": {}, "azul": {}, "rosa": {}, "verde": {},
	"beige": {}, "café": {}, "cafe": {}, "marrón": {}, "marron": {},
	"amarillo": {}, "amarilla": {}, "naranja": {}, "morado": {}, "morada": {},
	"lila": {}, "dorado": {}, "dorada": {}, "plateado": {}, "plateada": {},
}

// Cache is the seen-product cache. Load must be called once before use.
type Cache struct {
	store     store.SeenStore
	threshold float64
	maxRecent int
	now       func() time.Time
	log       *logger.Logger

	mu     sync.Mutex
	keys   map[string]time.Time
	hashes map[string]struct{}
	recent []string
	// titles maps a key to its published title so Purge can drop both
	titles map[string]string
}

// Option configures a Cache
type Option func(*Cache)

// WithThreshold overrides the title similarity threshold
func WithThreshold(t float64) Option {
	return func(c *Cache) { c.threshold = t }
}

// WithMaxRecent overrides how many titles the similarity index keeps
func WithMaxRecent(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxRecent = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over the given store
func New(s store.SeenStore, opts ...Option) *Cache {
	c := &Cache{
		store:     s,
		threshold: DefaultSimilarity,
		maxRecent: DefaultRecentTitles,
		now:       time.Now,
		log:       logger.ForStore().WithStr("store", "seen"),
		keys:      make(map[string]time.Time),
		hashes:    make(map[string]struct{}),
		titles:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the in-memory state with the persisted one
func (c *Cache) Load(ctx context.Context) error {
	snap, err := c.store.LoadSeen(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = snap.Keys
	if c.keys == nil {
		c.keys = make(map[string]time.Time)
	}
	c.hashes = make(map[string]struct{}, len(snap.TitleHashes))
	for _, h := range snap.TitleHashes {
		c.hashes[h] = struct{}{}
	}
	c.titles = snap.Titles
	if c.titles == nil {
		c.titles = make(map[string]string)
	}
	c.recent = snap.RecentTitles
	if len(c.recent) > c.maxRecent {
		c.recent = c.recent[len(c.recent)-c.maxRecent:]
	}

	c.log.Info().
		Int("keys", len(c.keys)).
		Int("title_hashes", len(c.hashes)).
		Msg("Seen cache loaded")
	return nil
}

// IsSeen reports whether the key, the title hash or a near-identical title
// was already recorded.
func (c *Cache) IsSeen(title, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key != "" {
		if _, ok := c.keys[key]; ok {
			return true
		}
	}
	if strings.TrimSpace(title) == "" {
		return false
	}
	if _, ok := c.hashes[TitleHash(title)]; ok {
		return true
	}

	norm := NormalizeTitle(title)
	for _, prev := range c.recent {
		if Similarity(norm, prev) >= c.threshold {
			return true
		}
	}
	return false
}

// Record marks a product as published and flushes the cache. A flush
// failure is logged and otherwise ignored.
func (c *Cache) Record(ctx context.Context, title, key string) {
	c.mu.Lock()
	if key != "" {
		if _, ok := c.keys[key]; !ok {
			c.keys[key] = c.now()
		}
	}
	if strings.TrimSpace(title) != "" {
		if key != "" {
			c.titles[key] = title
		}
		c.hashes[TitleHash(title)] = struct{}{}
		c.recent = append(c.recent, NormalizeTitle(title))
		if len(c.recent) > c.maxRecent {
			c.recent = c.recent[len(c.recent)-c.maxRecent:]
		}
	}
	c.mu.Unlock()

	if err := c.Flush(ctx); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Seen cache flush failed, product may be republished")
	}
}

// Flush writes the current state to the store
func (c *Cache) Flush(ctx context.Context) error {
	return c.store.SaveSeen(ctx, c.snapshot())
}

// Purge removes one key together with the title it was published with. It
// reports whether the key was present.
func (c *Cache) Purge(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	_, ok := c.keys[key]
	delete(c.keys, key)
	if title, found := c.titles[key]; found {
		delete(c.titles, key)
		delete(c.hashes, TitleHash(title))
		norm := NormalizeTitle(title)
		kept := c.recent[:0]
		for _, prev := range c.recent {
			if prev != norm {
				kept = append(kept, prev)
			}
		}
		c.recent = kept
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, c.Flush(ctx)
}

// PurgeAll forgets every published product
func (c *Cache) PurgeAll(ctx context.Context) error {
	c.mu.Lock()
	c.keys = make(map[string]time.Time)
	c.hashes = make(map[string]struct{})
	c.titles = make(map[string]string)
	c.recent = nil
	c.mu.Unlock()

	return c.Flush(ctx)
}

// Len returns the number of recorded keys
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *Cache) snapshot() *store.SeenSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &store.SeenSnapshot{
		Keys:         make(map[string]time.Time, len(c.keys)),
		TitleHashes:  make([]string, 0, len(c.hashes)),
		RecentTitles: append([]string(nil), c.recent...),
		Titles:       make(map[string]string, len(c.titles)),
	}
	for k, v := range c.keys {
		snap.Keys[k] = v
	}
	for k, v := range c.titles {
		snap.Titles[k] = v
	}
	for h := range c.hashes {
		snap.TitleHashes = append(snap.TitleHashes, h)
	}
	return snap
}

// TitleHash returns the md5 hex digest of the lower-cased, trimmed title
func TitleHash(title string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(title))))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle lower-cases a title and drops color words
func NormalizeTitle(title string) string {
	words := strings.Fields(strings.ToLower(title))
	kept := words[:0]
	for _, w := range words {
		if _, color := colorWords[strings.Trim(w, ".,;:()")]; color {
			continue
		}
		kept = append(kept, w)
	}
	return helpers.CollapseSpaces(strings.Join(kept, " "))
}

// Similarity returns a ratio in [0,1] derived from the edit distance
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
