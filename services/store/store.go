package store

import (
	"context"
	"time"
)

// SeenSnapshot is the persisted state of the seen-product cache
type SeenSnapshot struct {
	// Keys maps a canonical key to its first-seen time
	Keys map[string]time.Time
	// TitleHashes holds hashes of normalized published titles
	TitleHashes []string
	// RecentTitles holds the most recent normalized titles, oldest first
	RecentTitles []string
	// Titles maps a canonical key to the title it was published with
	Titles map[string]string
}

// NewSeenSnapshot returns an empty snapshot
func NewSeenSnapshot() *SeenSnapshot {
	return &SeenSnapshot{Keys: make(map[string]time.Time), Titles: make(map[string]string)}
}

// SeenStore persists the seen-product cache
type SeenStore interface {
	// LoadSeen returns the stored snapshot, empty when nothing was saved yet
	LoadSeen(ctx context.Context) (*SeenSnapshot, error)

	// SaveSeen replaces the stored snapshot
	SaveSeen(ctx context.Context, snap *SeenSnapshot) error
}

// AffiliateStore persists resolved referral links
type AffiliateStore interface {
	// LoadAffiliates returns every stored url -> referral link pair
	LoadAffiliates(ctx context.Context) (map[string]string, error)

	// PutAffiliate stores one mapping, replacing any previous value
	PutAffiliate(ctx context.Context, key, link string) error
}

// Backend bundles every persisted concern of the bot
type Backend interface {
	SeenStore
	AffiliateStore

	// Close releases the backend resources
	Close() error
}
