package store

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps state in process memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu         sync.Mutex
	seen       *SeenSnapshot
	affiliates map[string]string

	// SaveErr, when set, is returned by every write
	SaveErr error
	// Saves counts successful SaveSeen calls
	Saves int
}

// NewMemoryBackend returns an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		seen:       NewSeenSnapshot(),
		affiliates: make(map[string]string),
	}
}

// LoadSeen returns a copy of the stored snapshot
func (m *MemoryBackend) LoadSeen(ctx context.Context) (*SeenSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.seen), nil
}

// SaveSeen stores a copy of snap
func (m *MemoryBackend) SaveSeen(ctx context.Context, snap *SeenSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.seen = copySnapshot(snap)
	m.Saves++
	return nil
}

// LoadAffiliates returns a copy of the stored links
func (m *MemoryBackend) LoadAffiliates(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.affiliates))
	for k, v := range m.affiliates {
		out[k] = v
	}
	return out, nil
}

// PutAffiliate stores one referral link
func (m *MemoryBackend) PutAffiliate(ctx context.Context, key, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.affiliates[key] = link
	return nil
}

// Close is a no-op
func (m *MemoryBackend) Close() error {
	return nil
}

func copySnapshot(s *SeenSnapshot) *SeenSnapshot {
	out := &SeenSnapshot{
		Keys:         make(map[string]time.Time, len(s.Keys)),
		TitleHashes:  append([]string(nil), s.TitleHashes...),
		RecentTitles: append([]string(nil), s.RecentTitles...),
		Titles:       make(map[string]string, len(s.Titles)),
	}
	for k, v := range s.Keys {
		out.Keys[k] = v
	}
	for k, v := range s.Titles {
		out.Titles[k] = v
	}
	return out
}
