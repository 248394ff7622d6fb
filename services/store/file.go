package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sjsage522/promobot/pkg/errors"
)

const (
	seenFile      = "seen_products.json"
	titleFile     = "title_cache.json"
	affiliateFile = "affiliate_links.json"

	titleCacheVersion = 1
)

// titleCache is the on-disk layout of the title index
type titleCache struct {
	Version int      `json:"version"`
	Hashes  []string `json:"hashes"`
	Recent  []string `json:"recent"`
	// Titles maps a canonical key to its published title
	Titles map[string]string `json:"titles,omitempty"`
}

// FileBackend stores state as JSON documents inside a data directory.
// Every write goes to a temp file first and is renamed into place.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileBackend creates the data directory if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewPersistence("file-store", "create data dir", err)
	}
	return &FileBackend{dir: dir}, nil
}

// LoadSeen reads the key map and the title index
func (b *FileBackend) LoadSeen(ctx context.Context) (*SeenSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := NewSeenSnapshot()

	var keys map[string]string
	if err := b.readJSON(seenFile, &keys); err != nil {
		return nil, err
	}
	for k, ts := range keys {
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			at = time.Time{}
		}
		snap.Keys[k] = at
	}

	var titles titleCache
	if err := b.readJSON(titleFile, &titles); err != nil {
		return nil, err
	}
	snap.TitleHashes = titles.Hashes
	snap.RecentTitles = titles.Recent
	for k, title := range titles.Titles {
		snap.Titles[k] = title
	}
	return snap, nil
}

// SaveSeen writes both seen documents
func (b *FileBackend) SaveSeen(ctx context.Context, snap *SeenSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make(map[string]string, len(snap.Keys))
	for k, at := range snap.Keys {
		keys[k] = at.UTC().Format(time.RFC3339)
	}
	if err := b.writeJSON(seenFile, keys); err != nil {
		return err
	}
	return b.writeJSON(titleFile, titleCache{
		Version: titleCacheVersion,
		Hashes:  snap.TitleHashes,
		Recent:  snap.RecentTitles,
		Titles:  snap.Titles,
	})
}

// LoadAffiliates reads the referral link map
func (b *FileBackend) LoadAffiliates(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	links := make(map[string]string)
	if err := b.readJSON(affiliateFile, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// PutAffiliate rewrites the referral link map with one more entry
func (b *FileBackend) PutAffiliate(ctx context.Context, key, link string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	links := make(map[string]string)
	if err := b.readJSON(affiliateFile, &links); err != nil {
		return err
	}
	links[key] = link
	return b.writeJSON(affiliateFile, links)
}

// Close is a no-op for the file backend
func (b *FileBackend) Close() error {
	return nil
}

// readJSON decodes name into v, leaving v untouched if the file is missing
func (b *FileBackend) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewPersistence("file-store", "read "+name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewParsing("file-store", "decode "+name, err)
	}
	return nil
}

func (b *FileBackend) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewPersistence("file-store", "encode "+name, err)
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return errors.NewPersistence("file-store", "create temp for "+name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewPersistence("file-store", "write "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewPersistence("file-store", "sync "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistence("file-store", "close "+name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(b.dir, name)); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistence("file-store", fmt.Sprintf("replace %s", name), err)
	}
	return nil
}
