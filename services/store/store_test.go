package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *SeenSnapshot {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return &SeenSnapshot{
		Keys: map[string]time.Time{
			"https://articulo.mercadolibre.com.mx/MLM-1": at,
			"https://articulo.mercadolibre.com.mx/MLM-2": at.Add(time.Hour),
		},
		TitleHashes:  []string{"a1b2", "c3d4"},
		RecentTitles: []string{"audifonos bluetooth", "reloj inteligente"},
		Titles: map[string]string{
			"https://articulo.mercadolibre.com.mx/MLM-1": "Audífonos Bluetooth",
		},
	}
}

// exerciseBackend runs the same contract against every backend
func exerciseBackend(t *testing.T, b Backend) {
	ctx := context.Background()

	empty, err := b.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Keys)
	assert.Empty(t, empty.TitleHashes)

	want := sampleSnapshot()
	require.NoError(t, b.SaveSeen(ctx, want))

	got, err := b.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Keys, 2)
	for k, at := range want.Keys {
		assert.True(t, at.Equal(got.Keys[k]), k)
	}
	assert.ElementsMatch(t, want.TitleHashes, got.TitleHashes)
	assert.Equal(t, want.RecentTitles, got.RecentTitles)
	assert.Equal(t, want.Titles, got.Titles)

	// replace semantics: a purged key disappears
	delete(want.Keys, "https://articulo.mercadolibre.com.mx/MLM-2")
	require.NoError(t, b.SaveSeen(ctx, want))
	got, err = b.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Keys, 1)

	links, err := b.LoadAffiliates(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, b.PutAffiliate(ctx, "https://x.mx/a", "https://mercadolibre.com/sec/1abc"))
	require.NoError(t, b.PutAffiliate(ctx, "https://x.mx/b", "https://mercadolibre.com/sec/2def"))
	require.NoError(t, b.PutAffiliate(ctx, "https://x.mx/a", "https://mercadolibre.com/sec/3ghi"))

	links, err = b.LoadAffiliates(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"https://x.mx/a": "https://mercadolibre.com/sec/3ghi",
		"https://x.mx/b": "https://mercadolibre.com/sec/2def",
	}, links)
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "state"))
	require.NoError(t, err)
	defer b.Close()

	exerciseBackend(t, b)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	// a fresh backend over the same directory sees the same state
	reopened, err := NewFileBackend(filepath.Join(dir, "state"))
	require.NoError(t, err)
	snap, err := reopened.LoadSeen(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Keys, 1)
}

func TestFileBackendCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, seenFile), []byte("{not json"), 0o644))

	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	_, err = b.LoadSeen(context.Background())
	assert.Error(t, err)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := NewRedisBackendFromClient(client, "promobot-test")
	defer b.Close()

	exerciseBackend(t, b)
	assert.True(t, mr.Exists("promobot-test:affiliates"))
	assert.True(t, mr.Exists("promobot-test:seen"))
}

func TestNewRedisBackendUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisBackend(ctx, "127.0.0.1:1", 0, "x")
	assert.Error(t, err)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}
