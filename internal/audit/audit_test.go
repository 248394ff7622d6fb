package audit

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/promobot/internal/offer"
)

func sampleRecord(id string, pct float64, affiliate bool, at time.Time) Published {
	o := offer.Offer{
		ID:            id,
		Key:           "https://articulo.mercadolibre.com.mx/" + id,
		Title:         "Audífonos, inalámbricos \"Pro\"",
		Price:         599,
		OriginalPrice: 999,
		DiscountPct:   pct,
		Permalink:     "https://articulo.mercadolibre.com.mx/" + id,
	}
	link := o.Permalink
	if affiliate {
		link = "https://mercadolibre.com/sec/" + id
	}
	return NewPublished("run-1", o, link, affiliate, at)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVLogAppends(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLog(dir)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2024, 11, 29, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordPublished(ctx, sampleRecord("MLM1", 40.04, true, at)))
	require.NoError(t, l.RecordPublished(ctx, sampleRecord("MLM2", 25, false, at)))

	rows := readCSV(t, filepath.Join(dir, PublishedFile))
	require.Len(t, rows, 3)
	assert.Equal(t, publishedHeader, rows[0])
	assert.Equal(t, []string{
		"2024-11-29T10:00:00Z", "run-1", "MLM1", "Audífonos, inalámbricos \"Pro\"", "599", "999",
		"40.04", "https://articulo.mercadolibre.com.mx/MLM1", "https://mercadolibre.com/sec/MLM1", "yes",
	}, rows[1])
	assert.Equal(t, "no", rows[2][9])

	require.NoError(t, l.RecordBlocked(ctx, []Blocked{
		{Time: at, Title: "Colchón", Reason: "🏠 Línea blanca/muebles: 'colchon'"},
	}))
	blocked := readCSV(t, filepath.Join(dir, BlockedFile))
	require.Len(t, blocked, 2)
	assert.Equal(t, "🏠 Línea blanca/muebles: 'colchon'", blocked[1][2])
}

func TestDBStats(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "data", DBFile))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Date(2024, 11, 29, 15, 0, 0, 0, time.Local)

	require.NoError(t, db.RecordPublished(ctx, sampleRecord("MLM1", 40, true, now.Add(-time.Hour))))
	require.NoError(t, db.RecordPublished(ctx, sampleRecord("MLM2", 20, false, now)))
	require.NoError(t, db.RecordPublished(ctx, sampleRecord("MLM3", 60, true, now)))
	// yesterday
	require.NoError(t, db.RecordPublished(ctx, sampleRecord("MLM4", 90, true, now.AddDate(0, 0, -1))))
	// republishing a product appends a row
	require.NoError(t, db.RecordPublished(ctx, sampleRecord("MLM2", 30, false, now)))

	s, err := db.TodayStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Affiliate)
	assert.Equal(t, 2, s.Plain)
	assert.InDelta(t, 37.5, s.AvgDiscount, 1e-9)
	assert.Equal(t, 60.0, s.MaxDiscount)
	assert.Equal(t, 20.0, s.MinDiscount)
	assert.InDelta(t, 50.0, s.AffiliateRate(), 0.01)

	var rows int
	require.NoError(t, db.db.Get(&rows, `SELECT COUNT(*) FROM published_offers WHERE product_id = ?`, "MLM2"))
	assert.Equal(t, 2, rows)

	empty, err := db.TodayStats(ctx, now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)
}

type failingSink struct{ calls int }

func (f *failingSink) RecordPublished(ctx context.Context, rec Published) error {
	f.calls++
	return assert.AnError
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLog(dir)
	require.NoError(t, err)

	bad := &failingSink{}
	r := NewRecorder(bad, l, nil)
	ctx := context.Background()

	assert.NoError(t, r.RecordPublished(ctx, sampleRecord("MLM1", 40, false, time.Now())))
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, readCSV(t, filepath.Join(dir, PublishedFile)), 2)

	assert.NoError(t, r.RecordBlocked(ctx, []Blocked{{Time: time.Now(), Title: "x", Reason: "y"}}))
	assert.NoError(t, r.RecordBlocked(ctx, nil))
	assert.Len(t, readCSV(t, filepath.Join(dir, BlockedFile)), 2)
}
