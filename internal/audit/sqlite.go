package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"sjsage522/promobot/pkg/errors"
)

// DBFile is the default SQLite file name
const DBFile = "promo_bot.db"

const schema = `
CREATE TABLE IF NOT EXISTS published_offers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id TEXT NOT NULL,
	run_id TEXT,
	title TEXT,
	price REAL,
	original_price REAL,
	discount_pct REAL,
	permalink TEXT,
	link_used TEXT,
	is_affiliate TEXT,
	published_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_published_at ON published_offers(published_at);
CREATE INDEX IF NOT EXISTS idx_product_id ON published_offers(product_id);
`

// DB stores published offers in SQLite for daily statistics
type DB struct {
	db *sqlx.DB
}

// OpenDB opens or creates the database at path
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewPersistence("audit", "ensure data dir", err)
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewPersistence("audit", "open sqlite", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, errors.NewPersistence("audit", "pragma journal_mode", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.NewPersistence("audit", "create schema", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.NewPersistence("audit", "ping sqlite", err)
	}
	return &DB{db: db}, nil
}

// RecordPublished appends a row. A product published twice keeps both rows.
func (d *DB) RecordPublished(ctx context.Context, rec Published) error {
	productID := rec.ID
	if productID == "" {
		productID = rec.Key
	}
	affiliate := "no"
	if rec.Affiliate {
		affiliate = "yes"
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO published_offers
			(product_id, run_id, title, price, original_price, discount_pct, permalink, link_used, is_affiliate, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		productID, rec.RunID, rec.Title, rec.Price, rec.OriginalPrice, rec.DiscountPct,
		rec.Permalink, rec.LinkUsed, affiliate, rec.Time.Unix(),
	)
	if err != nil {
		return errors.NewPersistence("audit", "insert published offer", err)
	}
	return nil
}

// Stats summarizes the offers published in a period
type Stats struct {
	Total       int     `db:"total"`
	Affiliate   int     `db:"affiliate"`
	Plain       int     `db:"plain"`
	AvgDiscount float64 `db:"avg_discount"`
	MaxDiscount float64 `db:"max_discount"`
	MinDiscount float64 `db:"min_discount"`
}

// AffiliateRate returns the share of affiliate links, 0-100
func (s Stats) AffiliateRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Affiliate) / float64(s.Total) * 100
}

// StatsBetween summarizes offers published in [from, to)
func (d *DB) StatsBetween(ctx context.Context, from, to time.Time) (Stats, error) {
	var s Stats
	err := d.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_affiliate = 'yes' THEN 1 ELSE 0 END), 0) AS affiliate,
			COALESCE(SUM(CASE WHEN is_affiliate = 'yes' THEN 0 ELSE 1 END), 0) AS plain,
			COALESCE(AVG(discount_pct), 0.0) AS avg_discount,
			COALESCE(MAX(discount_pct), 0.0) AS max_discount,
			COALESCE(MIN(discount_pct), 0.0) AS min_discount
		FROM published_offers
		WHERE published_at >= ? AND published_at < ?`,
		from.Unix(), to.Unix(),
	)
	if err != nil {
		return Stats{}, errors.NewPersistence("audit", "query stats", err)
	}
	return s, nil
}

// TodayStats summarizes the local calendar day of now
func (d *DB) TodayStats(ctx context.Context, now time.Time) (Stats, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return d.StatsBetween(ctx, start, start.AddDate(0, 0, 1))
}

// Close closes the database
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close audit db: %w", err)
	}
	return nil
}
