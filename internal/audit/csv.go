package audit

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"sjsage522/promobot/pkg/errors"
)

const (
	// PublishedFile is the CSV of published offers
	PublishedFile = "ofertas_publicadas.csv"
	// BlockedFile is the CSV of blocklist hits
	BlockedFile = "bloqueos.csv"
)

var (
	publishedHeader = []string{
		"timestamp", "run_id", "id", "title", "price", "original_price",
		"discount_pct", "permalink", "link_used", "affiliate_used",
	}
	blockedHeader = []string{"timestamp", "title", "reason"}
)

// CSVLog appends records to CSV files in a directory
type CSVLog struct {
	mu  sync.Mutex
	dir string
}

// NewCSVLog creates the directory if needed
func NewCSVLog(dir string) (*CSVLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewPersistence("audit", "create audit dir", err)
	}
	return &CSVLog{dir: dir}, nil
}

// RecordPublished appends one row to the published CSV
func (l *CSVLog) RecordPublished(ctx context.Context, rec Published) error {
	affiliate := "no"
	if rec.Affiliate {
		affiliate = "yes"
	}
	row := []string{
		rec.Time.Format(time.RFC3339),
		rec.RunID,
		rec.ID,
		rec.Title,
		formatAmount(rec.Price),
		formatAmount(rec.OriginalPrice),
		strconv.FormatFloat(rec.DiscountPct, 'f', 2, 64),
		rec.Permalink,
		rec.LinkUsed,
		affiliate,
	}
	return l.append(PublishedFile, publishedHeader, [][]string{row})
}

// RecordBlocked appends rows to the blocked CSV
func (l *CSVLog) RecordBlocked(ctx context.Context, recs []Blocked) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.Time.Format(time.RFC3339), r.Title, r.Reason})
	}
	return l.append(BlockedFile, blockedHeader, rows)
}

func (l *CSVLog) append(name string, header []string, rows [][]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.dir, name)
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.NewPersistence("audit", "open "+name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errors.NewPersistence("audit", "write header", err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.NewPersistence("audit", "write "+name, err)
	}
	return nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
