// Package audit keeps append-only records of published and blocked offers.
package audit

import (
	"context"
	"time"

	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/logger"
)

// Published is written after a confirmed publish
type Published struct {
	Time          time.Time `json:"timestamp"`
	RunID         string    `json:"run_id"`
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Title         string    `json:"title"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"original_price"`
	DiscountPct   float64   `json:"discount_pct"`
	Permalink     string    `json:"permalink"`
	LinkUsed      string    `json:"link_used"`
	Affiliate     bool      `json:"affiliate_used"`
}

// NewPublished builds a record for o published with link
func NewPublished(runID string, o offer.Offer, link string, affiliate bool, at time.Time) Published {
	return Published{
		Time:          at,
		RunID:         runID,
		ID:            o.ID,
		Key:           o.Key,
		Title:         o.Title,
		Price:         o.Price,
		OriginalPrice: o.OriginalPrice,
		DiscountPct:   o.DiscountPct,
		Permalink:     o.Permalink,
		LinkUsed:      link,
		Affiliate:     affiliate,
	}
}

// Blocked is a blocklist hit
type Blocked struct {
	Time   time.Time
	Title  string
	Reason string
}

// Sink stores published records
type Sink interface {
	RecordPublished(ctx context.Context, rec Published) error
}

// BlockedSink stores blocklist hits
type BlockedSink interface {
	RecordBlocked(ctx context.Context, recs []Blocked) error
}

// Recorder fans records out to every sink. Sink failures are logged and never
// returned; a missing audit row is preferred over a stopped cycle.
type Recorder struct {
	sinks   []Sink
	blocked []BlockedSink
	log     *logger.Logger
}

// NewRecorder creates a recorder. Sinks that also implement BlockedSink
// receive blocked records.
func NewRecorder(sinks ...Sink) *Recorder {
	r := &Recorder{log: logger.ForStore().WithStr("store", "audit")}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		r.sinks = append(r.sinks, s)
		if b, ok := s.(BlockedSink); ok {
			r.blocked = append(r.blocked, b)
		}
	}
	return r
}

// RecordPublished writes rec to every sink
func (r *Recorder) RecordPublished(ctx context.Context, rec Published) error {
	for _, s := range r.sinks {
		if err := s.RecordPublished(ctx, rec); err != nil {
			r.log.Warn().Err(err).Str("id", rec.ID).Msg("Audit write failed")
		}
	}
	return nil
}

// RecordBlocked writes recs to every blocked sink
func (r *Recorder) RecordBlocked(ctx context.Context, recs []Blocked) error {
	if len(recs) == 0 {
		return nil
	}
	for _, s := range r.blocked {
		if err := s.RecordBlocked(ctx, recs); err != nil {
			r.log.Warn().Err(err).Int("rows", len(recs)).Msg("Blocked audit write failed")
		}
	}
	return nil
}
