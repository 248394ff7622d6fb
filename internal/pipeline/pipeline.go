// Package pipeline runs one publishing cycle: fetch, dedupe, filter,
// validate, rank, resolve links, publish and record.
package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"sjsage522/promobot/internal/audit"
	"sjsage522/promobot/internal/filter"
	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/internal/scorer"
	"sjsage522/promobot/internal/validator"
	"sjsage522/promobot/services/publisher"
)

// Source returns raw listing records
type Source interface {
	FetchOffers(ctx context.Context, pages int) ([]offer.Raw, error)
}

// Channel publishes announcements. A nil error means the message was accepted.
type Channel interface {
	PublishText(ctx context.Context, html, buttonURL string) error
	PublishPhoto(ctx context.Context, imageURL, html, buttonURL string) error
}

// Notifier sends operator alerts
type Notifier interface {
	Notify(ctx context.Context, level publisher.Level, title, message string) error
}

// LinkResolver maps a permalink to a referral link
type LinkResolver interface {
	Resolve(ctx context.Context, permalink string) (string, bool)
}

// HistorySource looks up price history of a product page
type HistorySource interface {
	Lookup(ctx context.Context, permalink string) (*validator.History, error)
}

// SeenCache remembers published products
type SeenCache interface {
	IsSeen(title, key string) bool
	Record(ctx context.Context, title, key string)
}

// Auditor records published and blocked offers
type Auditor interface {
	RecordPublished(ctx context.Context, rec audit.Published) error
	RecordBlocked(ctx context.Context, recs []audit.Blocked) error
}

// Settings are the tunables of a cycle
type Settings struct {
	TopN         int
	Pages        int
	PostInterval time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
	// ActiveStart <= hour < ActiveEnd, local time
	ActiveStart int
	ActiveEnd   int
}

// Deps are the collaborators of an Orchestrator. Resolver, History and
// Notifier are optional.
type Deps struct {
	Source    Source
	Channel   Channel
	Notifier  Notifier
	Resolver  LinkResolver
	History   HistorySource
	Seen      SeenCache
	Audit     Auditor
	Blocklist *filter.Blocklist
	Validator *validator.Validator
	Scorer    *scorer.Scorer
	Waiter    Waiter
}

// Summary describes a finished cycle
type Summary struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Inactive   bool
	Fetched    int
	Unique     int
	Blocked    int
	Candidates int
	Selected   int
	Published  int
	Failed     int
	// Skipped counts selected offers already published earlier in the cycle
	Skipped int
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithJitter replaces the random jitter source
func WithJitter(jitter func(lo, hi time.Duration) time.Duration) Option {
	return func(o *Orchestrator) { o.jitter = jitter }
}

// WithRunID replaces the run id generator
func WithRunID(gen func() string) Option {
	return func(o *Orchestrator) { o.runID = gen }
}

// Orchestrator drives publishing cycles. Only one cycle may run at a time.
type Orchestrator struct {
	deps     Deps
	settings Settings
	now      func() time.Time
	jitter   func(lo, hi time.Duration) time.Duration
	runID    func() string
}

// New creates an orchestrator
func New(deps Deps, settings Settings, opts ...Option) *Orchestrator {
	if deps.Blocklist == nil {
		deps.Blocklist = filter.NewBlocklist(filter.DefaultGroups)
	}
	if deps.Validator == nil {
		deps.Validator = validator.New(validator.DefaultThresholds())
	}
	if deps.Scorer == nil {
		deps.Scorer = scorer.New(0.30, 100)
	}
	if deps.Waiter == nil {
		deps.Waiter = NewSkipWaiter(nil)
	}
	o := &Orchestrator{
		deps:     deps,
		settings: settings,
		now:      time.Now,
		jitter:   randomJitter,
		runID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func randomJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	// whole seconds, inclusive
	span := int64((hi-lo)/time.Second) + 1
	return lo + time.Duration(rand.Int64N(span))*time.Second
}

// withinActiveWindow reports whether publishing is allowed at t
func (o *Orchestrator) withinActiveWindow(t time.Time) bool {
	s := o.settings
	if s.ActiveStart == s.ActiveEnd {
		return true
	}
	h := t.Hour()
	return s.ActiveStart <= h && h < s.ActiveEnd
}
