package pipeline

import (
	"context"
	"fmt"
	"time"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/audit"
	"sjsage522/promobot/internal/filter"
	"sjsage522/promobot/internal/metrics"
	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/internal/scorer"
	"sjsage522/promobot/internal/validator"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
	"sjsage522/promobot/services/publisher"
)

// RunCycle runs one publishing cycle. Per-item failures are logged and
// skipped; an error is returned only when the cycle as a whole failed.
func (o *Orchestrator) RunCycle(ctx context.Context) (Summary, error) {
	start := o.now()
	s := Summary{RunID: o.runID(), Started: start}
	log := logger.ForPipeline().WithStr("run_id", s.RunID)

	if !o.withinActiveWindow(start) {
		log.Info().Str("time", start.Format("15:04")).Msg("Outside active hours, not publishing")
		s.Inactive = true
		return s, nil
	}

	log.Info().
		Int("top_n", o.settings.TopN).
		Int("pages", o.settings.Pages).
		Float64("min_discount", o.deps.Scorer.MinDiscount).
		Msg("Cycle started")

	selected, err := o.selectOffers(ctx, log, &s)
	if err != nil {
		return o.finish(s, start), err
	}

	o.publishAll(ctx, log, selected, &s)
	s = o.finish(s, start)

	if ctx.Err() != nil {
		log.Warn().Int("published", s.Published).Msg("Cycle interrupted")
		return s, ctx.Err()
	}

	log.Info().
		Int("published", s.Published).
		Int("failed", s.Failed).
		Dur("duration", s.Duration).
		Msg("Cycle finished")

	if s.Published == 0 {
		o.notify(ctx, publisher.LevelWarning, "Sin ofertas", "No se publicó nada en este ciclo")
	}
	o.notify(ctx, publisher.LevelSuccess, "Bot ejecutado exitosamente",
		fmt.Sprintf("Duración: %.1f minutos\nPublicadas: %d ofertas", s.Duration.Minutes(), s.Published))
	return s, nil
}

func (o *Orchestrator) finish(s Summary, start time.Time) Summary {
	s.Duration = o.now().Sub(start)
	metrics.CycleDuration.Observe(s.Duration.Seconds())
	return s
}

// selectOffers fetches candidates and returns the ranked top-N. Blocked offers are
// written to the audit log.
func (o *Orchestrator) selectOffers(ctx context.Context, log *logger.Logger, s *Summary) ([]offer.Offer, error) {
	raws, err := o.deps.Source.FetchOffers(ctx, o.settings.Pages)
	if err != nil {
		if len(raws) == 0 {
			return nil, errors.NewNetwork("source", "fetch offers", err)
		}
		log.Warn().Err(err).Int("raw", len(raws)).Msg("Partial fetch, continuing")
	}
	s.Fetched = len(raws)
	metrics.CandidatesFetched.Add(float64(len(raws)))

	offers := offer.Ingest(raws)
	unique := offer.Collapse(offers)
	s.Unique = len(unique)
	reject("duplicate", len(offers)-len(unique))
	log.Debug().Int("raw", len(raws)).Int("unique", len(unique)).Msg("Candidates deduplicated")

	var (
		blocked   []audit.Blocked
		validated []offer.Offer
	)
	for _, it := range unique {
		if !it.Valid() {
			reject("invalid", 1)
			continue
		}
		if o.deps.Seen != nil && o.deps.Seen.IsSeen(it.Title, it.Key) {
			reject("seen", 1)
			continue
		}
		if reason, hit := o.deps.Blocklist.ShouldBlock(it); hit {
			blocked = append(blocked, audit.Blocked{Time: o.now(), Title: it.Title, Reason: reason})
			metrics.Blocked.WithLabelValues(filter.GroupOf(reason)).Inc()
			continue
		}

		it = filter.Enrich(it)
		if filter.IsLowQuality(it) {
			reject("low_quality", 1)
			continue
		}

		history := o.history(ctx, log, it)
		if ok, reason := o.deps.Validator.Verdict(it, history); !ok {
			reject("inflated", 1)
			log.Debug().Str("key", it.Key).Str("reason", reason).Msg("Discount rejected")
			continue
		}
		it.Confidence = o.deps.Validator.Confidence(it, history)
		validated = append(validated, it)
	}

	s.Blocked = len(blocked)
	if len(blocked) > 0 {
		log.Warn().Int("blocked", len(blocked)).Msg("Products blocked")
		if o.deps.Audit != nil {
			_ = o.deps.Audit.RecordBlocked(ctx, blocked)
		}
	}

	ranked := o.deps.Scorer.Apply(validated)
	reject("score", len(validated)-len(ranked))
	scorer.Rank(ranked)
	selected := scorer.Top(ranked, o.settings.TopN)

	s.Candidates = len(ranked)
	s.Selected = len(selected)
	log.Info().Int("candidates", len(ranked)).Int("selected", len(selected)).Msg("Candidates ranked")
	return selected, nil
}

func reject(stage string, n int) {
	if n > 0 {
		metrics.Rejected.WithLabelValues(stage).Add(float64(n))
	}
}

// history is optional; lookup failures degrade to heuristics
func (o *Orchestrator) history(ctx context.Context, log *logger.Logger, it offer.Offer) *validator.History {
	if o.deps.History == nil {
		return nil
	}
	h, err := o.deps.History.Lookup(ctx, it.Permalink)
	if err != nil {
		log.Debug().Err(err).Str("key", it.Key).Msg("Price history unavailable")
		return nil
	}
	return h
}

func (o *Orchestrator) publishAll(ctx context.Context, log *logger.Logger, selected []offer.Offer, s *Summary) {
	for i, it := range selected {
		if ctx.Err() != nil {
			return
		}
		// an earlier item of this cycle may share the title
		if o.deps.Seen != nil && o.deps.Seen.IsSeen(it.Title, it.Key) {
			log.Info().Str("key", it.Key).Str("title", it.Title).Msg("Already published this cycle, skipping")
			reject("seen", 1)
			s.Skipped++
			continue
		}
		if !o.publishOne(ctx, log, s.RunID, it) {
			s.Failed++
			continue
		}
		s.Published++
		if s.Published >= o.settings.TopN || i == len(selected)-1 {
			return
		}

		wait := o.settings.PostInterval + o.jitter(o.settings.JitterMin, o.settings.JitterMax)
		log.Info().Dur("wait", wait).Msg("Waiting before next publish (ENTER skips)")
		if r := o.deps.Waiter.Wait(ctx, wait); r.Skipped {
			log.Info().Dur("remaining", r.Remaining).Msg("Wait skipped by operator")
		}
	}
}

// publishOne publishes a single offer. It never panics; after a confirmed
// publish it records the seen cache, then the audit log, then the counters.
func (o *Orchestrator) publishOne(ctx context.Context, log *logger.Logger, runID string, it offer.Offer) (published bool) {
	log = log.WithStr("key", it.Key)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Publish panicked")
			metrics.PublishFailures.Inc()
			published = false
		}
	}()

	link, affiliate := "", false
	if o.deps.Resolver != nil {
		link, affiliate = o.deps.Resolver.Resolve(ctx, it.Permalink)
	}
	if !affiliate {
		link = it.Permalink
	}
	if link == "" {
		log.Warn().Msg("No link to publish, skipping")
		return false
	}

	caption := BuildCaption(it)
	var err error
	if img := CleanImageURL(it.ImageURL); img != "" {
		log.Debug().Str("image", img).Msg("Publishing photo")
		err = o.deps.Channel.PublishPhoto(ctx, img, caption, link)
	} else {
		log.Debug().Msg("Publishing text")
		err = o.deps.Channel.PublishText(ctx, caption, link)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Publish failed")
		metrics.PublishFailures.Inc()
		return false
	}

	if o.deps.Seen != nil {
		o.deps.Seen.Record(ctx, it.Title, it.Key)
	}
	if o.deps.Audit != nil {
		_ = o.deps.Audit.RecordPublished(ctx, audit.NewPublished(runID, it, link, affiliate, o.now()))
	}
	kind := "permalink"
	if affiliate {
		kind = "affiliate"
	}
	metrics.Published.WithLabelValues(kind).Inc()

	log.Info().
		Str("title", it.Title).
		Float64("score", it.Score).
		Bool("affiliate", affiliate).
		Msg("Published")
	return true
}

func (o *Orchestrator) notify(ctx context.Context, level publisher.Level, title, msg string) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, level, title, msg); err != nil {
		logger.LogWarn("pipeline", err, "Notification %q not sent", title)
	}
}

// Fail reports a cycle-level failure to the operator
func (o *Orchestrator) Fail(ctx context.Context, err error) {
	msg := helpers.Truncate(err.Error(), 500)
	o.notify(ctx, publisher.LevelError, "Error crítico en el bot", msg)
}
