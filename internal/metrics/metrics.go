// Package metrics exports Prometheus counters for the publishing pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sjsage522/promobot/logger"
)

const namespace = "promobot"

var (
	// CandidatesFetched counts raw records returned by the source
	CandidatesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_fetched_total",
		Help:      "Raw candidates returned by the listing source",
	})

	// Rejected counts candidates dropped per pipeline stage
	Rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_rejected_total",
		Help:      "Candidates dropped, by stage (invalid, duplicate, seen, blocked, low_quality, inflated, score)",
	}, []string{"stage"})

	// Blocked counts blocklist hits per keyword group
	Blocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocked_total",
		Help:      "Blocklist hits by group",
	}, []string{"group"})

	// Resolutions counts affiliate resolutions by outcome
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "affiliate_resolutions_total",
		Help:      "Affiliate resolutions by outcome (cached, generated, failed, disabled)",
	}, []string{"outcome"})

	// Published counts announcements pushed to the channel
	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "published_total",
		Help:      "Announcements published, by link kind (affiliate, permalink)",
	}, []string{"link"})

	// PublishFailures counts failed publish attempts
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Publish attempts that failed or panicked",
	})

	// CycleDuration observes full cycle durations
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of publishing cycles",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
	})
)

// Handler returns the Prometheus HTTP handler for /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
