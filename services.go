package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sjsage522/promobot/config"
	"sjsage522/promobot/internal/affiliate"
	"sjsage522/promobot/internal/audit"
	"sjsage522/promobot/internal/browser"
	"sjsage522/promobot/internal/console"
	"sjsage522/promobot/internal/crawler"
	"sjsage522/promobot/internal/filter"
	"sjsage522/promobot/internal/metrics"
	"sjsage522/promobot/internal/pipeline"
	"sjsage522/promobot/internal/scorer"
	"sjsage522/promobot/internal/seen"
	"sjsage522/promobot/internal/validator"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/services/cache"
	"sjsage522/promobot/services/publisher"
	"sjsage522/promobot/services/store"
)

// Services holds all the initialized services
type Services struct {
	Config   *config.Config
	Cache    cache.CacheService
	Store    store.Backend
	Seen     *seen.Cache
	Mapping  *affiliate.Mapping
	Resolver *affiliate.Resolver
	Channel  *publisher.TelegramPublisher
	Notifier *publisher.TelegramNotifier
	Audit    *audit.Recorder
	DB       *audit.DB
	Stream   *publisher.RedisStreamMirror
	Signals  <-chan struct{}
}

// Cleanup flushes state and releases every service
func (s *Services) Cleanup() {
	ctx := context.Background()
	if s.Seen != nil {
		if err := s.Seen.Flush(ctx); err != nil {
			logger.LogWarn("main", err, "Failed to flush seen cache")
		}
	}
	if s.Resolver != nil {
		_ = s.Resolver.Close()
	}
	if s.Stream != nil {
		_ = s.Stream.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

// openStore opens the configured state backend
func openStore(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		b, err := store.NewRedisBackend(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to Redis at %s (DB: %d, prefix: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisKeyPrefix)
		return b, nil
	default:
		return store.NewFileBackend(cfg.DataDir)
	}
}

// openAuditDB opens the SQLite audit database
func openAuditDB(cfg *config.Config) (*audit.DB, error) {
	return audit.OpenDB(filepath.Join(cfg.DataDir, "promo_bot.db"))
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{Config: cfg}

	// Initialize cache service
	s.Cache = cache.New(cfg.MemcacheAddr)
	if cfg.MemcacheAddr != "" {
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	backend, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Store = backend

	s.Seen = seen.New(backend, seen.WithMaxRecent(cfg.TitleCacheSize))
	if err := s.Seen.Load(ctx); err != nil {
		s.Cleanup()
		return nil, err
	}

	s.Mapping = affiliate.NewMapping(cfg.AffiliatePrefix, backend)
	if err := s.Mapping.Load(ctx); err != nil {
		logger.LogWarn("main", err, "Starting with an empty affiliate mapping")
	}

	s.Signals = console.Signals(os.Stdin)
	opts := affiliate.DefaultOptions()
	opts.Enabled = cfg.AffiliateEnabled
	opts.LoginURL = cfg.LoginURL
	opts.NavTimeout = cfg.NavTimeout
	opts.ExtractTimeout = cfg.ExtractTimeout
	s.Resolver = affiliate.NewResolver(
		s.Mapping,
		browser.Factory(browser.Options{Headless: cfg.ChromeHeadless, SessionPath: cfg.SessionPath}),
		console.NewConfirmer(s.Signals),
		opts,
	)

	s.Channel = publisher.NewTelegramPublisher(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, nil)
	s.Notifier = publisher.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramPersonalChatID, nil)

	csvLog, err := audit.NewCSVLog(cfg.DataDir)
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	sinks := []audit.Sink{csvLog}
	if cfg.AuditDBEnabled {
		db, err := openAuditDB(cfg)
		if err != nil {
			logger.LogWarn("main", err, "Audit database disabled")
		} else {
			s.DB = db
			sinks = append(sinks, db)
		}
	}
	if cfg.RedisStream != "" {
		s.Stream = publisher.NewRedisStreamMirror(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		sinks = append(sinks, s.Stream)
		logger.Info("Mirroring published offers to stream %s", cfg.RedisStream)
	}
	s.Audit = audit.NewRecorder(sinks...)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.LogError("metrics", err, "Metrics server stopped")
			}
		}()
	}
	return s, nil
}

// Orchestrator wires the publishing pipeline
func (s *Services) Orchestrator() *pipeline.Orchestrator {
	cfg := s.Config

	source := crawler.NewListingCrawler(crawler.ListingConfig{
		URL:       cfg.OffersURL,
		MinPrice:  cfg.MinPrice,
		MaxPrice:  cfg.MaxPrice,
		BlockTime: cfg.SourceBlock,
		PageDelay: pageDelay,
	}, s.Cache)

	deps := pipeline.Deps{
		Source:    source,
		Channel:   s.Channel,
		Notifier:  s.Notifier,
		Resolver:  s.Resolver,
		Seen:      s.Seen,
		Audit:     s.Audit,
		Blocklist: filter.NewBlocklist(filter.DefaultGroups),
		Validator: validator.New(thresholds(cfg.Validator)),
		Scorer:    scorer.New(cfg.MinDiscount, cfg.MinTicket),
		Waiter:    pipeline.NewSkipWaiter(s.Signals),
	}
	if cfg.PriceHistoryEnabled {
		deps.History = validator.NewHistoryFetcher(s.Cache, cfg.PriceHistoryTTL, nil)
	}

	return pipeline.New(deps, pipeline.Settings{
		TopN:         cfg.TopN,
		Pages:        cfg.Pages,
		PostInterval: cfg.PostInterval,
		JitterMin:    cfg.JitterMin,
		JitterMax:    cfg.JitterMax,
		ActiveStart:  cfg.ActiveStart,
		ActiveEnd:    cfg.ActiveEnd,
	})
}

func thresholds(v config.ValidatorConfig) validator.Thresholds {
	return validator.Thresholds{
		HistoryTolerance:     v.HistoryTolerance,
		PriceBeforeTolerance: v.PriceBeforeTolerance,
		HardRejectPct:        v.HardRejectPct,
		SuspiciousPct:        v.SuspiciousPct,
		MinGenuinePct:        v.MinGenuinePct,
		TrustedReviews:       v.TrustedReviews,
		TrustedRating:        v.TrustedRating,
		MinSuspiciousReviews: v.MinSuspiciousReviews,
	}
}

// requireTelegram fails early when the channel cannot be published to
func requireTelegram(cfg *config.Config) error {
	if !cfg.TelegramConfigured() {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required")
	}
	return nil
}
