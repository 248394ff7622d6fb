package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sjsage522/promobot/pkg/errors"
)

// Store backends
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// Config represents the application configuration
type Config struct {
	Environment string
	DataDir     string

	// Persisted state
	StoreBackend   string
	RedisAddr      string
	RedisDB        int
	RedisKeyPrefix string

	// Published offer stream mirror, disabled when RedisStream is empty
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Pipeline
	MinDiscount    float64
	TopN           int
	PostInterval   time.Duration
	JitterMin      time.Duration
	JitterMax      time.Duration
	Pages          int
	ActiveStart    int
	ActiveEnd      int
	CycleInterval  time.Duration
	MinTicket      float64
	TitleCacheSize int

	// Listing source
	OffersURL   string
	MinPrice    int
	MaxPrice    int
	SourceBlock time.Duration

	// Discount validator
	Validator ValidatorConfig

	// Price history lookups
	PriceHistoryEnabled bool
	PriceHistoryTTL     time.Duration

	// Affiliate resolver
	AffiliateEnabled bool
	AffiliatePrefix  string
	ChromeHeadless   bool
	SessionPath      string
	NavTimeout       time.Duration
	ExtractTimeout   time.Duration
	LoginURL         string

	// Telegram
	TelegramToken          string
	TelegramChatID         string
	TelegramPersonalChatID string
	TelegramAPIURL         string

	// Audit
	AuditDBEnabled bool

	// Metrics endpoint, disabled when empty
	MetricsAddr string
}

// ValidatorConfig holds the discount validator cutoffs
type ValidatorConfig struct {
	HistoryTolerance     float64
	PriceBeforeTolerance float64
	HardRejectPct        float64
	SuspiciousPct        float64
	MinGenuinePct        float64
	TrustedReviews       int
	TrustedRating        float64
	MinSuspiciousReviews int
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "data")

	postInterval := getEnvInt("POST_INTERVAL_SECONDS", 60)
	if postInterval < 30 {
		postInterval = 60
	}

	return &Config{
		Environment: getEnv("PROMOBOT_ENVIRONMENT", "development"),
		DataDir:     dataDir,

		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", StoreBackendFile)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "promobot"),

		RedisStream:          os.Getenv("REDIS_STREAM"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),

		MemcacheAddr: os.Getenv("MEMCACHE_ADDR"),

		MinDiscount:    getEnvFloat("MIN_DISCOUNT", 0.30),
		TopN:           getEnvInt("TOP_N", 10),
		PostInterval:   time.Duration(postInterval) * time.Second,
		JitterMin:      time.Duration(getEnvInt("POST_JITTER_MIN_SECONDS", 5)) * time.Second,
		JitterMax:      time.Duration(getEnvInt("POST_JITTER_MAX_SECONDS", 15)) * time.Second,
		Pages:          getEnvInt("PAGES", 3),
		ActiveStart:    getEnvInt("ACTIVE_HOUR_START", 8),
		ActiveEnd:      getEnvInt("ACTIVE_HOUR_END", 23),
		CycleInterval:  time.Duration(getEnvInt("CYCLE_INTERVAL_MINUTES", 60)) * time.Minute,
		MinTicket:      getEnvFloat("MIN_TICKET", 100),
		TitleCacheSize: getEnvInt("TITLE_CACHE_SIZE", 500),

		OffersURL:   getEnv("OFFERS_URL", "https://www.mercadolibre.com.mx/ofertas"),
		MinPrice:    getEnvInt("MIN_PRICE", 300),
		MaxPrice:    getEnvInt("MAX_PRICE", 20000),
		SourceBlock: time.Duration(getEnvInt("SOURCE_BLOCK_SECONDS", 300)) * time.Second,

		Validator: ValidatorConfig{
			HistoryTolerance:     getEnvFloat("VALIDATOR_HISTORY_TOLERANCE", 0.05),
			PriceBeforeTolerance: getEnvFloat("VALIDATOR_PRICE_BEFORE_TOLERANCE", 0.10),
			HardRejectPct:        getEnvFloat("VALIDATOR_HARD_REJECT_PCT", 80),
			SuspiciousPct:        getEnvFloat("VALIDATOR_SUSPICIOUS_PCT", 60),
			MinGenuinePct:        getEnvFloat("VALIDATOR_MIN_GENUINE_PCT", 20),
			TrustedReviews:       getEnvInt("VALIDATOR_TRUSTED_REVIEWS", 500),
			TrustedRating:        getEnvFloat("VALIDATOR_TRUSTED_RATING", 4.5),
			MinSuspiciousReviews: getEnvInt("VALIDATOR_MIN_SUSPICIOUS_REVIEWS", 100),
		},

		PriceHistoryEnabled: getEnvBool("PRICE_HISTORY_ENABLED", false),
		PriceHistoryTTL:     time.Duration(getEnvInt("PRICE_HISTORY_TTL_HOURS", 12)) * time.Hour,

		AffiliateEnabled: getEnvBool("AFFILIATE_ENABLED", true),
		AffiliatePrefix:  getEnv("AFFILIATE_PREFIX", "https://mercadolibre.com/sec/"),
		ChromeHeadless:   getEnvBool("CHROME_HEADLESS", false),
		SessionPath:      getEnv("CHROME_SESSION_PATH", filepath.Join(dataDir, "ml_session.json")),
		NavTimeout:       time.Duration(getEnvInt("CHROME_NAV_TIMEOUT_SECONDS", 35)) * time.Second,
		ExtractTimeout:   time.Duration(getEnvInt("AFFILIATE_EXTRACT_TIMEOUT_SECONDS", 10)) * time.Second,
		LoginURL:         getEnv("LOGIN_URL", "https://www.mercadolibre.com.mx"),

		TelegramToken:          strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		TelegramChatID:         strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		TelegramPersonalChatID: strings.TrimSpace(os.Getenv("TELEGRAM_PERSONAL_CHAT_ID")),
		TelegramAPIURL:         getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		AuditDBEnabled: getEnvBool("AUDIT_DB_ENABLED", true),

		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.MinDiscount < 0 || c.MinDiscount >= 1 {
		return errors.NewConfiguration(fmt.Sprintf("MIN_DISCOUNT must be in [0,1), got %v", c.MinDiscount), nil)
	}
	if c.TopN <= 0 {
		return errors.NewConfiguration("TOP_N must be positive", nil)
	}
	if c.Pages <= 0 {
		return errors.NewConfiguration("PAGES must be positive", nil)
	}
	if c.ActiveStart < 0 || c.ActiveEnd > 24 || c.ActiveStart >= c.ActiveEnd {
		return errors.NewConfiguration(fmt.Sprintf("invalid active window %d-%d", c.ActiveStart, c.ActiveEnd), nil)
	}
	if c.JitterMax < c.JitterMin {
		return errors.NewConfiguration("POST_JITTER_MAX_SECONDS must not be below POST_JITTER_MIN_SECONDS", nil)
	}
	if c.MinPrice < 0 || c.MaxPrice <= c.MinPrice {
		return errors.NewConfiguration(fmt.Sprintf("invalid price range %d-%d", c.MinPrice, c.MaxPrice), nil)
	}
	switch c.StoreBackend {
	case StoreBackendFile, StoreBackendRedis:
	default:
		return errors.NewConfiguration(fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend), nil)
	}
	if !strings.HasPrefix(c.AffiliatePrefix, "https://") {
		return errors.NewConfiguration("AFFILIATE_PREFIX must be an https URL", nil)
	}
	v := c.Validator
	if !(v.MinGenuinePct < v.SuspiciousPct && v.SuspiciousPct < v.HardRejectPct) {
		return errors.NewConfiguration("validator bands must satisfy min < suspicious < hard reject", nil)
	}
	return nil
}

// TelegramConfigured reports whether channel credentials are present
func (c *Config) TelegramConfigured() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return v
}
