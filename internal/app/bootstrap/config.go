// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/boardhub/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// Store backends.
const (
	BackendMongo    = "mongo"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// appConfigKeys defines the configuration keys for BoardHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: BOARDHUB_MONGO_URI, BOARDHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Vote store backend: 'mongo', 'sqlite' or 'postgres'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "boardhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "sql_dsn", Default: "boardhub.db", Desc: "SQLite file path or Postgres DSN"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "boardhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Email/SMTP configuration
	{Name: "mail_mode", Default: "smtp", Desc: "Summary delivery: 'smtp' or 'log'"},
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@boardhub.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "BoardHub", Desc: "From display name"},

	// Summary content
	{Name: "site_name", Default: "BoardHub", Desc: "Board name shown in voting summaries"},
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for item links in summaries"},

	// Completion webhook
	{Name: "webhook_secret", Default: "", Desc: "HS256 secret for completion webhook tokens (blank disables the webhook)"},

	// Ballot rate limiting
	{Name: "redis_addr", Default: "", Desc: "Redis address for shared ballot rate limits (blank uses in-process limits)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "ballot_rate_limit", Default: 10, Desc: "Ballot submissions allowed per voter per item per window"},
	{Name: "ballot_rate_window", Default: "1m", Desc: "Ballot rate limit window (e.g., 1m, 30s)"},

	// Deadline sweep
	{Name: "sweep_interval", Default: "1m", Desc: "How often expired voting deadlines are swept"},
	{Name: "sweep_concurrency", Default: 4, Desc: "Items processed in parallel during a sweep"},
	{Name: "dispatch_retry_window", Default: "24h", Desc: "How long after completion the sweep retries an undelivered summary"},
	{Name: "dispatch_retry_interval", Default: "10m", Desc: "Minimum gap between summary dispatch attempts for one item"},

	// Summary delivery
	{Name: "delivery_attempts", Default: 3, Desc: "Delivery attempts per recipient"},
	{Name: "delivery_initial_backoff", Default: "500ms", Desc: "Backoff before the second delivery attempt"},
	{Name: "delivery_timeout", Default: "20s", Desc: "Timeout for one delivery attempt"},
	{Name: "fanout_concurrency", Default: 8, Desc: "Recipients delivered to in parallel"},

	// Completion events
	{Name: "nats_url", Default: "", Desc: "NATS URL for completion events (blank disables publishing)"},

	// Ledger logging
	{Name: "ledger_log", Default: auditlog.ModeAll, Desc: "Ledger mirroring: 'all' (db+log) or 'db'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, BOARDHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "BOARDHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend:     strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SQLDSN:           appValues.String("sql_dsn"),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),

		// Email/SMTP
		MailMode:     strings.ToLower(strings.TrimSpace(appValues.String("mail_mode"))),
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		SiteName: appValues.String("site_name"),
		BaseURL:  appValues.String("base_url"),

		WebhookSecret: appValues.String("webhook_secret"),

		// Rate limiting
		RedisAddr:        appValues.String("redis_addr"),
		RedisPassword:    appValues.String("redis_password"),
		RedisDB:          appValues.Int("redis_db"),
		BallotRateLimit:  appValues.Int("ballot_rate_limit"),
		BallotRateWindow: appValues.Duration("ballot_rate_window", time.Minute),

		// Sweep
		SweepInterval:    appValues.Duration("sweep_interval", time.Minute),
		SweepConcurrency: appValues.Int("sweep_concurrency"),
		RetryWindow:      appValues.Duration("dispatch_retry_window", 24*time.Hour),
		RetryInterval:    appValues.Duration("dispatch_retry_interval", 10*time.Minute),

		// Delivery
		DeliveryAttempts:       appValues.Int("delivery_attempts"),
		DeliveryInitialBackoff: appValues.Duration("delivery_initial_backoff", 500*time.Millisecond),
		DeliveryTimeout:        appValues.Duration("delivery_timeout", 20*time.Second),
		FanoutConcurrency:      appValues.Int("fanout_concurrency"),

		NATSURL:   appValues.String("nats_url"),
		LedgerLog: strings.ToLower(strings.TrimSpace(appValues.String("ledger_log"))),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Backend-specific connection settings are checked here so misconfiguration
// fails before any connection is attempted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if strings.TrimSpace(appCfg.MongoDatabase) == "" {
			return fmt.Errorf("mongo_database is required for the mongo backend")
		}
	case BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(appCfg.SQLDSN) == "" {
			return fmt.Errorf("sql_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store_backend must be 'mongo', 'sqlite' or 'postgres', got %q", appCfg.StoreBackend)
	}

	switch appCfg.MailMode {
	case "smtp":
		if strings.TrimSpace(appCfg.MailSMTPHost) == "" || appCfg.MailSMTPPort <= 0 {
			return fmt.Errorf("mail_mode 'smtp' requires mail_smtp_host and mail_smtp_port")
		}
		if strings.TrimSpace(appCfg.MailFrom) == "" {
			return fmt.Errorf("mail_from is required for mail_mode 'smtp'")
		}
	case "log":
	default:
		return fmt.Errorf("mail_mode must be 'smtp' or 'log', got %q", appCfg.MailMode)
	}

	if u, err := url.Parse(appCfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", appCfg.BaseURL)
	}

	switch appCfg.LedgerLog {
	case auditlog.ModeAll, auditlog.ModeDB:
	default:
		return fmt.Errorf("ledger_log must be 'all' or 'db', got %q", appCfg.LedgerLog)
	}

	if appCfg.SweepInterval < time.Second {
		return fmt.Errorf("sweep_interval must be at least 1s, got %s", appCfg.SweepInterval)
	}
	if appCfg.DeliveryAttempts < 1 {
		return fmt.Errorf("delivery_attempts must be at least 1")
	}
	if appCfg.BallotRateLimit < 1 || appCfg.BallotRateWindow <= 0 {
		return fmt.Errorf("ballot_rate_limit and ballot_rate_window must be positive")
	}

	if appCfg.WebhookSecret == "" {
		logger.Warn("webhook_secret is empty; the completion webhook will reject every call")
	}
	return nil
}
