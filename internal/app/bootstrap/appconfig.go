// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// HTTP server, logging and CORS; everything below is BoardHub's own.
type AppConfig struct {
	// Store backend: "mongo", "sqlite" or "postgres"
	StoreBackend string

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// SQL connection (sqlite file path or postgres DSN)
	SQLDSN string

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: boardhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Email/SMTP configuration
	MailMode     string // "smtp" delivers; "log" writes summaries to the log
	MailSMTPHost string
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	// Summary content
	SiteName string // Board name shown in summaries
	BaseURL  string // e.g., "https://board.example.org"; item links are built from it

	// Completion webhook
	WebhookSecret string // HS256 secret; blank disables the webhook

	// Ballot rate limiting (shared across instances when RedisAddr is set)
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	BallotRateLimit  int
	BallotRateWindow time.Duration

	// Deadline sweep
	SweepInterval    time.Duration
	SweepConcurrency int
	RetryWindow      time.Duration // undelivered summaries are retried this long after completion
	RetryInterval    time.Duration

	// Summary delivery
	DeliveryAttempts       int
	DeliveryInitialBackoff time.Duration
	DeliveryTimeout        time.Duration
	FanoutConcurrency      int

	// Completion events (NATS JetStream); blank disables publishing
	NATSURL string

	// Ledger mirroring: "all" (db+log) or "db"
	LedgerLog string
}
