package main

import (
	"fmt"
	"time"

	"github.com/dalemusser/boardhub/internal/app/bootstrap"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix matches the server so one .env serves both.
const envPrefix = "BOARDHUB"

// Config is read from BOARDHUB_* environment variables.
type Config struct {
	StoreBackend     string `envconfig:"STORE_BACKEND" default:"mongo"`
	MongoURI         string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase    string `envconfig:"MONGO_DATABASE" default:"boardhub"`
	MongoMaxPoolSize uint64 `envconfig:"MONGO_MAX_POOL_SIZE" default:"10"`
	SQLDSN           string `envconfig:"SQL_DSN" default:"boardhub.db"`

	MailMode     string `envconfig:"MAIL_MODE" default:"smtp"`
	MailSMTPHost string `envconfig:"MAIL_SMTP_HOST" default:"localhost"`
	MailSMTPPort int    `envconfig:"MAIL_SMTP_PORT" default:"1025"`
	MailSMTPUser string `envconfig:"MAIL_SMTP_USER"`
	MailSMTPPass string `envconfig:"MAIL_SMTP_PASS"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"noreply@boardhub.local"`
	MailFromName string `envconfig:"MAIL_FROM_NAME" default:"BoardHub"`

	SiteName string `envconfig:"SITE_NAME" default:"BoardHub"`
	BaseURL  string `envconfig:"BASE_URL" default:"http://localhost:3000"`

	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	SweepConcurrency       int           `envconfig:"SWEEP_CONCURRENCY" default:"4"`
	DeliveryAttempts       int           `envconfig:"DELIVERY_ATTEMPTS" default:"3"`
	DeliveryInitialBackoff time.Duration `envconfig:"DELIVERY_INITIAL_BACKOFF" default:"500ms"`
	DeliveryTimeout        time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"20s"`
	FanoutConcurrency      int           `envconfig:"FANOUT_CONCURRENCY" default:"8"`

	NATSURL   string `envconfig:"NATS_URL"`
	LedgerLog string `envconfig:"LEDGER_LOG" default:"all"`
}

// loadConfig reads envFile (when it exists) and then the environment.
// Variables already set in the environment win over the file.
func loadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && envFile != defaultEnvFile {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// appConfig maps the CLI settings onto the server's AppConfig. Rate limiting
// and the scheduler are unused by a single sweep run.
func (c Config) appConfig() bootstrap.AppConfig {
	return bootstrap.AppConfig{
		StoreBackend:           c.StoreBackend,
		MongoURI:               c.MongoURI,
		MongoDatabase:          c.MongoDatabase,
		MongoMaxPoolSize:       c.MongoMaxPoolSize,
		SQLDSN:                 c.SQLDSN,
		MailMode:               c.MailMode,
		MailSMTPHost:           c.MailSMTPHost,
		MailSMTPPort:           c.MailSMTPPort,
		MailSMTPUser:           c.MailSMTPUser,
		MailSMTPPass:           c.MailSMTPPass,
		MailFrom:               c.MailFrom,
		MailFromName:           c.MailFromName,
		SiteName:               c.SiteName,
		BaseURL:                c.BaseURL,
		WebhookSecret:          c.WebhookSecret,
		BallotRateLimit:        1,
		BallotRateWindow:       time.Minute,
		SweepInterval:          time.Minute,
		SweepConcurrency:       c.SweepConcurrency,
		DeliveryAttempts:       c.DeliveryAttempts,
		DeliveryInitialBackoff: c.DeliveryInitialBackoff,
		DeliveryTimeout:        c.DeliveryTimeout,
		FanoutConcurrency:      c.FanoutConcurrency,
		NATSURL:                c.NATSURL,
		LedgerLog:              c.LedgerLog,
	}
}
