// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/auditlog"
	"github.com/dalemusser/boardhub/internal/app/system/completion"
	"github.com/dalemusser/boardhub/internal/app/system/hooktoken"
	"github.com/dalemusser/boardhub/internal/app/system/mailer"
	"github.com/dalemusser/boardhub/internal/app/system/metrics"
	"github.com/dalemusser/boardhub/internal/app/system/notify"
	"github.com/dalemusser/boardhub/internal/app/system/pipeline"
	"github.com/dalemusser/boardhub/internal/app/system/ratelimit"
	"github.com/dalemusser/boardhub/internal/app/system/tasks"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/messaging"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// natsConnectTimeout bounds how long startup waits for the events bus.
const natsConnectTimeout = 10 * time.Second

// Services are the long-lived components built once at startup.
type Services struct {
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Ledger    storage.Ledger
	Pipeline  *pipeline.Pipeline
	Limiter   ratelimit.Limiter
	Signer    *hooktoken.Signer
	Scheduler *tasks.Scheduler

	events *messaging.JetStream
	redis  *redis.Client
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the completion pipeline and starts the deadline sweep.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Delivery: appCfg.DeliveryTimeout})

	svc, err := NewServices(ctx, appCfg, deps, logger)
	if err != nil {
		return err
	}
	*deps.Services = *svc

	deps.Services.Scheduler.Start()
	logger.Info("boardhub started",
		zap.String("backend", deps.Backend),
		zap.Duration("sweep_interval", appCfg.SweepInterval),
		zap.Bool("events", svc.events != nil),
		zap.Bool("shared_rate_limit", svc.redis != nil))
	return nil
}

// NewServices assembles everything Startup owns without starting
// background work.
func NewServices(ctx context.Context, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Services, error) {
	svc := &Services{Registry: prometheus.NewRegistry()}
	svc.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.Metrics = metrics.New(svc.Registry)

	svc.Ledger = auditlog.New(deps.Ledger, logger, auditlog.Config{Mode: appCfg.LedgerLog})

	var transport notify.Transport
	if appCfg.MailMode == "log" {
		logger.Warn("mail_mode is 'log'; summaries are logged, not delivered")
		transport = mailer.NewLogMailer(logger)
	} else {
		transport = mailer.New(mailer.Config{
			Host:     appCfg.MailSMTPHost,
			Port:     appCfg.MailSMTPPort,
			User:     appCfg.MailSMTPUser,
			Pass:     appCfg.MailSMTPPass,
			From:     appCfg.MailFrom,
			FromName: appCfg.MailFromName,
			Timeout:  appCfg.DeliveryTimeout,
		}, logger)
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if appCfg.NATSURL != "" {
		js, err := messaging.Connect(appCfg.NATSURL, natsConnectTimeout, logger)
		if err != nil {
			// Events are advisory; run without them.
			logger.Warn("completion events disabled", zap.Error(err))
		} else {
			svc.events = js
			publisher = js
		}
	}

	detector := completion.New(deps.Votes, logger, svc.Metrics)
	dispatcher := notify.New(deps.Votes, svc.Ledger, deps.Roster, transport, notify.Config{
		SiteName:       appCfg.SiteName,
		BaseURL:        appCfg.BaseURL,
		Attempts:       appCfg.DeliveryAttempts,
		InitialBackoff: appCfg.DeliveryInitialBackoff,
		Concurrency:    appCfg.FanoutConcurrency,
	}, logger, svc.Metrics)
	svc.Pipeline = pipeline.New(deps.Votes, svc.Ledger, detector, dispatcher, publisher, pipeline.Config{
		SweepConcurrency: appCfg.SweepConcurrency,
		RetryWindow:      appCfg.RetryWindow,
		RetryInterval:    appCfg.RetryInterval,
	}, logger, svc.Metrics)

	if appCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The limiter fails open per request; a dead Redis at boot is
			// reported but not fatal.
			logger.Warn("redis ping failed; ballot limits will fail open until it recovers", zap.Error(err))
		}
		svc.redis = rdb
		svc.Limiter = ratelimit.NewRedis(rdb, "boardhub:ballot:", appCfg.BallotRateLimit, appCfg.BallotRateWindow)
	} else {
		svc.Limiter = ratelimit.NewMemory(appCfg.BallotRateLimit, appCfg.BallotRateWindow)
	}

	svc.Signer = hooktoken.New(appCfg.WebhookSecret)

	svc.Scheduler = tasks.NewScheduler(logger)
	svc.Scheduler.Add(tasks.DeadlineSweepJob(svc.Pipeline, logger, appCfg.SweepInterval))

	return svc, nil
}
