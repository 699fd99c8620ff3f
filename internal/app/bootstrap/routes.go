// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	ballotsfeature "github.com/dalemusser/boardhub/internal/app/features/ballots"
	completionhookfeature "github.com/dalemusser/boardhub/internal/app/features/completionhook"
	errorsfeature "github.com/dalemusser/boardhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/boardhub/internal/app/features/health"
	itemsfeature "github.com/dalemusser/boardhub/internal/app/features/items"
	ledgerfeature "github.com/dalemusser/boardhub/internal/app/features/ledger"
	notifytriggerfeature "github.com/dalemusser/boardhub/internal/app/features/notifytrigger"
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed, so the pipeline and its collaborators already
// exist in deps.Services.
//
// Surfaces:
//   - /items: ballots (board members and admins)
//   - /admin: item lifecycle, manual notifications, ledger (admins)
//   - /api/completion: inbound completion webhook (bearer token)
//   - /health, /metrics
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.Pipeline == nil {
		return nil, errors.New("services not initialised; Startup must run before BuildHandler")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	return routes(deps, sessionMgr, logger), nil
}

func routes(deps DBDeps, sessionMgr *auth.SessionManager, logger *zap.Logger) chi.Router {
	svc := deps.Services
	errLog := errorsfeature.NewErrorLogger(logger)

	r := chi.NewRouter()

	// Loads the SessionUser into context when the cookie carries one.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.Pinger, deps.Backend, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{Registry: svc.Registry}))

	// Ballots
	ballotsHandler := ballotsfeature.NewHandler(deps.Votes, svc.Pipeline, svc.Limiter, errLog, logger, svc.Metrics)
	r.Mount("/items", ballotsfeature.Routes(ballotsHandler, sessionMgr))

	// Admin
	itemsHandler := itemsfeature.NewHandler(deps.Votes, deps.Roster, errLog, logger)
	triggerHandler := notifytriggerfeature.NewHandler(svc.Pipeline, errLog, logger)
	ledgerHandler := ledgerfeature.NewHandler(svc.Ledger, deps.Roster, errLog, logger)
	r.Route("/admin", func(ar chi.Router) {
		ar.Mount("/items", itemsfeature.Routes(itemsHandler, sessionMgr))
		ar.Mount("/notifications", notifytriggerfeature.Routes(triggerHandler, sessionMgr))
		ar.Mount("/ledger", ledgerfeature.Routes(ledgerHandler, sessionMgr))
	})

	// Inbound completion webhook
	hookHandler := completionhookfeature.NewHandler(svc.Pipeline, svc.Ledger, svc.Signer, errLog, logger)
	r.Mount("/api/completion", completionhookfeature.Routes(hookHandler))

	return r
}
