// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, lets in-flight post-ballot checks finish,
// then closes connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var errs []error

	if svc := deps.Services; svc != nil {
		if svc.Scheduler != nil {
			svc.Scheduler.Stop()
		}
		if svc.Pipeline != nil {
			done := make(chan struct{})
			go func() {
				svc.Pipeline.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("shutdown deadline reached with completion checks in flight")
			}
		}
		if svc.events != nil {
			svc.events.Close()
		}
		if svc.redis != nil {
			if err := svc.redis.Close(); err != nil {
				logger.Error("redis close failed", zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if deps.SQL != nil {
		if err := deps.SQL.Close(); err != nil {
			logger.Error("SQL store close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
