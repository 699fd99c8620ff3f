// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	ledgerstore "github.com/dalemusser/boardhub/internal/app/store/ledger"
	"github.com/dalemusser/boardhub/internal/app/store/sqlstore"
	userstore "github.com/dalemusser/boardhub/internal/app/store/users"
	votestore "github.com/dalemusser/boardhub/internal/app/store/votes"
	"github.com/dalemusser/boardhub/internal/app/system/indexes"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB connects the configured store backend and resolves the storage
// interfaces the rest of the app depends on.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{Backend: appCfg.StoreBackend, Services: &Services{}}

	switch appCfg.StoreBackend {
	case BackendMongo:
		client, err := connectMongo(ctx, appCfg, logger)
		if err != nil {
			return DBDeps{}, err
		}
		db := client.Database(appCfg.MongoDatabase)
		votes := votestore.New(db, logger)
		deps.MongoClient = client
		deps.MongoDatabase = db
		deps.Votes = votes
		deps.Ledger = ledgerstore.New(db)
		deps.Roster = userstore.New(db)
		deps.Pinger = votes

	case BackendSQLite, BackendPostgres:
		st, err := sqlstore.Open(sqlstore.Config{Driver: appCfg.StoreBackend, DSN: appCfg.SQLDSN})
		if err != nil {
			logger.Error("SQL store open failed",
				zap.String("backend", appCfg.StoreBackend), zap.Error(err))
			return DBDeps{}, fmt.Errorf("open %s store: %w", appCfg.StoreBackend, err)
		}
		deps.SQL = st
		deps.Votes = st
		deps.Ledger = st
		deps.Roster = st
		deps.Pinger = st
		logger.Info("connected to SQL store", zap.String("backend", appCfg.StoreBackend))

	default:
		return DBDeps{}, fmt.Errorf("unknown store backend %q", appCfg.StoreBackend)
	}

	return deps, nil
}

func connectMongo(ctx context.Context, appCfg AppConfig, logger *zap.Logger) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(appCfg.MongoURI).SetAppName("boardhub")
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))
	return client, nil
}

// EnsureSchema sets up indexes or schema as needed. The SQL backends migrate
// when opened; Mongo gets its indexes here.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoDatabase == nil {
		return nil
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
