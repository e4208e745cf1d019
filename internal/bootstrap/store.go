// Package bootstrap opens the configured booking store for the binaries.
package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/config"
	"github.com/iliyamo/tourism-booking/internal/database"
	"github.com/iliyamo/tourism-booking/internal/handler"
	"github.com/iliyamo/tourism-booking/internal/repository"
	"github.com/iliyamo/tourism-booking/internal/repository/memory"
	"github.com/iliyamo/tourism-booking/internal/repository/postgres"
	"github.com/iliyamo/tourism-booking/internal/service"
	"github.com/iliyamo/tourism-booking/migrations"
)

// Store is an open booking store plus what the caller needs to watch and
// close it.
type Store struct {
	service.Store
	Pingers map[string]handler.Pinger
	Close   func()
}

// OpenStore connects the store cfg selects and applies migrations when
// cfg.Migrate is set.  lockWait bounds row lock waits in transactions.
func OpenStore(ctx context.Context, cfg config.StoreConfig, lockWait time.Duration, log *zap.Logger) (*Store, error) {
	pingers := map[string]handler.Pinger{}
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := migrations.ApplyPostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		pingers["postgres"] = pool.Ping
		return &Store{Store: postgres.NewStore(pool, lockWait), Pingers: pingers, Close: pool.Close}, nil

	case config.DriverMemory:
		log.Warn("using the in-memory store; data is lost on restart")
		return &Store{Store: memory.New(memory.WithLockTimeout(lockWait)), Pingers: pingers, Close: func() {}}, nil

	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := migrations.ApplyMySQL(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		pingers["mysql"] = db.PingContext
		return &Store{Store: repository.NewStore(db, lockWait), Pingers: pingers, Close: func() { _ = db.Close() }}, nil
	}
}
