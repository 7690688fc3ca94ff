package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/config"
	"github.com/spec-kit/portfolio-admin/migrations"
)

// Connections holds the infrastructure clients the selected session store needs.
// Unused backends stay nil.
type Connections struct {
	Postgres *Postgres
	Redis    *Redis
}

// Open connects only what cfg.Session.Store requires and applies migrations
// for the postgres store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Connections, error) {
	conns := &Connections{}

	switch cfg.Session.Store {
	case config.StorePostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		conns.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
	case config.StoreRedis:
		conns.Redis = NewRedis(ctx, cfg.Redis, logger)
	}

	return conns, nil
}

// Checks returns readiness probes for the connected backends, keyed by name.
func (c *Connections) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if c == nil {
		return checks
	}
	if c.Postgres != nil {
		checks["postgres"] = c.Postgres.Ping
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	return checks
}

// Close releases every open connection.
func (c *Connections) Close() {
	if c == nil {
		return
	}
	c.Postgres.Close()
	c.Redis.Close()
}
