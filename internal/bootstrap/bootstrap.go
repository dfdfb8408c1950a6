// Package bootstrap starts the parts every binary shares: the correction
// service, and with a database configured, migrations, the graph lease and
// the restored snapshot.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/config"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/migrate"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/persist"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	graphstorage "github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type Runtime struct {
	Service *correction.Service
	Persist *persist.Persister

	ctx   context.Context
	pool  *pgxpool.Pool
	lease *leaselock.Lease
}

// Start builds the runtime for role ("server", "worker"). With a database
// it blocks until the graph lease is free.
func Start(ctx context.Context, cfg config.Config, role string) (*Runtime, error) {
	svc, err := cfg.NewService()
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Service: svc, Persist: persist.New(nil, cfg.GraphID), ctx: ctx}
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, graph state lives in memory only")
		return rt, nil
	}

	// The database may still be starting next to us.
	err = util.RetryErrWithContext(ctx, 5, func(context.Context) error {
		return migrate.Up(cfg.MigrationsSource, cfg.DatabaseURL)
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	rt.pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	logger.Info("Waiting for graph lease", "graph", cfg.GraphID, "role", role)
	rt.lease, err = leaselock.New(rt.pool).Acquire(ctx, leaselock.GraphKey(cfg.GraphID), leaselock.Options{
		TTL:         cfg.LeaseTTL,
		Wait:        true,
		WaitJitter:  cfg.LeaseTTL / 10,
		TokenPrefix: role + "-",
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to acquire graph lease: %w", err)
	}
	rt.ctx = rt.lease.Context

	rt.Persist = persist.New(graphstorage.NewGraphDBStorageWithConnection(rt.pool), cfg.GraphID)
	if err := rt.Persist.Load(rt.ctx, svc); err != nil {
		rt.Close()
		return nil, err
	}
	logger.Info("Graph loaded", "graph", cfg.GraphID, "version", svc.Version())
	return rt, nil
}

// Context ends when the parent context ends or the graph lease is lost.
func (rt *Runtime) Context() context.Context {
	return rt.ctx
}

func (rt *Runtime) Close() {
	if rt.lease != nil {
		if err := rt.lease.Lost(); err != nil {
			logger.Error("Graph lease was lost before shutdown", "graph", rt.lease.Key, "err", err)
		}
		if err := rt.lease.Release(context.Background()); err != nil {
			logger.Warn("Failed to release graph lease", "err", err)
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	if err := rt.Service.Close(); err != nil {
		logger.Warn("Failed to close vector cache", "err", err)
	}
}
