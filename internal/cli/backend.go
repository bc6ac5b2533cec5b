package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/pgstore"
	"github.com/roach88/basicio/internal/store"
)

// backend bundles the resource repository and the run log.
// Resources live in PostgreSQL when a database URL is configured; the run log
// always stays in the SQLite file.
type backend struct {
	repo engine.Repository
	runs *store.Store
	pg   *pgstore.Store
}

func openBackend(ctx context.Context, settings config.Settings) (*backend, error) {
	runs, err := store.Open(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", settings.DBPath, err)
	}
	b := &backend{repo: runs, runs: runs}

	if settings.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, settings.DatabaseURL, pgstore.PoolOptions{
			MaxConns: int32(max(settings.Workers, 4)),
		})
		if err != nil {
			runs.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.repo = pg
		b.pg = pg
		slog.Debug("resources stored in postgres")
	}
	return b, nil
}

func (b *backend) Close() error {
	if b.pg != nil {
		b.pg.Close()
	}
	return b.runs.Close()
}

// engineOptions maps settings onto engine options.
func engineOptions(settings config.Settings, runs engine.ReportLog) []engine.Option {
	opts := []engine.Option{
		engine.WithWorkers(settings.Workers),
		engine.WithLookupTimeout(settings.LookupTimeout),
		engine.WithPersistTimeout(settings.PersistTimeout),
		engine.WithMaxBatchSize(settings.MaxBatchSize),
		engine.WithCacheSize(settings.CacheSize),
		engine.WithLogger(slog.Default()),
	}
	if runs != nil {
		opts = append(opts, engine.WithReportLog(runs))
	}
	return opts
}
