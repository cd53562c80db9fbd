package bank

import (
	"context"
	"fmt"
	"log/slog"
)

// Ping runs a trivial query to prove the connection works.
func (b *Bank) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	rows, err := b.exec.QueryContext(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	return rows.Close()
}

// Start runs the connection check and migrations according to the auto
// switches.
func (b *Bank) Start(ctx context.Context) error {
	logger := b.loggerFor(ctx)

	if b.auto.Connect {
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("database connection check failed: %w", err)
		}
		logger.Info("connected to database")
	}

	if b.auto.Migrate {
		if b.migrator == nil {
			return ErrNoMigrator
		}
		if err := b.migrator.Latest(ctx, b.db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("database migrated to latest")
	}
	return nil
}

// Stop closes the pool when auto destroy is enabled.
func (b *Bank) Stop(ctx context.Context) error {
	if !b.auto.Destroy {
		return nil
	}
	if err := b.Close(); err != nil {
		return err
	}
	b.loggerFor(ctx).Info("database connection closed")
	return nil
}

// Close releases the pool and the stats registration. Repeated calls are
// no-ops.
func (b *Bank) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if b.stats != nil {
		if err := b.stats.Unregister(); err != nil {
			b.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
		}
	}
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
