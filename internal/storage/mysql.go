// Package storage implements the MySQL persistence layer: split
// read/write connection pools with an adaptive health check, and the
// draw, omission, daily-stats and prediction stores.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver registration.

	"github.com/04By0302/jnd-vps/internal/config"
)

// Health check cadence: fast while unhealthy, slow while healthy, with
// exponential backoff between reconnection attempts.
const (
	healthyProbeInterval   = 30 * time.Second
	unhealthyProbeInterval = 2 * time.Second
	probeTimeout           = 3 * time.Second
	reconnectBackoffBase   = 2 * time.Second
	reconnectBackoffCap    = 60 * time.Second
)

// Pools holds the split read/write connection pools. The read pool is
// sized for orders of magnitude more concurrency than the write pool;
// the single-writer-per-issue lock keeps write contention low.
type Pools struct {
	Read  *sql.DB
	Write *sql.DB

	log     *slog.Logger
	healthy atomic.Bool
}

// OpenPools opens both pools and verifies connectivity. An unreachable
// database at startup is a fatal configuration error.
func OpenPools(ctx context.Context, cfg config.MySQLConfig, log *slog.Logger) (*Pools, error) {
	read, err := openPool(cfg.DSN, cfg.ReadMaxConns, cfg.ConnMaxLife)
	if err != nil {
		return nil, fmt.Errorf("open read pool: %w", err)
	}

	write, err := openPool(cfg.DSN, cfg.WriteMaxConns, cfg.ConnMaxLife)
	if err != nil {
		_ = read.Close()

		return nil, fmt.Errorf("open write pool: %w", err)
	}

	p := &Pools{Read: read, Write: write, log: log}

	pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.Write.PingContext(pingCtx); err != nil {
		_ = read.Close()
		_ = write.Close()

		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	p.healthy.Store(true)

	return p, nil
}

func openPool(dsn string, maxConns int, maxLife time.Duration) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(maxLife)

	return db, nil
}

// Healthy reports the last observed pool health.
func (p *Pools) Healthy() bool { return p.healthy.Load() }

// Ready is a readiness check over the write pool.
func (p *Pools) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	return p.Write.PingContext(ctx)
}

// StartHealthLoop probes both pools with adaptive cadence until ctx is
// cancelled: fast while unhealthy with exponential backoff between
// reconnection attempts, slow while healthy.
func (p *Pools) StartHealthLoop(ctx context.Context) {
	backoff := reconnectBackoffBase
	timer := time.NewTimer(healthyProbeInterval)

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := p.probe(ctx)

		switch {
		case err == nil && !p.healthy.Load():
			p.healthy.Store(true)
			backoff = reconnectBackoffBase

			p.log.Info("database pools recovered")
			timer.Reset(healthyProbeInterval)
		case err == nil:
			timer.Reset(healthyProbeInterval)
		default:
			if p.healthy.Load() {
				p.log.Warn("database pools unhealthy", "error", err)
			}

			p.healthy.Store(false)

			wait := max(unhealthyProbeInterval, backoff)
			timer.Reset(wait)

			backoff = min(backoff*2, reconnectBackoffCap)
		}
	}
}

func (p *Pools) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.Read.PingContext(ctx); err != nil {
		return fmt.Errorf("read pool: %w", err)
	}

	if err := p.Write.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}

	return nil
}

// Close closes both pools.
func (p *Pools) Close() error {
	readErr := p.Read.Close()
	writeErr := p.Write.Close()

	if readErr != nil {
		return readErr
	}

	return writeErr
}
