// Package db opens the optional Postgres pool.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	parseConfig = pgxpool.ParseConfig
	newPool     = pgxpool.NewWithConfig
	pingPool    = func(ctx context.Context, p *pgxpool.Pool) error { return p.Ping(ctx) }
)

// InitPostgres connects to dsn and verifies the connection.
func InitPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := parseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pingPool(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Infof("connected to postgres at %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return pool, nil
}
