// Package database opens the PostgreSQL pool backing the commerce store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// TxQuerier is implemented by both pgxpool.Pool and pgx.Tx.
// Repository methods that need transaction support should accept TxQuerier.
type TxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// connectBackOff doubles the wait from one second: 1s, 2s, 4s, 8s...
func connectBackOff(attempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0
	return backoff.WithMaxRetries(exp, uint64(attempts-1))
}

// NewPool creates a PostgreSQL connection pool, making up to attempts tries
// (at least one) with exponential backoff between them.
func NewPool(ctx context.Context, dsn string, attempts int) (*pgxpool.Pool, error) {
	if attempts < 1 {
		attempts = 1
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	var pool *pgxpool.Pool
	tries := 0
	connect := func() error {
		tries++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping failed: %w", err)
		}
		pool = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", tries).
			Int("max_attempts", attempts).
			Dur("next_retry_in", next).
			Msg("database connection failed, retrying")
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(connectBackOff(attempts), ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", tries, err)
	}

	log.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connection established")
	return pool, nil
}
