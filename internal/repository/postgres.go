package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PoolConfig struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetimeS int
	ConnMaxIdleTimeS int
}

func NewPostgresDB(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresDB: open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTimeS) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresDB: ping: %w", err)
	}

	return db, nil
}

// WaitForPostgres retries NewPostgresDB until it succeeds, attempts run out
// or ctx is done.
func WaitForPostgres(ctx context.Context, databaseURL string, pool PoolConfig, attempts int, delay time.Duration) (*sql.DB, error) {
	var lastErr error
	for i := range attempts {
		db, err := NewPostgresDB(ctx, databaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("WaitForPostgres: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("WaitForPostgres: after %d attempts: %w", attempts, lastErr)
}
