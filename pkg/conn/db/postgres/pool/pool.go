// Package pool opens pgx connection pools.
package pool

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Pool is the part of *pgxpool.Pool which stores send queries through.
type Pool interface {
	// sending SQL Command which does not have any result rows.
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)

	// sending SQL Command which has just single result row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row

	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

type Option func(*pgxpool.Config)

// WithApplicationName is shown in pg_stat_activity.
func WithApplicationName(name string) Option {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// WithMaxConns caps connections of the pool. It never raises the cap.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if 0 < n && n < c.MaxConns {
			c.MaxConns = n
		}
	}
}

// Configure parses a connection string, then applies options.
func Configure(url string, options ...Option) (*pgxpool.Config, error) {
	c, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Connect opens a pool and checks it can reach the server.
func Connect(ctx context.Context, url string, options ...Option) (Pool, error) {
	c, err := Configure(url, options...)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.ConnectConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
