// Package postgres is a kvstore backend on a PostgreSQL table.
//
// The table has columns
//
//	key text primary key, value bytea, create_time timestamptz, update_time timestamptz
//
// and can be created with Create.
package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	kpool "github.com/roundup-project/roundup/pkg/conn/db/postgres/pool"
	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

const backendName = "postgres"

const DefaultTable = "roundup_kv"

type Config struct {
	Table string
}

type Option func(*Config) *Config

// WithTable sets the table name. It is quoted as an identifier.
func WithTable(table string) Option {
	return func(c *Config) *Config {
		c.Table = table
		return c
	}
}

type Store struct {
	pool  kpool.Pool
	table string
}

var _ kvstore.Store = &Store{}
var _ kvstore.PrefixRemover = &Store{}
var _ kvstore.Schema = &Store{}

func New(pool kpool.Pool, options ...Option) *Store {
	c := &Config{Table: DefaultTable}
	for _, o := range options {
		c = o(c)
	}
	return &Store{
		pool:  pool,
		table: pgx.Identifier{c.Table}.Sanitize(),
	}
}

// Open connects to the database and returns a store on it.
func Open(ctx context.Context, url string, options ...Option) (*Store, error) {
	p, err := kpool.Connect(ctx, url, kpool.WithApplicationName("roundup"), kpool.WithMaxConns(4))
	if err != nil {
		return nil, kvstore.Unavailable(backendName, "connect", "", err)
	}
	return New(p, options...), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Create creates the table if not exists.
func (s *Store) Create(ctx context.Context) error {
	_, err := s.pool.Exec(
		ctx,
		`create table if not exists `+s.table+` (
			"key" text primary key,
			"value" bytea not null,
			"create_time" timestamp with time zone not null default now(),
			"update_time" timestamp with time zone not null default now()
		)`,
	)
	return classify("create", "", err)
}

// Drop drops the table if exists.
func (s *Store) Drop(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `drop table if exists `+s.table)
	return classify("drop", "", err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(
		ctx, `select "value" from `+s.table+` where "key" = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.pool.Exec(
		ctx,
		`insert into `+s.table+` ("key", "value") values ($1, $2)
		on conflict ("key") do update set "value" = excluded."value", "update_time" = now()`,
		key, value,
	)
	return classify("put", key, err)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(
		ctx, `select exists (select 1 from `+s.table+` where "key" = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, classify("exists", key, err)
	}
	return exists, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `delete from `+s.table+` where "key" = $1`, key)
	return classify("remove", key, err)
}

func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	// left() does not interpret LIKE wildcards in the prefix.
	_, err := s.pool.Exec(
		ctx, `delete from `+s.table+` where left("key", char_length($1)) = $1`, prefix,
	)
	return classify("remove-prefix", prefix, err)
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return kvstore.Unavailable(backendName, op, key, err)
	}
	return xe.WrapAsOuter(err, 1)
}

// IsTransient tells err is caused by connection trouble or server overload,
// which can be cured by retrying.
func IsTransient(err error) bool {
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return pgerrcode.IsConnectionException(pgerr.Code) ||
			pgerrcode.IsInsufficientResources(pgerr.Code) ||
			pgerrcode.IsOperatorIntervention(pgerr.Code) ||
			pgerr.Code == pgerrcode.SerializationFailure ||
			pgerr.Code == pgerrcode.DeadlockDetected
	}
	return false
}
