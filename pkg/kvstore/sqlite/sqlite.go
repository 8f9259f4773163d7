// Package sqlite is a kvstore backend on a SQLite database file.
//
// Many processes on the same host can share the file.
// Do not put the file on a network filesystem.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"github.com/mattn/go-sqlite3"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

const backendName = "sqlite"

var ddls = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY NOT NULL,
		value BLOB NOT NULL,
		create_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
		update_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
	)`,
}

const (
	getValue     = `SELECT value FROM kv WHERE key = ?`
	putValue     = `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value, update_time = CURRENT_TIMESTAMP`
	existsKey    = `SELECT EXISTS (SELECT 1 FROM kv WHERE key = ?)`
	removeKey    = `DELETE FROM kv WHERE key = ?`
	removePrefix = `DELETE FROM kv WHERE substr(key, 1, length(?1)) = ?1`
)

type Store struct {
	db *sql.DB

	stmtGet          *sql.Stmt
	stmtPut          *sql.Stmt
	stmtExists       *sql.Stmt
	stmtRemove       *sql.Stmt
	stmtRemovePrefix *sql.Stmt
}

var _ kvstore.Store = &Store{}
var _ kvstore.PrefixRemover = &Store{}

// Open opens (or creates) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, xe.Wrap(err)
	}

	for _, ddl := range ddls {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, classify("init", "", err)
		}
	}

	s := &Store{db: db}
	if err := s.initStatements(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initStatements(ctx context.Context) error {
	for _, p := range []struct {
		stmt  **sql.Stmt
		query string
	}{
		{stmt: &s.stmtGet, query: getValue},
		{stmt: &s.stmtPut, query: putValue},
		{stmt: &s.stmtExists, query: existsKey},
		{stmt: &s.stmtRemove, query: removeKey},
		{stmt: &s.stmtRemovePrefix, query: removePrefix},
	} {
		stmt, err := s.db.PrepareContext(ctx, p.query)
		if err != nil {
			return xe.WrapWithNote("prepare: "+p.query, err)
		}
		*p.stmt = stmt
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.stmtGet.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err := s.stmtPut.ExecContext(ctx, key, value)
	return classify("put", key, err)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := s.stmtExists.QueryRowContext(ctx, key).Scan(&exists); err != nil {
		return false, classify("exists", key, err)
	}
	return exists, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.stmtRemove.ExecContext(ctx, key)
	return classify("remove", key, err)
}

func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	_, err := s.stmtRemovePrefix.ExecContext(ctx, prefix)
	return classify("remove-prefix", prefix, err)
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return kvstore.Unavailable(backendName, op, key, err)
		}
	}
	return xe.WrapAsOuter(err, 1)
}
