// Package redis is a kvstore backend on a Redis server.
package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

const backendName = "redis"

type Config struct {
	// KeyPrefix is prepended to every key, to share a server with others.
	KeyPrefix string

	// ScanCount is the COUNT hint of SCAN used by RemovePrefix.
	ScanCount int64
}

type Option func(*Config) *Config

func WithKeyPrefix(prefix string) Option {
	return func(c *Config) *Config {
		c.KeyPrefix = prefix
		return c
	}
}

type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
	scanCount int64
}

var _ kvstore.Store = &Store{}
var _ kvstore.PrefixRemover = &Store{}

func New(client goredis.UniversalClient, options ...Option) *Store {
	c := &Config{ScanCount: 1000}
	for _, o := range options {
		c = o(c)
	}
	return &Store{client: client, keyPrefix: c.KeyPrefix, scanCount: c.ScanCount}
}

// Open connects to the redis server at addr ("host:port").
func Open(ctx context.Context, addr string, password string, db int, options ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, classify("connect", "", err)
	}
	return New(client, options...), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return classify("put", key, s.client.Set(ctx, s.keyPrefix+key, value, 0).Err())
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, classify("exists", key, err)
	}
	return n == 1, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return classify("remove", key, s.client.Del(ctx, s.keyPrefix+key).Err())
}

// RemovePrefix deletes keys found by SCAN.
//
// It is not atomic: a key put while scanning may survive.
func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	pattern := globEscape(s.keyPrefix+prefix) + "*"
	iter := s.client.Scan(ctx, 0, pattern, s.scanCount).Iterator()

	batch := make([]string, 0, s.scanCount)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= s.scanCount {
			if err := flush(); err != nil {
				return classify("remove-prefix", prefix, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return classify("remove-prefix", prefix, err)
	}
	return classify("remove-prefix", prefix, flush())
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`,
)

func globEscape(s string) string {
	return globEscaper.Replace(s)
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

// IsTransient tells err is caused by network trouble or a busy server.
func IsTransient(err error) bool {
	if errors.Is(err, goredis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := err.Error()
	for _, p := range []string{"LOADING ", "BUSY ", "TRYAGAIN ", "CLUSTERDOWN ", "MASTERDOWN "} {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}
