package mock

import (
	"context"
	"testing"

	"github.com/roundup-project/roundup/pkg/kvstore"
)

type MockStore struct {
	t    *testing.T
	Impl struct {
		Get          func(ctx context.Context, key string) ([]byte, bool, error)
		Put          func(ctx context.Context, key string, value []byte) error
		Exists       func(ctx context.Context, key string) (bool, error)
		Remove       func(ctx context.Context, key string) error
		RemovePrefix func(ctx context.Context, prefix string) error
	}
	Calls struct {
		Get          []string
		Put          []KeyValue
		Exists       []string
		Remove       []string
		RemovePrefix []string
	}
}

type KeyValue struct {
	Key   string
	Value []byte
}

var _ kvstore.Store = &MockStore{}
var _ kvstore.PrefixRemover = &MockStore{}

func New(t *testing.T) *MockStore {
	return &MockStore{t: t}
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.t.Helper()
	m.Calls.Get = append(m.Calls.Get, key)
	if m.Impl.Get == nil {
		m.t.Fatal("[MOCK] Get is not implemented")
	}
	return m.Impl.Get(ctx, key)
}

func (m *MockStore) Put(ctx context.Context, key string, value []byte) error {
	m.t.Helper()
	m.Calls.Put = append(m.Calls.Put, KeyValue{Key: key, Value: value})
	if m.Impl.Put == nil {
		m.t.Fatal("[MOCK] Put is not implemented")
	}
	return m.Impl.Put(ctx, key, value)
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.t.Helper()
	m.Calls.Exists = append(m.Calls.Exists, key)
	if m.Impl.Exists == nil {
		m.t.Fatal("[MOCK] Exists is not implemented")
	}
	return m.Impl.Exists(ctx, key)
}

func (m *MockStore) Remove(ctx context.Context, key string) error {
	m.t.Helper()
	m.Calls.Remove = append(m.Calls.Remove, key)
	if m.Impl.Remove == nil {
		m.t.Fatal("[MOCK] Remove is not implemented")
	}
	return m.Impl.Remove(ctx, key)
}

func (m *MockStore) RemovePrefix(ctx context.Context, prefix string) error {
	m.t.Helper()
	m.Calls.RemovePrefix = append(m.Calls.RemovePrefix, prefix)
	if m.Impl.RemovePrefix == nil {
		m.t.Fatal("[MOCK] RemovePrefix is not implemented")
	}
	return m.Impl.RemovePrefix(ctx, prefix)
}
