// Package kvtest is a behaviour suite every kvstore backend should pass.
package kvtest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/roundup-project/roundup/pkg/kvstore"
)

// Run checks the store behaves as a kvstore.Store.
//
// newStore is called once per subtest and must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kvstore.Store) {
	t.Helper()

	t.Run("missing key is not found, without error", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		v, ok, err := s.Get(ctx, "missing")
		if v != nil || ok || err != nil {
			t.Errorf("Get = (%v, %v, %v), want (nil, false, nil)", v, ok, err)
		}
		exists, err := s.Exists(ctx, "missing")
		if exists || err != nil {
			t.Errorf("Exists = (%v, %v), want (false, nil)", exists, err)
		}
	})

	t.Run("put value can be got", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		if err := s.Put(ctx, "k", []byte("v1")); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.Get(ctx, "k")
		if !bytes.Equal(v, []byte("v1")) || !ok || err != nil {
			t.Errorf("Get = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
		}
		exists, err := s.Exists(ctx, "k")
		if !exists || err != nil {
			t.Errorf("Exists = (%v, %v), want (true, nil)", exists, err)
		}
	})

	t.Run("put overwrites the value", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for _, v := range []string{"v1", "v2"} {
			if err := s.Put(ctx, "k", []byte(v)); err != nil {
				t.Fatal(err)
			}
		}
		v, _, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(v, []byte("v2")) {
			t.Errorf("Get = %q, want v2", v)
		}
	})

	t.Run("removed key is not found, and removing twice is fine", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		if err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatal(err)
		}
		for range 2 {
			if err := s.Remove(ctx, "k"); err != nil {
				t.Fatal(err)
			}
		}
		if exists, err := s.Exists(ctx, "k"); exists || err != nil {
			t.Errorf("Exists = (%v, %v), want (false, nil)", exists, err)
		}
	})

	t.Run("keys with special characters are kept apart", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		keys := []string{"a%b", "a_b", "a*b", "a?b", "a[b]", `a\b`, "a/b", "日本"}
		for i, k := range keys {
			if err := s.Put(ctx, k, []byte(fmt.Sprint(i))); err != nil {
				t.Fatal(err)
			}
		}
		for i, k := range keys {
			v, ok, err := s.Get(ctx, k)
			if err != nil || !ok || string(v) != fmt.Sprint(i) {
				t.Errorf("Get(%q) = (%q, %v, %v), want (%d, true, nil)", k, v, ok, err, i)
			}
		}
	})

	t.Run("RemovePrefix removes keys with the prefix only", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for _, k := range []string{"ns/a", "ns/b", "ns_/c", "ns%/d", "other/a", "n"} {
			if err := s.Put(ctx, k, []byte("v")); err != nil {
				t.Fatal(err)
			}
		}

		if err := kvstore.RemovePrefix(ctx, s, "ns/"); err != nil {
			t.Fatal(err)
		}

		for k, want := range map[string]bool{
			"ns/a": false, "ns/b": false,
			"ns_/c": true, "ns%/d": true, "other/a": true, "n": true,
		} {
			exists, err := s.Exists(ctx, k)
			if err != nil {
				t.Fatal(err)
			}
			if exists != want {
				t.Errorf("Exists(%q) = %v, want %v", k, exists, want)
			}
		}
	})

	t.Run("concurrent puts on distinct keys are all committed", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		const n = 16
		wg := sync.WaitGroup{}
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Put(ctx, fmt.Sprintf("key-%d", i), []byte("v"))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
		for i := range n {
			if exists, err := s.Exists(ctx, fmt.Sprintf("key-%d", i)); !exists || err != nil {
				t.Errorf("Exists(key-%d) = (%v, %v), want (true, nil)", i, exists, err)
			}
		}
	})
}
