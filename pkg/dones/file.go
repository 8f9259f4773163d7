package dones

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// FileDones keeps marks in append-only files, one file per namespace.
//
// Each line of a file is `done <json string>` or `undo <json string>`,
// and the last line for a name wins.
// It needs no database, but every query reads the whole file.
// Concurrent writers on one host are fine for short lines (O_APPEND),
// but a network filesystem may interleave them.
type FileDones struct {
	dir string
	mu  sync.Mutex
}

var _ Dones = &FileDones{}

// NewFile returns Dones keeping files in dir. dir is created if missing.
func NewFile(dir string) (*FileDones, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xe.Wrap(err)
	}
	return &FileDones{dir: dir}, nil
}

func (f *FileDones) path(ns string) string {
	return filepath.Join(f.dir, url.PathEscape(ns)+".dones")
}

const (
	opDone = "done"
	opUndo = "undo"
)

func (f *FileDones) append(ns, op, name string) error {
	k, err := json.Marshal(name)
	if err != nil {
		return xe.Wrap(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.OpenFile(f.path(ns), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xe.Wrap(err)
	}
	if _, err := fmt.Fprintf(fp, "%s %s\n", op, k); err != nil {
		fp.Close()
		return xe.Wrap(err)
	}
	return xe.Wrap(fp.Close())
}

// load reads the file and returns the set of names done.
func (f *FileDones) load(ns string) (map[string]struct{}, error) {
	done := map[string]struct{}{}

	fp, err := os.Open(f.path(ns))
	if errors.Is(err, fs.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer fp.Close()

	sc := bufio.NewScanner(fp)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno += 1
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		op, rawName, ok := strings.Cut(line, " ")
		if !ok {
			return nil, xe.Errorf("%s:%d: malformed line", f.path(ns), lineno)
		}
		var name string
		if err := json.Unmarshal([]byte(rawName), &name); err != nil {
			return nil, xe.WrapWithNote(fmt.Sprintf("%s:%d", f.path(ns), lineno), err)
		}
		switch op {
		case opDone:
			done[name] = struct{}{}
		case opUndo:
			delete(done, name)
		default:
			return nil, xe.Errorf("%s:%d: unknown operation %q", f.path(ns), lineno, op)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return done, nil
}

func (f *FileDones) Done(ctx context.Context, ns, name string) (bool, error) {
	done, err := f.load(ns)
	if err != nil {
		return false, err
	}
	_, ok := done[name]
	return ok, nil
}

func (f *FileDones) Mark(ctx context.Context, ns, name string) error {
	return f.append(ns, opDone, name)
}

func (f *FileDones) Unmark(ctx context.Context, ns, name string) error {
	return f.append(ns, opUndo, name)
}

// AreDone answers Done for every name, reading the file once.
func (f *FileDones) AreDone(ctx context.Context, ns string, names []string) ([]bool, error) {
	done, err := f.load(ns)
	if err != nil {
		return nil, err
	}
	ret := make([]bool, len(names))
	for i, n := range names {
		_, ret[i] = done[n]
	}
	return ret, nil
}

func (f *FileDones) AllDone(ctx context.Context, ns string, names []string) (bool, error) {
	are, err := f.AreDone(ctx, ns, names)
	if err != nil {
		return false, err
	}
	for _, d := range are {
		if !d {
			return false, nil
		}
	}
	return true, nil
}

func (f *FileDones) AnyDone(ctx context.Context, ns string, names []string) (bool, error) {
	are, err := f.AreDone(ctx, ns, names)
	if err != nil {
		return false, err
	}
	for _, d := range are {
		if d {
			return true, nil
		}
	}
	return false, nil
}

func (f *FileDones) Reset(ctx context.Context, ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(ns)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xe.Wrap(err)
	}
	return nil
}
