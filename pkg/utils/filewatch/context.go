// Package filewatch cancels contexts on file changes.
package filewatch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// ErrModified is the cause of contexts canceled by a file change.
var ErrModified = fmt.Errorf("file is modified")

// UntilModifyContext returns a context canceled when one of the files is
// written, created, removed, renamed or chmod-ed.
//
// Directories containing the files are watched, not the files themselves,
// so replacing a file by renaming another onto it (as editors do) is noticed.
// Changes of other files in the directories are ignored.
//
// context.Cause of the returned context wraps ErrModified with what happened.
// On error, both of the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, paths ...string) (context.Context, func(), error) {
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, xe.Wrap(err)
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, xe.Wrap(err)
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, nil, xe.WrapWithNote("watching "+d, err)
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if _, ok := targets[filepath.Clean(event.Name)]; !ok {
					continue
				}
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op.String()))
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(xe.WrapWithNote("watching files", err))
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
