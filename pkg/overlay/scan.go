package overlay

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// Scan takes a snapshot of a directory of items.
//
// Each entry of dir is an item; its id is the entry name.
// The fingerprint of a file is MD5 of its content. For a directory, files in it
// (recursively, in lexical order) are hashed together with their relative paths.
// Hidden entries (starting with ".") are skipped.
//
// A missing dir is an empty snapshot.
func Scan(dir string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, xe.Wrap(err)
	}

	snap := Snapshot{}
	for _, e := range entries {
		if e.Name()[0] == '.' {
			continue
		}
		path := filepath.Join(dir, e.Name())
		h := md5.New()
		if e.IsDir() {
			err = hashDir(h, path)
		} else {
			err = hashFile(h, path)
		}
		if err != nil {
			return nil, err
		}
		snap[e.Name()] = hex.EncodeToString(h.Sum(nil))
	}
	return snap, nil
}

func hashFile(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return xe.Wrap(err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func hashDir(h hash.Hash, root string) error {
	// WalkDir visits in lexical order.
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return xe.Wrap(err)
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return xe.Wrap(err)
		}
		io.WriteString(h, filepath.ToSlash(rel))
		h.Write([]byte{0})
		return hashFile(h, path)
	})
}
