package utils

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("file not found")

// SearchUpward looks for fileName in dir and its ancestors, nearest first.
//
// returns the path of the first regular file found, or ErrNotFound.
func SearchUpward(dir string, fileName string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, fileName)
		if s, err := os.Stat(path); err == nil && s.Mode().IsRegular() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}
