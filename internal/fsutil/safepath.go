package fsutil

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrPathTraversal = errors.New("path escapes root")

// WithinRoot maps name to a filesystem path under root and rejects any
// lexical traversal outside it. Names are generated server-side, so this
// guards against corrupted or tampered stored paths rather than hostile
// user input; symlinks are not a concern inside the managed data dir.
func WithinRoot(root, name string) (string, error) {
	if root == "" {
		return "", errors.New("root is required")
	}
	root = filepath.Clean(root)

	// Force relative paths.
	p := strings.TrimLeft(name, "/\\")
	joined := filepath.Clean(filepath.Join(root, filepath.FromSlash(p)))

	if !isWithin(root, joined) {
		return "", ErrPathTraversal
	}
	if joined == root {
		return "", ErrPathTraversal
	}
	return joined, nil
}

func isWithin(root, candidate string) bool {
	if root == candidate {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}
