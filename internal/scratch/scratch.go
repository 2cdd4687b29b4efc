// Package scratch provides the scoped temporary directory every task
// acquires and guarantees removed on all exit paths.
package scratch

import "os"

// Dir is a task-scoped temporary directory. Close removes it and
// everything underneath, regardless of how the task exited.
type Dir struct {
	Path string
}

// New creates a fresh scratch directory. Callers should defer Close
// immediately after checking the error.
func New(prefix string) (*Dir, error) {
	path, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	return &Dir{Path: path}, nil
}

// Close removes the directory and its contents. Safe to call multiple
// times.
func (d *Dir) Close() error {
	if d == nil || d.Path == "" {
		return nil
	}
	return os.RemoveAll(d.Path)
}
