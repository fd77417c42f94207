package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrTooLarge is returned when staged content exceeds the configured limit.
var ErrTooLarge = errors.New("staged content exceeds size limit")

// Workspace is a scratch directory owned by exactly one publish run.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh scratch directory under root.
func NewWorkspace(root, runID string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("scratch root %s: %w", root, err)
	}
	dir, err := os.MkdirTemp(root, "run-"+sanitize(runID)+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the scratch directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the location of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, sanitize(name))
}

// Stage copies r into the workspace as name. When limit is positive, content larger
// than limit bytes is rejected with ErrTooLarge. Partial files never survive a failure.
func (w *Workspace) Stage(name string, r io.Reader, limit int64) (string, error) {
	path := w.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = ErrTooLarge
	}
	if err == nil && n == 0 {
		err = errors.New("empty content")
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return path, nil
}

// Cleanup removes the workspace and everything in it. It is safe to call more than once.
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}

func sanitize(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == "_" {
		return "file"
	}
	return name
}
