package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tubepilot/backend/internal/metrics"
)

// LocalStorage publishes files into a directory served as static content.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage stores files under dir and reports them under baseURL.
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir is the directory files are written to.
func (l *LocalStorage) Dir() string {
	return l.dir
}

// Save writes the content to dir/key and returns its public URL.
func (l *LocalStorage) Save(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + key))
	if name == "/" || name == "." {
		return "", fmt.Errorf("local storage: empty key")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(l.dir, name)
	if err := writeFile(target, r); err != nil {
		metrics.RecordThumbnailPublish("local", "error")
		return "", fmt.Errorf("local storage: %w", err)
	}
	metrics.RecordThumbnailPublish("local", "success")
	return l.baseURL + "/" + name, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
