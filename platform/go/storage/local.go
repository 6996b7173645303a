package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalWriter stores objects as files under BasePath.
type LocalWriter struct {
	BasePath string
	Prefix   string
}

func NewLocalWriter(basePath, prefix string) *LocalWriter {
	if basePath == "" {
		panic("local writer requires basePath")
	}
	return &LocalWriter{BasePath: basePath, Prefix: prefix}
}

func (w *LocalWriter) Put(ctx context.Context, key string, body []byte) error {
	loc, err := ResolveObjectLocation("", w.Prefix, key)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(w.BasePath, filepath.FromSlash(loc.FullPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return fmt.Errorf("finalize object: %w", err)
	}
	return nil
}

var _ Writer = (*LocalWriter)(nil)
