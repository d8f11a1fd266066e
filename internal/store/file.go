package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// File lays keys out as JSON files under a directory, the layout the guide
// site has always served from disk:
//
//	manifest     -> <dir>/manifest.json
//	guide:<id>   -> <dir>/characters/<id>.json
//	anything else -> <dir>/kv/<escaped key>
//
// Writes go through a temp file and rename so readers never see half a file.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("store: file backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	if key == "manifest" {
		return filepath.Join(f.dir, "manifest.json")
	}
	if id, ok := strings.CutPrefix(key, "guide:"); ok && id != "" && !strings.ContainsAny(id, `/\.`) {
		return filepath.Join(f.dir, "characters", id+".json")
	}
	return filepath.Join(f.dir, "kv", url.PathEscape(key))
}

func (f *File) Get(ctx context.Context, key string) (string, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("file get %s: %w", key, err)
	}
	return string(b), nil
}

func (f *File) Set(ctx context.Context, key, value string) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("file set %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("file set %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file set %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file set %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("file set %s: %w", key, err)
	}
	return nil
}

func (f *File) Ping(ctx context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *File) Close() error { return nil }
