package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FSStore keeps artifacts as files in a local directory.
type FSStore struct {
	dir string
	log *zap.Logger
}

// NewFS returns a store rooted at dir, creating it if needed.
func NewFS(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, eris.New("artifact: local backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: create dir %s", dir)
	}
	return &FSStore{
		dir: dir,
		log: zap.L().With(zap.String("component", "artifact.fs"), zap.String("dir", dir)),
	}, nil
}

// Put writes to a temp file in the same directory and renames it over key,
// so readers never observe a partial artifact.
func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create dir for %s", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "artifact: create temp for %s", key)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "artifact: write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "artifact: close %s", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return eris.Wrapf(err, "artifact: replace %s", key)
	}

	s.log.Info("artifact written", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Get reads the artifact at key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "artifact: %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", key)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "artifact: stat %s", key)
	}
	return true, nil
}
