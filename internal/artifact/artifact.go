// Package artifact persists fitted model pipelines under fixed keys.
// Writes overwrite; there is no versioning.
package artifact

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Errors returned by every Store.
var (
	ErrNotFound   = eris.New("artifact: not found")
	ErrInvalidKey = eris.New("artifact: invalid key")
)

// Store reads and writes opaque artifacts by key.
type Store interface {
	// Put writes data under key, replacing any prior artifact.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the artifact at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether an artifact is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Backend names accepted by Open.
const (
	BackendLocal = "local"
	BackendAzure = "azure"
)

// Config selects and configures an artifact backend.
type Config struct {
	Backend          string
	Dir              string
	ConnectionString string
	Container        string
}

// Open returns the Store named by cfg.Backend. An empty backend means local.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewFS(cfg.Dir)
	case BackendAzure:
		az, err := NewAzure(ctx, cfg.ConnectionString, cfg.Container)
		if err != nil {
			return nil, err
		}
		return az, nil
	default:
		return nil, eris.Errorf("artifact: unknown backend %q", cfg.Backend)
	}
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return eris.Wrapf(ErrInvalidKey, "artifact: key %q", key)
	}
	return nil
}
