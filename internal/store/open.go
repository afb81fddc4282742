package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/resilience"
)

// Options selects and configures a backend.
type Options struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
	Retry  resilience.RetryConfig
}

// Open connects to the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.DSN == "" {
		return nil, eris.New("store: database_url is required")
	}
	switch opts.Driver {
	case "sqlite":
		s, err := NewSQLite(opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, opts.DSN, opts.Retry)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}
