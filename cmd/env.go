package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/learn"
	"github.com/sells-group/leadscore/internal/resilience"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
)

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// openStore validates the config for mode, opens and migrates the store and
// takes the run lock. The returned close func releases both.
func openStore(ctx context.Context, mode string) (store.Store, func(), error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DatabaseURL,
		Retry: resilience.FromRetryConfig(
			cfg.Store.Connect.MaxAttempts,
			cfg.Store.Connect.InitialBackoffMs,
			cfg.Store.Connect.MaxBackoffMs,
		),
	})
	if err != nil {
		return nil, nil, err
	}

	unlock, err := st.Lock(ctx)
	if err != nil {
		st.Close() //nolint:errcheck
		if eris.Is(err, store.ErrLocked) {
			return nil, nil, eris.Wrap(err, "another leadscore run holds the store")
		}
		return nil, nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		unlock()
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	return st, func() {
		unlock()
		st.Close() //nolint:errcheck
	}, nil
}

func openArtifacts(ctx context.Context) (artifact.Store, error) {
	if !cfg.Model.Enabled {
		return nil, nil
	}
	return artifact.Open(ctx, artifact.Config{
		Backend:          cfg.Model.Backend,
		Dir:              cfg.Model.Dir,
		ConnectionString: cfg.Model.Azure.ConnectionString,
		Container:        cfg.Model.Azure.Container,
	})
}

func learnOptions() learn.Options {
	return learn.Options{
		Seed:          cfg.Model.Seed,
		TestSize:      cfg.Model.TestSize,
		MaxIter:       cfg.Model.MaxIter,
		ClassifierKey: cfg.Model.ClassifierKey,
		RegressorKey:  cfg.Model.RegressorKey,
	}
}

// newScoringService wires the assembler, artifact store and sink around st.
func newScoringService(ctx context.Context, st store.Store, clock feature.Clock) (*scoring.Service, error) {
	schema, err := cfg.Feature.Schema()
	if err != nil {
		return nil, err
	}
	arts, err := openArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	assembler := feature.NewAssembler(st, feature.Options{
		View:         cfg.Feature.View,
		OrdersTable:  cfg.Feature.OrdersTable,
		TransformSQL: transformScript(cfg.Feature.TransformSQL),
		Clock:        clock,
	})
	return scoring.NewService(scoring.ServiceConfig{
		Frames:       assembler,
		Sink:         st,
		Artifacts:    arts,
		Schema:       schema,
		Capabilities: scoring.Capabilities{Modeling: cfg.Model.Enabled && arts != nil},
		Learn:        learnOptions(),
		Clock:        clock,
	}), nil
}

// transformScript drops a configured script path that does not exist so a
// missing projection reports clearly instead of failing on the read.
func transformScript(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		zap.L().Debug("transform script not found", zap.String("path", path))
		return ""
	}
	return path
}

// refreshMirrors copies each source table into its mirror. Missing sources
// are skipped with a warning.
func refreshMirrors(ctx context.Context, st store.Store, mirrors map[string]string) error {
	sources := make([]string, 0, len(mirrors))
	for src := range mirrors {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	log := zap.L().With(zap.String("component", "mirror"))
	for _, src := range sources {
		ok, err := st.TableExists(ctx, src)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("mirror source missing, skipping", zap.String("source", src))
			continue
		}
		if err := st.Mirror(ctx, src, mirrors[src]); err != nil {
			return err
		}
		log.Info("mirror refreshed", zap.String("source", src), zap.String("target", mirrors[src]))
	}
	return nil
}

func systemClock() feature.Clock { return time.Now }
