package scoring

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/learn"
)

var errNoTrainer = eris.New("scoring: strategy has no trainer")

// Capabilities describes what the execution environment can do.
type Capabilities struct {
	// Modeling enables the learned strategy and retraining.
	Modeling bool
}

// Selector picks the strategy for a scoring run.
type Selector struct {
	caps      Capabilities
	artifacts artifact.Store
	opts      learn.Options
	log       *zap.Logger
}

// NewSelector creates a Selector. artifacts may be nil when modeling is off.
func NewSelector(caps Capabilities, artifacts artifact.Store, opts learn.Options) *Selector {
	return &Selector{
		caps:      caps,
		artifacts: artifacts,
		opts:      opts,
		log:       zap.L().With(zap.String("component", "scoring.selector")),
	}
}

// Select returns the learned strategy when modeling is enabled and both
// artifacts load and can read frame. Every other case falls back to the
// heuristic with a warning; Select never fails.
func (s *Selector) Select(ctx context.Context, frame *feature.Frame) Strategy {
	if !s.caps.Modeling || s.artifacts == nil {
		s.log.Warn("modeling disabled, using heuristic")
		return Heuristic{}
	}

	missing, err := learn.Missing(ctx, s.artifacts, s.opts)
	if err != nil {
		s.log.Warn("model artifacts unreachable, using heuristic", zap.Error(err))
		return Heuristic{}
	}
	if len(missing) > 0 {
		s.log.Warn("model artifacts not found, using heuristic", zap.Strings("missing", missing))
		return Heuristic{}
	}

	cls, reg, err := learn.Load(ctx, s.artifacts, s.opts)
	if err != nil {
		if eris.Is(err, artifact.ErrNotFound) {
			s.log.Warn("model artifacts not found, using heuristic", zap.Error(err))
		} else {
			s.log.Warn("model artifacts unusable, using heuristic", zap.Error(err))
		}
		return Heuristic{}
	}

	l := NewLearned(cls, reg, nil)
	if missing := l.compatible(frame); len(missing) > 0 {
		s.log.Warn("models incompatible with frame, using heuristic", zap.Strings("missing_columns", missing))
		return Heuristic{}
	}
	return l
}
