package scoring

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/learn"
	"github.com/sells-group/leadscore/internal/model"
)

// FrameSource assembles the current feature frame.
type FrameSource interface {
	Assemble(ctx context.Context) (*feature.Frame, error)
}

// Sink receives a scored batch.
type Sink interface {
	AppendScores(ctx context.Context, records []model.ScoreRecord) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Frames       FrameSource
	Sink         Sink
	Artifacts    artifact.Store
	Schema       feature.Schema
	Capabilities Capabilities
	Learn        learn.Options
	Clock        feature.Clock
}

// Service runs the retrain and score operations.
type Service struct {
	cfg      ServiceConfig
	selector *Selector
	log      *zap.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = feature.SystemClock
	}
	return &Service{
		cfg:      cfg,
		selector: NewSelector(cfg.Capabilities, cfg.Artifacts, cfg.Learn),
		log:      zap.L().With(zap.String("component", "scoring.service")),
	}
}

// Result is the outcome of a scoring run.
type Result struct {
	Strategy string
	RunDate  string
	Records  []model.ScoreRecord
}

// Score assembles the frame, selects a strategy, scores every row and
// appends the batch to the sink.
func (s *Service) Score(ctx context.Context) (*Result, error) {
	frame, err := s.cfg.Frames.Assemble(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: assemble frame")
	}

	strategy := s.selector.Select(ctx, frame)
	res := &Result{Strategy: strategy.Name(), RunDate: s.cfg.Clock.RunDate()}
	res.Records = Score(strategy, frame, res.RunDate)

	if err := s.cfg.Sink.AppendScores(ctx, res.Records); err != nil {
		return nil, eris.Wrap(err, "scoring: append scores")
	}

	priority := 0
	for _, r := range res.Records {
		priority += r.IsPriority
	}
	s.log.Info("scoring complete",
		zap.String("strategy", res.Strategy),
		zap.String("run_date", res.RunDate),
		zap.Int("rows", len(res.Records)),
		zap.Int("priority", priority),
	)
	return res, nil
}

// Retrain fits and persists both models. With modeling disabled it returns
// a nil report and does nothing.
func (s *Service) Retrain(ctx context.Context) (*learn.Report, error) {
	if !s.cfg.Capabilities.Modeling || s.cfg.Artifacts == nil {
		s.log.Warn("modeling disabled, skipping retrain")
		return nil, nil
	}

	frame, err := s.cfg.Frames.Assemble(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: assemble frame")
	}
	trainer := learn.NewTrainer(s.cfg.Artifacts, s.cfg.Schema, s.cfg.Learn)
	report, err := NewLearned(nil, nil, trainer).Train(ctx, frame)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: retrain")
	}
	return report, nil
}
