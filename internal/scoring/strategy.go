// Package scoring turns an assembled feature frame into ranked score records,
// using persisted models when they are usable and a deterministic heuristic
// otherwise.
package scoring

import (
	"context"

	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/learn"
)

// Strategy names.
const (
	NameLearned   = "learned"
	NameHeuristic = "heuristic"
)

// Strategy predicts win probability and expected amount for frame rows.
type Strategy interface {
	Name() string
	// Train fits the strategy on frame. Strategies without parameters return
	// a nil report.
	Train(ctx context.Context, frame *feature.Frame) (*learn.Report, error)
	PredictProbability(rows []feature.Row) []float64
	PredictAmount(rows []feature.Row) []float64
}

// Heuristic columns.
const (
	ColInteractions90d   = "interactions_90d"
	ColOrdersCount180d   = "orders_cnt_180d"
	ColMonetary180d      = "monetary_180d"
	ColActiveInstalls    = "active_install_equipment_count"
	ColActiveInstallsAlt = "install_equipment_count_active"
)

// Heuristic is the rule-based fallback. It reads only projection columns.
type Heuristic struct{}

// Name implements Strategy.
func (Heuristic) Name() string { return NameHeuristic }

// Train implements Strategy. The heuristic has nothing to fit.
func (Heuristic) Train(context.Context, *feature.Frame) (*learn.Report, error) { return nil, nil }

// PredictProbability returns clamp01(0.05 + 0.4*[interactions_90d > 3] +
// 0.3*[orders_cnt_180d > 0]). Missing values count as zero.
func (Heuristic) PredictProbability(rows []feature.Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		p := 0.05
		if value(r, ColInteractions90d) > 3 {
			p += 0.4
		}
		if value(r, ColOrdersCount180d) > 0 {
			p += 0.3
		}
		out[i] = clamp01(p)
	}
	return out
}

// PredictAmount returns 0.6*monetary_180d + 2000*active installs.
func (Heuristic) PredictAmount(rows []feature.Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		installs := value(r, ColActiveInstalls)
		if _, ok := r.Values[ColActiveInstalls]; !ok {
			installs = value(r, ColActiveInstallsAlt)
		}
		out[i] = 0.6*value(r, ColMonetary180d) + 2000*installs
	}
	return out
}

func value(r feature.Row, col string) float64 {
	v, _ := r.Float(col)
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Learned scores with the persisted pipelines.
type Learned struct {
	classifier *learn.Classifier
	regressor  *learn.Regressor
	trainer    *learn.Trainer
}

// NewLearned wraps decoded pipelines. trainer may be nil when the strategy
// is only used for prediction.
func NewLearned(cls *learn.Classifier, reg *learn.Regressor, trainer *learn.Trainer) *Learned {
	return &Learned{classifier: cls, regressor: reg, trainer: trainer}
}

// Name implements Strategy.
func (*Learned) Name() string { return NameLearned }

// Train refits and persists both pipelines, then predicts with the new ones.
func (l *Learned) Train(ctx context.Context, frame *feature.Frame) (*learn.Report, error) {
	if l.trainer == nil {
		return nil, errNoTrainer
	}
	cls, reg, report, err := l.trainer.TrainPipelines(ctx, frame)
	if err != nil {
		return nil, err
	}
	l.classifier, l.regressor = cls, reg
	return report, nil
}

// PredictProbability implements Strategy.
func (l *Learned) PredictProbability(rows []feature.Row) []float64 {
	return l.classifier.PredictProbability(rows)
}

// PredictAmount implements Strategy.
func (l *Learned) PredictAmount(rows []feature.Row) []float64 {
	return l.regressor.PredictAmount(rows)
}

// compatible reports whether both pipelines can read frame.
func (l *Learned) compatible(frame *feature.Frame) []string {
	missing := l.classifier.Preprocessor.Schema().Missing(frame.Columns)
	return append(missing, l.regressor.Preprocessor.Schema().Missing(frame.Columns)...)
}
