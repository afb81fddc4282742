package learn

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
)

// Default artifact keys.
const (
	DefaultClassifierKey = "lead_model.json"
	DefaultRegressorKey  = "amount_model.json"
)

// Options configures training and artifact placement.
type Options struct {
	Seed          uint64
	TestSize      float64
	MaxIter       int
	ClassifierKey string
	RegressorKey  string
}

// DefaultOptions returns seed 42, a 25% validation split and 1000 iterations.
func DefaultOptions() Options {
	return Options{
		Seed:          42,
		TestSize:      0.25,
		MaxIter:       1000,
		ClassifierKey: DefaultClassifierKey,
		RegressorKey:  DefaultRegressorKey,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TestSize <= 0 || o.TestSize >= 1 {
		o.TestSize = d.TestSize
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.ClassifierKey == "" {
		o.ClassifierKey = d.ClassifierKey
	}
	if o.RegressorKey == "" {
		o.RegressorKey = d.RegressorKey
	}
	return o
}

// Report summarizes one training run.
type Report struct {
	Rows           int
	TrainRows      int
	ValidationRows int
	Positives      int
	Stratified     bool
	Converged      bool
	// AUC is the validation ROC AUC; NaN when the validation split is
	// empty or single-class.
	AUC float64
}

// Fit trains both pipelines without persisting them. The classifier is fit
// on the training split; the regressor on every row.
func Fit(frame *feature.Frame, schema feature.Schema, opts Options) (*Classifier, *Regressor, *Report, error) {
	opts = opts.withDefaults()
	if err := schema.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if frame.Len() == 0 {
		return nil, nil, nil, eris.New("learn: no rows to train on")
	}
	if missing := schema.Missing(frame.Columns); len(missing) > 0 {
		return nil, nil, nil, eris.Errorf("learn: frame lacks schema columns %v", missing)
	}

	labels := frame.CloseLabels()
	split := StratifiedSplit(labels, opts.TestSize, opts.Seed)
	train := frame.Subset(split.Train)
	trainLabels := pick(labels, split.Train)

	clsPre := FitPreprocessor(schema, train)
	logit, err := FitLogistic(clsPre.Transform(train), trainLabels, LogisticConfig{C: 1, MaxIter: opts.MaxIter})
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "learn: fit classifier")
	}
	cls := &Classifier{Kind: KindClassifier, Version: formatVersion, Preprocessor: clsPre, Model: logit}

	auc := math.NaN()
	if len(split.Validation) > 0 {
		val := frame.Subset(split.Validation)
		auc = AUC(cls.PredictProbability(val), pick(labels, split.Validation))
	}

	regPre := FitPreprocessor(schema, frame.Rows)
	lin, err := FitLinear(regPre.Transform(frame.Rows), frame.AmountLabels())
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "learn: fit regressor")
	}
	reg := &Regressor{Kind: KindRegressor, Version: formatVersion, Preprocessor: regPre, Model: lin}

	positives := 0
	for _, y := range labels {
		positives += y
	}
	return cls, reg, &Report{
		Rows:           frame.Len(),
		TrainRows:      len(split.Train),
		ValidationRows: len(split.Validation),
		Positives:      positives,
		Stratified:     split.Stratified,
		Converged:      logit.Converged,
		AUC:            auc,
	}, nil
}

// Trainer fits both pipelines and writes them to an artifact store.
type Trainer struct {
	artifacts artifact.Store
	schema    feature.Schema
	opts      Options
	log       *zap.Logger
}

// NewTrainer creates a Trainer.
func NewTrainer(artifacts artifact.Store, schema feature.Schema, opts Options) *Trainer {
	return &Trainer{
		artifacts: artifacts,
		schema:    schema,
		opts:      opts.withDefaults(),
		log:       zap.L().With(zap.String("component", "learn.trainer")),
	}
}

// Train fits on frame and overwrites the stored artifacts.
func (t *Trainer) Train(ctx context.Context, frame *feature.Frame) (*Report, error) {
	_, _, report, err := t.TrainPipelines(ctx, frame)
	return report, err
}

// TrainPipelines is Train that also returns the fitted pipelines.
func (t *Trainer) TrainPipelines(ctx context.Context, frame *feature.Frame) (*Classifier, *Regressor, *Report, error) {
	cls, reg, report, err := Fit(frame, t.schema, t.opts)
	if err != nil {
		return nil, nil, nil, err
	}
	if !report.Converged {
		t.log.Warn("classifier did not converge", zap.Int("max_iter", t.opts.MaxIter))
	}

	clsData, err := cls.Encode()
	if err != nil {
		return nil, nil, nil, err
	}
	regData, err := reg.Encode()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := t.artifacts.Put(ctx, t.opts.ClassifierKey, clsData); err != nil {
		return nil, nil, nil, eris.Wrap(err, "learn: store classifier")
	}
	if err := t.artifacts.Put(ctx, t.opts.RegressorKey, regData); err != nil {
		return nil, nil, nil, eris.Wrap(err, "learn: store regressor")
	}

	t.log.Info("models trained",
		zap.Int("rows", report.Rows),
		zap.Int("train_rows", report.TrainRows),
		zap.Int("validation_rows", report.ValidationRows),
		zap.Int("positives", report.Positives),
		zap.Float64("validation_auc", report.AUC),
	)
	return cls, reg, report, nil
}

// Load reads and decodes both pipelines. A missing artifact surfaces as
// artifact.ErrNotFound.
func Load(ctx context.Context, artifacts artifact.Store, opts Options) (*Classifier, *Regressor, error) {
	opts = opts.withDefaults()
	clsData, err := artifacts.Get(ctx, opts.ClassifierKey)
	if err != nil {
		return nil, nil, eris.Wrap(err, "learn: load classifier")
	}
	regData, err := artifacts.Get(ctx, opts.RegressorKey)
	if err != nil {
		return nil, nil, eris.Wrap(err, "learn: load regressor")
	}
	cls, err := DecodeClassifier(clsData)
	if err != nil {
		return nil, nil, err
	}
	reg, err := DecodeRegressor(regData)
	if err != nil {
		return nil, nil, err
	}
	return cls, reg, nil
}

// Missing returns the artifact keys Load would need but cannot find.
func Missing(ctx context.Context, artifacts artifact.Store, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	var missing []string
	for _, key := range []string{opts.ClassifierKey, opts.RegressorKey} {
		ok, err := artifacts.Exists(ctx, key)
		if err != nil {
			return nil, eris.Wrapf(err, "learn: check %s", key)
		}
		if !ok {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

func pick(xs []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
