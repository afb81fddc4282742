package learn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LogisticConfig tunes the classifier fit.
type LogisticConfig struct {
	// C is the inverse L2 regularization strength. The intercept is not
	// penalized.
	C       float64
	MaxIter int
	// GradTol stops the optimizer once the gradient's infinity norm falls
	// below it.
	GradTol float64
}

// DefaultLogisticConfig matches the usual liblinear-free defaults: C=1,
// 1000 L-BFGS iterations, gradient tolerance 1e-4.
var DefaultLogisticConfig = LogisticConfig{C: 1, MaxIter: 1000, GradTol: 1e-4}

// Logistic is a fitted binary logistic regression.
type Logistic struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	// Constant, when set, replaces the linear model. It is used when the
	// training labels contain a single class.
	Constant  *float64 `json:"constant,omitempty"`
	Converged bool     `json:"converged"`
}

// FitLogistic minimizes 0.5*||w||^2 + C*sum(logloss) with L-BFGS.
func FitLogistic(x *mat.Dense, y []int, cfg LogisticConfig) (*Logistic, error) {
	if cfg.C <= 0 {
		cfg.C = DefaultLogisticConfig.C
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultLogisticConfig.MaxIter
	}
	if cfg.GradTol <= 0 {
		cfg.GradTol = DefaultLogisticConfig.GradTol
	}

	pos := 0
	for _, v := range y {
		pos += v
	}
	if pos == 0 || pos == len(y) || x == nil {
		c := 0.0
		if len(y) > 0 {
			c = float64(pos) / float64(len(y))
		}
		return &Logistic{Constant: &c, Converged: true}, nil
	}

	rows, cols := x.Dims()
	// Signed labels in {-1, +1}.
	sy := make([]float64, rows)
	for i, v := range y {
		sy[i] = 2*float64(v) - 1
	}
	z := make([]float64, rows)

	margins := func(theta []float64) {
		w, b := theta[:cols], theta[cols]
		for i := 0; i < rows; i++ {
			z[i] = sy[i] * (floats.Dot(x.RawRowView(i), w) + b)
		}
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			margins(theta)
			loss := 0.0
			for _, m := range z {
				loss += log1pExp(-m)
			}
			w := theta[:cols]
			return 0.5*floats.Dot(w, w) + cfg.C*loss
		},
		Grad: func(grad, theta []float64) {
			margins(theta)
			w := theta[:cols]
			copy(grad[:cols], w)
			grad[cols] = 0
			for i := 0; i < rows; i++ {
				// d/dm log(1+exp(-m)) = -sigmoid(-m)
				g := -cfg.C * sy[i] * sigmoid(-z[i])
				floats.AddScaled(grad[:cols], g, x.RawRowView(i))
				grad[cols] += g
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   cfg.MaxIter,
		GradientThreshold: cfg.GradTol,
	}
	result, err := optimize.Minimize(problem, make([]float64, cols+1), settings, &optimize.LBFGS{})
	if result == nil || !finite(result.X) {
		if err == nil {
			err = errNonFinite
		}
		return nil, err
	}

	return &Logistic{
		Weights:   append([]float64(nil), result.X[:cols]...),
		Intercept: result.X[cols],
		Converged: err == nil && converged(result.Status),
	}, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit, optimize.RuntimeLimit, optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit, optimize.Failure:
		return false
	}
	return true
}

// Probability returns P(y=1) for each row of x.
func (m *Logistic) Probability(x *mat.Dense, n int) []float64 {
	out := make([]float64, n)
	if m.Constant != nil {
		for i := range out {
			out[i] = *m.Constant
		}
		return out
	}
	for i := range out {
		out[i] = sigmoid(floats.Dot(x.RawRowView(i), m.Weights) + m.Intercept)
	}
	return out
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// log1pExp computes log(1+exp(v)) without overflow.
func log1pExp(v float64) float64 {
	if v > 0 {
		return v + math.Log1p(math.Exp(-v))
	}
	return math.Log1p(math.Exp(v))
}

func finite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
