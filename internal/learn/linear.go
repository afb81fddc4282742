package learn

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errNonFinite = eris.New("learn: optimizer produced non-finite coefficients")

// Linear is a fitted ordinary least squares model with intercept.
type Linear struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Rank         int       `json:"rank"`
}

// FitLinear solves min ||y - Xw - b||^2. X and y are centered so the
// intercept falls out of the means; the minimum-norm w is taken from the
// SVD pseudo-inverse, which handles rank-deficient designs.
func FitLinear(x *mat.Dense, y []float64) (*Linear, error) {
	if len(y) == 0 {
		return nil, eris.New("learn: no rows for regression")
	}
	yMean := stat.Mean(y, nil)
	if x == nil {
		return &Linear{Intercept: yMean}, nil
	}

	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, eris.Errorf("learn: %d rows but %d targets", rows, len(y))
	}

	xMeans := make([]float64, cols)
	col := make([]float64, rows)
	for j := range xMeans {
		mat.Col(col, j, x)
		xMeans[j] = stat.Mean(col, nil)
	}

	xc := mat.NewDense(rows, cols, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - xMeans[j] }, x)
	yc := mat.NewVecDense(rows, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return nil, eris.New("learn: SVD factorization failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(rows, cols)))

	w := make([]float64, cols)
	if rank > 0 {
		var sol mat.VecDense
		svd.SolveVecTo(&sol, yc, rank)
		for j := range w {
			w[j] = sol.AtVec(j)
		}
	}
	if !finite(w) {
		return nil, errNonFinite
	}

	return &Linear{
		Coefficients: w,
		Intercept:    yMean - floats.Dot(xMeans, w),
		Rank:         rank,
	}, nil
}

// Predict returns Xw + b for the first n rows of x.
func (m *Linear) Predict(x *mat.Dense, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = m.Intercept
		if x != nil {
			out[i] += floats.Dot(x.RawRowView(i), m.Coefficients)
		}
	}
	return out
}
