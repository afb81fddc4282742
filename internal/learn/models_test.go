package learn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitLogistic_Symmetric(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	m, err := FitLogistic(x, []int{0, 0, 1, 1}, DefaultLogisticConfig)
	require.NoError(t, err)
	require.Nil(t, m.Constant)

	assert.True(t, m.Converged)
	assert.InDelta(t, 0, m.Intercept, 1e-6)
	assert.Greater(t, m.Weights[0], 0.0)

	p := m.Probability(x, 4)
	assert.InDelta(t, 1, p[0]+p[3], 1e-6)
	assert.Less(t, p[0], 0.5)
	assert.Greater(t, p[3], 0.5)
}

func TestFitLogistic_RegularizationBoundsSeparableData(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{-3, -2, -1, 1, 2, 3})
	m, err := FitLogistic(x, []int{0, 0, 0, 1, 1, 1}, DefaultLogisticConfig)
	require.NoError(t, err)

	assert.False(t, math.IsInf(m.Weights[0], 0))
	assert.Less(t, m.Weights[0], 10.0)
}

func TestFitLogistic_SingleClass(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})

	m, err := FitLogistic(x, []int{0, 0, 0}, DefaultLogisticConfig)
	require.NoError(t, err)
	require.NotNil(t, m.Constant)
	assert.Equal(t, []float64{0, 0}, m.Probability(nil, 2))

	m, err = FitLogistic(x, []int{1, 1, 1}, DefaultLogisticConfig)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, m.Probability(nil, 1))
}

func TestFitLinear_Exact(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	m, err := FitLinear(x, []float64{5, 7, 9, 11})
	require.NoError(t, err)

	assert.InDelta(t, 2, m.Coefficients[0], 1e-9)
	assert.InDelta(t, 3, m.Intercept, 1e-9)
	assert.Equal(t, 1, m.Rank)
	assert.InDeltaSlice(t, []float64{13, 15}, m.Predict(mat.NewDense(2, 1, []float64{5, 6}), 2), 1e-9)
}

func TestFitLinear_MinimumNorm(t *testing.T) {
	// Duplicate columns: any w1+w2=2 fits; the minimum-norm answer splits evenly.
	x := mat.NewDense(3, 2, []float64{1, 1, 2, 2, 3, 3})
	m, err := FitLinear(x, []float64{2, 4, 6})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Rank)
	assert.InDelta(t, 1, m.Coefficients[0], 1e-9)
	assert.InDelta(t, 1, m.Coefficients[1], 1e-9)
	assert.InDelta(t, 0, m.Intercept, 1e-9)
}

func TestFitLinear_ConstantDesign(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 0, 0})
	m, err := FitLinear(x, []float64{1, 2, 6})
	require.NoError(t, err)

	assert.Zero(t, m.Rank)
	assert.Equal(t, []float64{0}, m.Coefficients)
	assert.InDelta(t, 3, m.Intercept, 1e-12)
}

func TestFitLinear_Errors(t *testing.T) {
	_, err := FitLinear(nil, nil)
	assert.Error(t, err)

	_, err = FitLinear(mat.NewDense(2, 1, []float64{1, 2}), []float64{1})
	assert.Error(t, err)
}
