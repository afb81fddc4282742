package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/feature"
)

func heuristicRow(values map[string]any) feature.Row {
	return feature.Row{AccountID: "A1", Values: values}
}

func TestHeuristic_Scenario(t *testing.T) {
	rows := []feature.Row{heuristicRow(map[string]any{
		ColInteractions90d: "5",
		ColOrdersCount180d: "0",
		ColMonetary180d:    "0",
		ColActiveInstalls:  "1",
	})}

	h := Heuristic{}
	assert.InDelta(t, 0.45, h.PredictProbability(rows)[0], 1e-12)
	assert.InDelta(t, 2000, h.PredictAmount(rows)[0], 1e-12)
}

func TestHeuristic_Probability(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   float64
	}{
		{"baseline", map[string]any{}, 0.05},
		{"interactions at threshold", map[string]any{ColInteractions90d: "3"}, 0.05},
		{"orders only", map[string]any{ColOrdersCount180d: int64(2)}, 0.35},
		{"both", map[string]any{ColInteractions90d: 4.0, ColOrdersCount180d: "1"}, 0.75},
		{"unparseable counts as zero", map[string]any{ColInteractions90d: "lots"}, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic{}.PredictProbability([]feature.Row{heuristicRow(tt.values)})
			assert.InDelta(t, tt.want, got[0], 1e-12)
		})
	}
}

func TestHeuristic_Amount(t *testing.T) {
	rows := []feature.Row{
		heuristicRow(map[string]any{ColMonetary180d: "1000", ColActiveInstalls: "2"}),
		heuristicRow(map[string]any{ColMonetary180d: "1000", ColActiveInstallsAlt: "3"}),
		heuristicRow(map[string]any{ColActiveInstalls: nil, ColActiveInstallsAlt: "3"}),
		heuristicRow(map[string]any{}),
	}
	got := Heuristic{}.PredictAmount(rows)
	assert.InDeltaSlice(t, []float64{4600, 6600, 0, 0}, got, 1e-9)
}

func TestHeuristic_Train(t *testing.T) {
	report, err := Heuristic{}.Train(context.Background(), trainingFrame(4))
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, NameHeuristic, Heuristic{}.Name())
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.3))
	assert.Equal(t, 0.4, clamp01(0.4))
}

func TestLearned_TrainWithoutTrainer(t *testing.T) {
	_, err := NewLearned(nil, nil, nil).Train(context.Background(), trainingFrame(4))
	assert.ErrorIs(t, err, errNoTrainer)
}
