package learn

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// AUC returns the area under the ROC curve of scores against binary labels.
// It is NaN when either class is absent.
func AUC(scores []float64, labels []int) float64 {
	if len(scores) == 0 || len(scores) != len(labels) {
		return math.NaN()
	}

	type pair struct {
		score float64
		pos   bool
	}
	pairs := make([]pair, len(scores))
	pos := 0
	for i := range scores {
		pairs[i] = pair{scores[i], labels[i] == 1}
		if pairs[i].pos {
			pos++
		}
	}
	if pos == 0 || pos == len(pairs) {
		return math.NaN()
	}

	// stat.ROC requires scores in increasing order.
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	y := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		y[i], classes[i] = p.score, p.pos
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
