package scoring

import (
	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/model"
)

// Value model constants.
const (
	Margin            = 8000.0
	ContactCost       = 120.0
	PriorityThreshold = 0.5
)

// ExpectedValue is the margin-weighted win probability net of the cost of
// contacting the account.
func ExpectedValue(p float64) float64 {
	return p*Margin - ContactCost
}

// IsPriority is 1 when p reaches the threshold, inclusive.
func IsPriority(p float64) int {
	if p >= PriorityThreshold {
		return 1
	}
	return 0
}

// Score produces one record per frame row, in frame order.
func Score(s Strategy, frame *feature.Frame, runDate string) []model.ScoreRecord {
	if frame.Len() == 0 {
		return nil
	}
	probs := s.PredictProbability(frame.Rows)
	amounts := s.PredictAmount(frame.Rows)

	out := make([]model.ScoreRecord, len(frame.Rows))
	for i, r := range frame.Rows {
		p := probs[i]
		out[i] = model.ScoreRecord{
			RunDate:            runDate,
			AccountID:          r.AccountID,
			T0Date:             r.T0Date,
			PWin90d:            p,
			ExpectedAmount180d: amounts[i],
			ExpectedValue:      ExpectedValue(p),
			IsPriority:         IsPriority(p),
		}
	}
	return out
}
