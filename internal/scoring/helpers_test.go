package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
	"github.com/sells-group/leadscore/internal/model"
)

type memArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{data: map[string][]byte{}} }

func (m *memArtifacts) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, eris.Wrapf(artifact.ErrNotFound, "mem: %s", key)
	}
	return d, nil
}

func (m *memArtifacts) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

type staticFrames struct {
	frame *feature.Frame
	err   error
	calls int
}

func (s *staticFrames) Assemble(context.Context) (*feature.Frame, error) {
	s.calls++
	return s.frame, s.err
}

type captureSink struct {
	batches [][]model.ScoreRecord
	err     error
}

func (c *captureSink) AppendScores(_ context.Context, records []model.ScoreRecord) error {
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, records)
	return nil
}

var testClock = feature.Clock(func() time.Time {
	return time.Date(2024, 6, 30, 9, 0, 0, 0, time.UTC)
})

var trainSchema = feature.Schema{
	Numeric:     []string{ColInteractions90d, ColMonetary180d},
	Categorical: []string{"account_type"},
}

// trainingFrame has projection columns for both the heuristic and the
// learned pipelines. interactions_90d separates the classes.
func trainingFrame(n int) *feature.Frame {
	f := &feature.Frame{Columns: []string{
		"account_id", "t0_date", ColInteractions90d, ColOrdersCount180d, ColMonetary180d,
		ColActiveInstalls, "account_type",
	}}
	for i := 0; i < n; i++ {
		interactions := i % 8
		r := feature.Row{
			AccountID: fmt.Sprintf("A%03d", i),
			T0Date:    "2024-06-01",
			Values: map[string]any{
				ColInteractions90d: fmt.Sprint(interactions),
				ColOrdersCount180d: "0",
				ColMonetary180d:    fmt.Sprint(100 * interactions),
				ColActiveInstalls:  "1",
				"account_type":     []string{"clinic", "hospital"}[i%2],
			},
		}
		if interactions > 3 {
			r.CloseLabel = 1
			r.AmountLabel = float64(500 * interactions)
		}
		f.Rows = append(f.Rows, r)
	}
	return f
}
