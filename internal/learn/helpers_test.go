package learn

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/artifact"
	"github.com/sells-group/leadscore/internal/feature"
)

// memArtifacts is an in-memory artifact.Store.
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

func row(id string, values map[string]any) feature.Row {
	return feature.Row{AccountID: id, Values: values}
}

// syntheticFrame has a numeric signal x that drives both labels and a
// categorical column kind that alternates.
func syntheticFrame(n int) *feature.Frame {
	f := &feature.Frame{Columns: []string{"account_id", "t0_date", "x", "kind"}}
	for i := 0; i < n; i++ {
		x := float64(i%10) - 4.5
		r := row(fmt.Sprintf("A%02d", i), map[string]any{
			"x":    fmt.Sprintf("%g", x),
			"kind": []string{"clinic", "hospital"}[i%2],
		})
		if x > 0 {
			r.CloseLabel = 1
			r.AmountLabel = 1000 + 100*x
		}
		f.Rows = append(f.Rows, r)
	}
	return f
}

var syntheticSchema = feature.Schema{Numeric: []string{"x"}, Categorical: []string{"kind"}}
