package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/model"
)

// WriteScoresCSV writes a scoring batch with a header row, replacing path.
func WriteScoresCSV(path string, records []model.ScoreRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(model.ScoreRecord{}); err != nil {
		return eris.Wrap(err, "export: encode score header")
	}
	if len(records) > 0 {
		if err := enc.Encode(records); err != nil {
			return eris.Wrap(err, "export: encode scores")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
