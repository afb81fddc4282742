package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/store"
)

// FileStatus is the outcome of one landing file.
type FileStatus string

const (
	StatusLoaded  FileStatus = "loaded"
	StatusSkipped FileStatus = "skipped"
	StatusFailed  FileStatus = "failed"
	StatusPending FileStatus = "pending"
)

// FileResult reports what happened to one landing file.
type FileResult struct {
	Path   string // slash-separated, relative to the landing root
	Table  string
	Hash   string
	Status FileStatus
	Rows   int64
	Err    error
}

// Report summarizes an ingestion run.
type Report struct {
	Files   []FileResult
	Loaded  int
	Skipped int
	Failed  int
	Rows    int64
}

func (r *Report) add(res FileResult) {
	r.Files = append(r.Files, res)
	switch res.Status {
	case StatusLoaded:
		r.Loaded++
		r.Rows += res.Rows
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Candidate is a classified landing file awaiting ingestion.
type Candidate struct {
	Path     string // ledger path
	FullPath string
	Table    Table
}

// Engine walks a landing area and loads each new file in its own
// transaction.
type Engine struct {
	store  store.Store
	loader *Loader
	csv    CSVOptions
	now    func() time.Time
}

// NewEngine creates an ingestion engine. now stamps ledger entries.
func NewEngine(st store.Store, opts CSVOptions, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: st, loader: NewLoader(), csv: opts, now: now}
}

// Run ingests every classified file under landing. A file that fails is
// rolled back and reported; the walk continues with the next file.
// Cancelling ctx stops the walk between files.
func (e *Engine) Run(ctx context.Context, landing string) (*Report, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"), zap.String("landing", landing))

	candidates, err := Discover(landing)
	if err != nil {
		return nil, err
	}
	log.Info("discovered landing files", zap.Int("count", len(candidates)))

	report := &Report{}
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		fileLog := log.With(zap.String("file", c.Path), zap.String("table", c.Table.Name))
		res := e.ingestFile(ctx, c)
		report.add(res)

		switch res.Status {
		case StatusLoaded:
			fileLog.Info("file loaded", zap.Int64("rows", res.Rows), zap.String("policy", c.Table.Policy().String()))
		case StatusSkipped:
			fileLog.Info("file already loaded, skipping")
		case StatusFailed:
			fileLog.Error("file failed", zap.Error(res.Err))
		}
	}

	log.Info("ingest run complete",
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("rows", report.Rows),
	)
	return report, nil
}

func (e *Engine) ingestFile(ctx context.Context, c Candidate) FileResult {
	res := FileResult{Path: c.Path, Table: c.Table.Name}
	fail := func(err error) FileResult {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	data, err := os.ReadFile(c.FullPath)
	if err != nil {
		return fail(eris.Wrapf(err, "ingest: read %s", c.Path))
	}
	res.Hash = HashBytes(data)

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	loaded, err := tx.HasBeenLoaded(ctx, c.Path, res.Hash)
	if err != nil {
		return fail(err)
	}
	if loaded {
		res.Status = StatusSkipped
		return res
	}

	batch, err := ParseCSV(data, e.csv)
	if err != nil {
		return fail(eris.Wrapf(err, "ingest: parse %s", c.Path))
	}

	n, err := e.loader.Load(ctx, tx, c.Table, batch)
	if err != nil {
		return fail(err)
	}

	if err := tx.RecordLoad(ctx, model.SourceFile{
		Path:        c.Path,
		Table:       c.Table.Name,
		RowCount:    n,
		ContentHash: res.Hash,
		LoadedAt:    e.now().UTC(),
	}); err != nil {
		return fail(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(err)
	}

	res.Status = StatusLoaded
	res.Rows = n
	return res
}

// Plan reports, without loading anything, which classified files under
// landing would be loaded and which are already in the ledger.
func (e *Engine) Plan(ctx context.Context, landing string) ([]FileResult, error) {
	candidates, err := Discover(landing)
	if err != nil {
		return nil, err
	}

	out := make([]FileResult, 0, len(candidates))
	for _, c := range candidates {
		res := FileResult{Path: c.Path, Table: c.Table.Name, Status: StatusPending}
		if res.Hash, err = HashFile(c.FullPath); err != nil {
			res.Status = StatusFailed
			res.Err = err
			out = append(out, res)
			continue
		}
		loaded, err := e.alreadyLoaded(ctx, c.Path, res.Hash)
		if err != nil {
			return nil, err
		}
		if loaded {
			res.Status = StatusSkipped
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) alreadyLoaded(ctx context.Context, ledgerPath, hash string) (bool, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	return tx.HasBeenLoaded(ctx, ledgerPath, hash)
}

// Discover lists the classified *.csv files in the dated subdirectories of
// landing: directories in lexical order, files in lexical order within
// each. Files directly under landing and unclassified names are ignored.
func Discover(landing string) ([]Candidate, error) {
	dirs, err := os.ReadDir(landing)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read landing dir %s", landing)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })

	var out []Candidate
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(landing, dir.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", dir.Name())
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, ".csv") {
				continue
			}
			table, ok := Classify(name)
			if !ok {
				zap.L().Debug("unclassified landing file", zap.String("file", name))
				continue
			}
			out = append(out, Candidate{
				Path:     path.Join(dir.Name(), name),
				FullPath: filepath.Join(landing, dir.Name(), name),
				Table:    table,
			})
		}
	}
	return out, nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile streams a file through SHA-256.
func HashFile(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: open %s", name)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "ingest: hash %s", name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
