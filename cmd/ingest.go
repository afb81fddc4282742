package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscore/internal/ingest"
	"github.com/sells-group/leadscore/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load new landing files into the store",
	Long: `Walks the dated subdirectories of the landing area, classifies each CSV by
filename prefix and loads every file whose (path, content hash) is not yet in
the ingest ledger. Each file commits in its own transaction; a malformed file
is reported and skipped without affecting the others.

Examples:
  # Ingest the configured landing area
  ingest

  # Ingest a different directory and rebuild the feature projection afterwards
  ingest --landing ./data/landing --transform-sql sql/transform.sql

  # Show what would be loaded
  ingest --dry-run`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("landing", "", "landing directory (overrides ingest.landing_dir)")
	f.String("transform-sql", "", "SQL script to run after ingestion (overrides ingest.transform_sql)")
	f.Bool("dry-run", false, "report pending files without loading them")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if landing, _ := cmd.Flags().GetString("landing"); landing != "" {
		cfg.Ingest.LandingDir = landing
	}
	if script, _ := cmd.Flags().GetString("transform-sql"); script != "" {
		cfg.Ingest.TransformSQL = script
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	st, closeStore, err := openStore(ctx, "ingest")
	if err != nil {
		return err
	}
	defer closeStore()

	engine := ingest.NewEngine(st, csvOptions(), nil)

	if dryRun {
		plan, err := engine.Plan(ctx, cfg.Ingest.LandingDir)
		if err != nil {
			return eris.Wrap(err, "ingest plan")
		}
		formatIngestFiles(os.Stdout, plan)
		return nil
	}

	report, err := engine.Run(ctx, cfg.Ingest.LandingDir)
	if report != nil {
		formatIngestReport(os.Stdout, report)
	}
	if err != nil {
		return eris.Wrap(err, "ingest")
	}

	if cfg.Ingest.TransformSQL != "" {
		if err := store.RunScriptFile(ctx, st, cfg.Ingest.TransformSQL); err != nil {
			return err
		}
	}
	if report.Failed > 0 {
		return eris.Errorf("ingest: %d file(s) failed", report.Failed)
	}
	return nil
}

func csvOptions() ingest.CSVOptions {
	opts := ingest.CSVOptions{Encoding: cfg.Ingest.Encoding}
	if r, _ := utf8.DecodeRuneInString(cfg.Ingest.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	return opts
}

func formatIngestFiles(out io.Writer, files []ingest.FileResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tTABLE\tSTATUS\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t----\t-----")

	for _, f := range files {
		rows := ""
		if f.Status == ingest.StatusLoaded {
			rows = fmt.Sprintf("%d", f.Rows)
		}
		errMsg := ""
		if f.Err != nil {
			errMsg = f.Err.Error()
			if r := []rune(errMsg); len(r) > 60 {
				errMsg = string(r[:57]) + "..."
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Path, f.Table, f.Status, rows, errMsg)
	}
	_ = w.Flush()
}

func formatIngestReport(out io.Writer, r *ingest.Report) {
	formatIngestFiles(out, r.Files)
	_, _ = fmt.Fprintf(out, "\nloaded: %d  skipped: %d  failed: %d  rows: %d\n", r.Loaded, r.Skipped, r.Failed, r.Rows)
}
