package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscore/internal/model"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List ingested source files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := openStore(ctx, "ledger")
		if err != nil {
			return err
		}
		defer closeStore()

		files, err := st.ListLedger(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger")
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files ingested yet.")
			return nil
		}

		formatLedger(os.Stdout, files)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}

func formatLedger(out io.Writer, files []model.SourceFile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATH\tTABLE\tROWS\tHASH\tLOADED")
	_, _ = fmt.Fprintln(w, "----\t-----\t----\t----\t------")

	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			f.Path,
			f.Table,
			f.RowCount,
			shortHash(f.ContentHash),
			f.LoadedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
