package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscore/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-score and export the reporting workbook",
	Long: `Runs a scoring batch, refreshes the mirror tables and writes one .xlsx
workbook with a sheet per reporting table. Missing tables produce empty
sheets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if path, _ := cmd.Flags().GetString("path"); path != "" {
			cfg.Export.Path = path
		}

		st, closeStore, err := openStore(ctx, "export")
		if err != nil {
			return err
		}
		defer closeStore()

		if _, err := scoreAndMirror(ctx, st); err != nil {
			return err
		}
		return export.WriteWorkbook(ctx, st, cfg.Export.Path, cfg.Export.Tables)
	},
}

func init() {
	exportCmd.Flags().String("path", "", "workbook path (overrides export.path)")
	rootCmd.AddCommand(exportCmd)
}
