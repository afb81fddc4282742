package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Fit and persist the conversion and deal-value models",
	Long: `Assembles the labeled feature frame, fits the conversion classifier on a
stratified 75/25 split and the deal-value regressor on every row, and
overwrites the stored model artifacts. Mirror tables are refreshed afterwards.
With model.enabled=false nothing is trained.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		st, closeStore, err := openStore(ctx, "retrain")
		if err != nil {
			return err
		}
		defer closeStore()

		svc, err := newScoringService(ctx, st, systemClock())
		if err != nil {
			return err
		}
		report, err := svc.Retrain(ctx)
		if err != nil {
			return err
		}
		if report != nil {
			auc := "n/a"
			if !math.IsNaN(report.AUC) {
				auc = fmt.Sprintf("%.3f", report.AUC)
			}
			_, _ = fmt.Fprintf(os.Stdout, "trained on %d rows (%d train / %d validation), validation AUC: %s\n",
				report.Rows, report.TrainRows, report.ValidationRows, auc)
		}

		return refreshMirrors(ctx, st, cfg.Mirror)
	},
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}
