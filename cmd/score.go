package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadscore/internal/export"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score every account and append the batch",
	Long: `Assembles the feature frame and scores each account with the stored models,
or with the rule-based heuristic when models are missing, unusable or
disabled. The batch is appended to bi_scores_daily and mirror tables are
refreshed.

Examples:
  # Score and append
  score

  # Also write the batch as CSV
  score --output scores.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if out, _ := cmd.Flags().GetString("output"); out != "" {
			cfg.Score.Output = out
		}

		st, closeStore, err := openStore(ctx, "score")
		if err != nil {
			return err
		}
		defer closeStore()

		_, err = scoreAndMirror(ctx, st)
		return err
	},
}

func init() {
	scoreCmd.Flags().String("output", "", "also write the scored batch to this CSV file")
	rootCmd.AddCommand(scoreCmd)
}

// scoreAndMirror runs one scoring batch, writes the optional CSV and
// refreshes the mirror tables.
func scoreAndMirror(ctx context.Context, st store.Store) (*scoring.Result, error) {
	svc, err := newScoringService(ctx, st, systemClock())
	if err != nil {
		return nil, err
	}
	res, err := svc.Score(ctx)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(os.Stdout, "scored %d accounts with the %s strategy (run date %s)\n",
		len(res.Records), res.Strategy, res.RunDate)

	if cfg.Score.Output != "" {
		if err := export.WriteScoresCSV(cfg.Score.Output, res.Records); err != nil {
			return nil, err
		}
	}
	if err := refreshMirrors(ctx, st, cfg.Mirror); err != nil {
		return nil, err
	}
	return res, nil
}
