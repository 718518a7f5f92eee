package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/jobfeed-service/internal/logger"
	"jobmate/jobfeed-service/internal/orchestrator"
)

const reasonCLI = "cli"

func runOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run a single collection cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.orch.TriggerRun(cmd.Context(), reasonCLI)
			if res.Outcome == orchestrator.OutcomeFailed {
				return fmt.Errorf("cycle %s failed: %w", res.RunID, res.Err)
			}

			a.log.Info("Cycle finished",
				logger.String("run_id", res.RunID),
				logger.Int("records", res.RecordCount),
				logger.Int("failed_queries", len(res.Failures)),
				logger.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
			)
			return nil
		},
	}
}
