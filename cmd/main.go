// jobmate-jobfeed-service
//
// Periodically pulls job listings from Adzuna, reduces them through the
// filter/dedup pipeline and publishes the result as job_results.csv.
// At most one collection cycle runs at a time; triggers that arrive while
// one is running are turned away.
//
// Commands:
//   - serve    (default) scheduler + HTTP control plane
//   - run-once one synchronous cycle, exits non-zero on total failure
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	// A missing .env is fine: the environment may already be populated.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "jobfeed",
		Short:         "Periodic job listing collector",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(serveCommand(), runOnceCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "[jobfeed-service] %v\n", err)
		os.Exit(1)
	}
}
