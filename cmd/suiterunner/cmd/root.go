package cmd

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suiterunner",
		Short: "suiterunner runs a test suite against lab devices via a remote task queue.",
		Long: `suiterunner schedules one queue task per child test of a suite, waits for the
results, retries failed tests within the configured budgets, and reports a
final per-test summary.

Exit status: 0 on full success, 1 if tests failed, 2 on an infrastructure
error, 3 if the suite timed out before all tests settled.`,
	}

	cmd.PersistentFlags().String("queue-url", "http://localhost:9050", "Base URL of the task queue service.")
	cmd.PersistentFlags().Duration("poll-interval", defaultPollInterval, "Interval between result polls.")
	cmd.PersistentFlags().Duration("timeout", defaultSuiteTimeout, "Wall-clock budget for the whole suite.")

	cmd.AddCommand(
		runCmd(),
	)
	return cmd
}
