package cmd

import (
	"context"

	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/constants"
	"github.com/spf13/cobra"
)

var runCfg = actions.RunConfig{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Sparkify workflow",
	Long: `Run the workflow graph that creates the tables, stages the event and song logs, fills
the songplays fact and the users, songs, artists and time dimensions, then runs the data
quality checks. A node that fails after its retries blocks every node downstream of it
while independent branches carry on.

The workflow runs at the top of every hour until interrupted. Use --every to change the
interval or --every 0 to run once. A summary of each run is printed when it ends.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupRunConfig(&runCfg)
		cmd.SilenceUsage = true
		return actions.RunWorkflow(&runCfg)
	},
}

func setupRunConfig(cfg *actions.RunConfig) {
	cfg.Connections = getConnectionLoader()
	cfg.StackDumpOnPanic = stackDumpOnPanic
}

// runWorkflow12Factor runs the workflow once per lambda invocation, else as the CLI would.
func runWorkflow12Factor(ctx context.Context) error {
	setupRunConfig(&runCfg)
	if lambdaMode {
		_, err := actions.RunWorkflowOnce(ctx, &runCfg)
		return err
	}
	return actions.RunWorkflow(&runCfg)
}

func init() {
	rootCmd.AddCommand(runCmd)
	addWarehouseFlags(runCmd, &runCfg.WarehouseOptions, "info")
	addSourceFlags(runCmd, &runCfg.Sources)
	addRunFlags(runCmd, &runCfg)
	switches.addFlag(runCmd, &runCfg.Every, "every", constants.DefaultScheduleInterval, false, "")
	switches.addFlag(runCmd, &runCfg.RunNow, "run-now", "false", false, "")
}
