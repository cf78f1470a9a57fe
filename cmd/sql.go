package cmd

import (
	"github.com/relloyd/starpipe/actions"
	"github.com/spf13/cobra"
)

var sqlCfg = actions.SqlConfig{}

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Print the SQL of a workflow run without executing it",
	Long: `Print every statement that a full run would execute, in order, for the given dialect
or the dialect implied by the warehouse DSN. Nothing is executed against the warehouse.
For Snowflake and DuckDB the JSONPaths document is read to map the event log fields.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlCfg.Connections = getConnectionLoader()
		sqlCfg.StackDumpOnPanic = stackDumpOnPanic
		cmd.SilenceUsage = true
		return actions.RunSql(&sqlCfg)
	},
}

func init() {
	rootCmd.AddCommand(sqlCmd)
	sqlCmd.Flags().SortFlags = false
	switches.addFlag(sqlCmd, &sqlCfg.Dialect, "dialect", "", false, "")
	switches.addFlag(sqlCmd, &sqlCfg.Warehouse, "warehouse", "", false, "")
	switches.addFlag(sqlCmd, &sqlCfg.LogLevel, "log-level", "error", false, "")
	switches.addFlag(sqlCmd, &sqlCfg.DropFirst, "drop", "false", false, "")
	addSourceFlags(sqlCmd, &sqlCfg.Sources)
}
