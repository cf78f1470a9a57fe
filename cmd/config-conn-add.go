package cmd

import (
	"fmt"

	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/config"
	"github.com/spf13/cobra"
)

var connAddCfg = actions.ConnectionConfig{}

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long: fmt.Sprintf(`Add a logical warehouse connection to the config store %q 
by providing a DSN of one of the forms: 

redshift://<user>:<password>@<host>:5439/<database-name>
postgres://<user>:<password>@<host>:5432/<database-name>
snowflake://<user>:<password>@<account>/<database-name>/<schema>?warehouse=<warehouse>&role=<role>
duckdb:<file>`,
		config.Connections.FullPath),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connAddCfg.ConfigFile = getConnectionGetterSetter()
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(&connAddCfg)
	},
}

func initConnAdd() {
	configConnCmd.AddCommand(configConnAddCmd)
	configConnAddCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddCmd, &connAddCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Dsn, "dsn", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Force, "force-connection", "", false, "")
}
