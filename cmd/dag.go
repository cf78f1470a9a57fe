package cmd

import (
	"github.com/relloyd/starpipe/actions"
	"github.com/spf13/cobra"
)

var dagCfg = actions.DagConfig{}

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Print the workflow graph",
	Long: `Validate and print the workflow graph as YAML or JSON. Without --graph the built-in
Sparkify graph is printed. Edit the output and supply it to "run --graph" to change
the order of the steps or to run a subset of them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return actions.RunDag(&dagCfg)
	},
}

func init() {
	rootCmd.AddCommand(dagCmd)
	dagCmd.Flags().SortFlags = false
	switches.addFlag(dagCmd, &dagCfg.GraphFile, "graph", "", false, "")
	switches.addFlag(dagCmd, &dagCfg.Format, "output", "yaml", false, "")
}
