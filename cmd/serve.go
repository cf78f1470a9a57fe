package cmd

import (
	"net"

	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/metrics"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service to launch and monitor workflow runs",
	Long: `Start a web service with the following routes:

  POST /launch              start a run; optional JSON body {"dropFirst": true, "graph": {...}}
  GET  /runs                list runs
  GET  /runs/{runId}/status node states of a run
  GET  /runs/{runId}/stats  node statistics of a run
  GET  /runs/{runId}/stop   stop a run
  GET  /health              health check
  GET  /metrics             Prometheus metrics
  GET  /stop                stop the web service

Runs use the warehouse and sources given by the flags below.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupRunConfig(&serveConfig.Run)
		serveConfig.LogLevel = serveConfig.Run.LogLevel
		serveConfig.StackDumpOnPanic = stackDumpOnPanic
		metrics.SetBuildInfo(version)
		cmd.SilenceUsage = true
		return actions.RunWebServer(&serveConfig)
	},
}

var serveConfig = actions.WebServerConfig{
	Scheme: "http",
	Addr:   net.IP{0, 0, 0, 0},
	Port:   8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	addWarehouseFlags(serveCmd, &serveConfig.Run.WarehouseOptions, "info")
	addSourceFlags(serveCmd, &serveConfig.Run.Sources)
	addRunFlags(serveCmd, &serveConfig.Run)
}
