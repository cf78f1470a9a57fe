package cmd

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2026-01-02T03:04+0000"
	stackDumpOnPanic bool
)

var rootCmd = &cobra.Command{
	Use: "sp",
	Long: `
     _                        _
 ___| |_ __ _ _ __ _ __ (_)_ __   ___
/ __| __/ _' | '__| '_ \| | '_ \ / _ \
\__ \ || (_| | |  | |_) | | |_) |  __/
|___/\__\__,_|_|  | .__/|_| .__/ \___|
                  |_|     |_|

Starpipe loads Sparkify song and event logs from object storage into a star schema
in Redshift, Snowflake or DuckDB. It stages the raw JSON, fills a songplays fact table
and four dimension tables, then checks the data. Run the whole workflow once or on a
schedule, run a single step, or start a web service to launch and monitor runs.`,
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func(ctx context.Context) error { return execute12FactorMode(ctx, twelveFactorActions) })
		} else {
			if err := execute12FactorMode(context.Background(), twelveFactorActions); err != nil {
				// execute12FactorMode logs the error.
				os.Exit(1)
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.Execute(); err != nil {
			// Execute() prints the error.
			os.Exit(1)
		}
	}
}
