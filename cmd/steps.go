package cmd

import (
	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/helper"
	"github.com/spf13/cobra"
)

// stepCommand runs one workflow step outside the graph.
type stepCommand struct {
	cmd    *cobra.Command
	cfg    actions.StepConfig
	tables string // CSV
	run    func(cfg *actions.StepConfig) error
}

// execute runs the step with the flags already parsed.
func (s *stepCommand) execute() error {
	s.cfg.Connections = getConnectionLoader()
	s.cfg.StackDumpOnPanic = stackDumpOnPanic
	if twelveFactorMode { // if cobra did not split the tables...
		s.cfg.Tables = helper.CsvToStringSliceTrimSpaces(s.tables)
	}
	return s.run(&s.cfg)
}

func newStepCommand(use string, short string, long string, withSources bool, run func(cfg *actions.StepConfig) error) *stepCommand {
	s := &stepCommand{run: run}
	s.cmd = &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  getTablesArgsFunc(&s.tables, &s.cfg.Tables),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return s.execute()
		},
	}
	addWarehouseFlags(s.cmd, &s.cfg.WarehouseOptions, "info")
	switches.addFlag(s.cmd, &s.tables, "tables", "", false, "")
	if withSources {
		addSourceFlags(s.cmd, &s.cfg.Sources)
	}
	rootCmd.AddCommand(s.cmd)
	return s
}

var createStep, dropStep, loadStep, transformStep, checkStep *stepCommand

// Commands are built in init() so that flags are read after twelveFactorMode is known.
func init() {
	createStep = newStepCommand("create", "Create the staging, fact and dimension tables",
		`Create the catalog tables if they do not exist. Use --drop to drop them first.`,
		false, actions.RunCreate)
	switches.addFlag(createStep.cmd, &createStep.cfg.DropFirst, "drop", "false", false, "")
	dropStep = newStepCommand("drop", "Drop the staging, fact and dimension tables",
		`Drop the catalog tables if they exist, fact and dimension tables before staging.`,
		false, actions.RunDrop)
	loadStep = newStepCommand("load", "Bulk-load the staging tables from object storage",
		`Replace the contents of staging_events and staging_songs with the JSON found at
--log-data and --song-data. Each table is emptied and loaded in one transaction.`,
		true, actions.RunLoad)
	transformStep = newStepCommand("transform", "Fill the fact and dimension tables from staging",
		`Replace the contents of songplays, users, songs, artists and time using the staged data.
The fact table is filled before the time dimension that reads it.`,
		false, actions.RunTransform)
	checkStep = newStepCommand("check", "Run the data quality checks",
		`Check that each fact and dimension table has rows and no NULLs in its NOT NULL columns.
Every failed check is printed.`,
		false, actions.RunCheck)
	switches.addFlag(checkStep.cmd, &checkStep.cfg.CheckConcurrency, "check-concurrency", "4", false, "")
}
