package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/config"
	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"warehouse": cliFlag{name: "warehouse", shortHand: "w",
		desc: "Saved connection name or DSN of the warehouse, e.g. redshift://<user>:<password>@<host>:5439/<db>,\n" +
			"snowflake://<user>:<password>@<account>/<db>/<schema>?warehouse=<wh> or duckdb:<file>"},
	"log-data": cliFlag{name: "log-data", shortHand: "e",
		desc: "URI of the event log JSON files, e.g. s3://udacity-dend/log_data (a local path or glob works for DuckDB)"},
	"log-jsonpath": cliFlag{name: "log-jsonpath", shortHand: "j",
		desc: "URI of the JSONPaths document that maps event log fields to staging columns"},
	"song-data": cliFlag{name: "song-data", shortHand: "s",
		desc: "URI of the song metadata JSON files, e.g. s3://udacity-dend/song_data"},
	"iam-role-arn": cliFlag{name: "iam-role-arn", shortHand: "i",
		desc: "IAM role ARN that Redshift assumes to read the bucket"},
	"region": cliFlag{name: "region", shortHand: "R",
		desc: "AWS region of the source bucket"},
	"stage": cliFlag{name: "stage", shortHand: "S",
		desc: "The external Snowflake stage with access to the source bucket. Only required when the\n" +
			"warehouse is Snowflake"},
	"graph": cliFlag{name: "graph", shortHand: "g",
		desc: "Workflow graph file (.yaml or .json); the built-in graph is used when empty"},
	"every": cliFlag{name: "every", shortHand: "E",
		desc: "Repeat the workflow at the top of every interval, e.g. 1h (use 0 to run once)"},
	"run-now": cliFlag{name: "run-now", shortHand: "n",
		desc: "With --every, also start a run immediately"},
	"retries": cliFlag{name: "retries", shortHand: "r",
		desc: "Number of times a failed node is retried"},
	"retry-interval": cliFlag{name: "retry-interval", shortHand: "I",
		desc: "Initial wait before retrying a failed node; doubled for each further attempt"},
	"node-timeout": cliFlag{name: "node-timeout", shortHand: "T",
		desc: "Maximum duration of each node attempt (use 0 for no limit)"},
	"parallelism": cliFlag{name: "parallelism", shortHand: "P",
		desc: "Maximum number of nodes running at once"},
	"check-concurrency": cliFlag{name: "check-concurrency", shortHand: "C",
		desc: "Maximum number of data quality queries running at once"},
	"stats": cliFlag{name: "stats", shortHand: "L",
		desc: "Interval between dumping node statistics to the log (use 0 to disable)"},
	"drop": cliFlag{name: "drop", shortHand: "D",
		desc: "Drop tables before creating them"},
	"tables": cliFlag{name: "tables", shortHand: "t",
		desc: "CSV list of tables to act on; all tables the command applies to are used when empty"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Specify \"yaml\" or \"json\" to print the workflow graph. Optionally redirect this output \n" +
			"to a file for use with \"run --graph\""},
	"dialect": cliFlag{name: "dialect", shortHand: "d",
		desc: "SQL dialect to render: \"redshift | snowflake | duckdb\" (default: implied by the warehouse)"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"log-format": cliFlag{name: "log-format", shortHand: "F",
		desc: "Log format: \"text | json\""},
	"dry-run": cliFlag{name: "dry-run", shortHand: "d",
		desc: "Print the SQL query without executing it"},
	"print-header": cliFlag{name: "print-header", shortHand: "x",
		desc: "Print a header for SQL query results"},
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by the warehouse flag"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "The warehouse DSN to save"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
}

// addFlag add a flag to combra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from config if it exists else the supplied
// defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, config.Main.Get) // get the cliFlag details, with defaults taken from config or the supplied defaultValue
	desc := sw.desc + desc2                                 // create the full flag description for use below
	// Apply the flag.
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		if twelveFactorMode {
			*p = helper.GetTrueFalseStringAsBool(sw.val)
		} else {
			defaultBool := helper.GetTrueFalseStringAsBool(sw.val)
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
			// Signal that the flag was set so defaults take effect.
			mustSetFlag(c.Flags(), sw.name, strconv.FormatBool(defaultBool))
		}
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *uint64:
		defaultUint, err := strconv.ParseUint(sw.val, 10, 64)
		if err != nil {
			fmt.Printf("the value for flag %q must be a positive integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultUint
		} else {
			c.Flags().Uint64VarP(p, sw.name, sw.shortHand, defaultUint, desc)
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *time.Duration:
		defaultDuration, err := time.ParseDuration(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be a duration like 30s or 1h: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultDuration
		} else {
			c.Flags().DurationVarP(p, sw.name, sw.shortHand, defaultDuration, desc)
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode { // if the flag is required...
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the Main config file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(s.name), &s.val); err != nil { // if there's no value for the env var read into the switch val...
			// Apply the default.
			s.val = defaultValue
		}
	} else { // else check the config file or apply default...
		err := fnGetConfig(s.name, &s.val)
		if errors.As(err, &config.KeyNotFoundError{}) || s.val == "" { // if there was no key found...
			// Apply the default.
			s.val = defaultValue
		}
	}
	return s
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return constants.EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// addWarehouseFlags adds the flags used by every command that talks to the warehouse.
func addWarehouseFlags(c *cobra.Command, o *actions.WarehouseOptions, logLevel string) {
	c.Flags().SortFlags = false
	switches.addFlag(c, &o.Warehouse, "warehouse", "", true, "")
	switches.addFlag(c, &o.LogLevel, "log-level", logLevel, false, "")
	switches.addFlag(c, &o.LogFormat, "log-format", "text", false, "")
}

// addSourceFlags adds the object storage inputs of staging loads.
func addSourceFlags(c *cobra.Command, s *components.Sources) {
	switches.addFlag(c, &s.LogData, "log-data", "s3://udacity-dend/log_data", false, "")
	switches.addFlag(c, &s.LogJsonPath, "log-jsonpath", "s3://udacity-dend/log_json_path.json", false, "")
	switches.addFlag(c, &s.SongData, "song-data", "s3://udacity-dend/song_data", false, "")
	switches.addFlag(c, &s.IamRoleArn, "iam-role-arn", "", false, "")
	switches.addFlag(c, &s.Region, "region", constants.DefaultRegion, false, "")
	switches.addFlag(c, &s.Stage, "stage", "", false, "")
}

// addRunFlags adds the flags that control how the workflow graph is executed.
func addRunFlags(c *cobra.Command, cfg *actions.RunConfig) {
	switches.addFlag(c, &cfg.GraphFile, "graph", "", false, "")
	switches.addFlag(c, &cfg.DropFirst, "drop", "false", false, "")
	switches.addFlag(c, &cfg.Parallelism, "parallelism", strconv.Itoa(constants.DefaultParallelism), false, "")
	switches.addFlag(c, &cfg.CheckConcurrency, "check-concurrency", strconv.Itoa(constants.DefaultParallelism), false, "")
	switches.addFlag(c, &cfg.Retries, "retries", "0", false, "")
	switches.addFlag(c, &cfg.RetryInterval, "retry-interval", "5s", false, "")
	switches.addFlag(c, &cfg.NodeTimeout, "node-timeout", "0s", false, "")
	switches.addFlag(c, &cfg.StatsDumpFrequency, "stats", "0s", false, "")
}

// getTablesArgsFunc returns a func that cobra uses to check there are no positional args.
// It splits the CSV list of tables into the supplied slice.
func getTablesArgsFunc(csv *string, tables *[]string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected arguments %v: use --tables to choose tables", args)
		}
		*tables = nil
		if *csv != "" {
			*tables = helper.CsvToStringSliceTrimSpaces(*csv)
		}
		return nil
	}
}

// getQueryFromArgsFunc concatenates all args into a string.
// Returns an error if there are no args.
func getQueryFromArgsFunc(query *string, customErrMsg string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 { // if we are missing arguments...
			if customErrMsg != "" {
				return errors.New(customErrMsg)
			}
			return errors.New("please supply a SQL query")
		}
		*query = strings.Join(args, " ")
		return nil
	}
}
