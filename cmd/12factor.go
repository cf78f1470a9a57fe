package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/relloyd/starpipe/actions"
	"github.com/relloyd/starpipe/config"
	c "github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the actions.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
// Variables found in a .env file in the working directory are loaded first without overriding the environment.
func setupTwelveFactorMode() {
	_ = godotenv.Load()
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		lambdaMode = strings.ToLower(mode) == "lambda"
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
)

type twelveFactorAction struct {
	runnerFunc func(ctx context.Context) error
}

func stepAction(s **stepCommand) twelveFactorAction {
	return twelveFactorAction{runnerFunc: func(ctx context.Context) error { return (*s).execute() }}
}

var twelveFactorActions = map[string]twelveFactorAction{
	"run":       {runnerFunc: runWorkflow12Factor},
	"create":    stepAction(&createStep),
	"drop":      stepAction(&dropStep),
	"load":      stepAction(&loadStep),
	"transform": stepAction(&transformStep),
	"check":     stepAction(&checkStep),
	"sql": {runnerFunc: func(ctx context.Context) error {
		sqlCfg.Connections = getConnectionLoader()
		return actions.RunSql(&sqlCfg)
	}},
	"dag": {runnerFunc: func(ctx context.Context) error { return actions.RunDag(&dagCfg) }},
}

func getConnectionLoader() actions.ConnectionLoader {
	if twelveFactorMode {
		return &TwelveFactorConnections{}
	}
	return config.Connections
}

func getConnectionGetterSetter() actions.ConnectionGetterSetter {
	if twelveFactorMode {
		fmt.Printf("Error: connections cannot be configured when %v is set (supply them using %v instead)\n",
			envVarTwelveFactorMode, connectionDsnEnvVar("<connection-name>"))
		os.Exit(1)
	}
	return config.Connections
}

func execute12FactorMode(ctx context.Context, acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn") // fetch logLevel from env as this is not a persistent flag, given that we wanted different logging defaults per cobra action.
	log := logger.NewLogger(c.ServiceName, logLevel, stackDumpOnPanic)
	log.Info("Starpipe is running in 12 Factor mode...")
	command := os.Getenv(envVarCommand)
	log.Debug(envVarCommand, "=", command)
	a, ok := acts[command]
	if !ok {
		err = fmt.Errorf("invalid command %q in %v", command, envVarCommand)
		log.Error(err.Error())
		return
	}
	// Run the action.
	err = a.runnerFunc(ctx)
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}

// connectionDsnEnvVar returns the name of the environment variable holding the DSN of a connection,
// e.g. SP_DWH_DSN for connection dwh.
func connectionDsnEnvVar(connectionName string) string {
	return helper.EnvVarName(connectionName + "-dsn")
}

type TwelveFactorConnections struct{} // implements interfaces in module, actions.

// LoadConnection reads the DSN of connectionName from the environment.
// This mimics loading connection details from the connections config file.
func (t *TwelveFactorConnections) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	var dsn string
	if err := helper.ReadValueFromEnv(connectionDsnEnvVar(connectionName), &dsn); err != nil { // if we cannot find the DSN in the environment...
		return shared.ConnectionDetails{}, err
	}
	return shared.NewConnectionDetails(connectionName, dsn)
}
