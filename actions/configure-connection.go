package actions

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/config"
	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/rdbms"
	"github.com/relloyd/starpipe/rdbms/shared"
)

type ConnectionConfig struct {
	ConfigFile  ConnectionGetterSetter `errorTxt:"connections config file" mandatory:"yes"`
	LogicalName string                 `errorTxt:"connection-name" mandatory:"yes"`
	Dsn         string
	Force       bool
	Output      io.Writer
}

// RunConnectionAdd saves a warehouse DSN under cfg.LogicalName.
// An existing connection is only replaced when cfg.Force is set.
func RunConnectionAdd(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	// Validate connection name.
	if strings.Contains(cfg.LogicalName, ":") {
		return fmt.Errorf("connection name cannot contain ':' characters since they are reserved for DSNs")
	}
	connection, err := shared.NewConnectionDetails(cfg.LogicalName, cfg.Dsn)
	if err != nil {
		return errors.Wrap(err, "unable to create connection")
	}
	if _, err := rdbms.DialectForDsn(cfg.Dsn); err != nil { // if we can't talk to this type of warehouse...
		return err
	}
	// Check for an existing saved connection.
	tmpConn := &shared.ConnectionDetails{}
	err = cfg.ConfigFile.Get(cfg.LogicalName, tmpConn)
	if err != nil { // if there is an error finding the connection...
		var keyNotFound config.KeyNotFoundError
		var fileNotFound config.FileNotFoundError
		if !errors.As(err, &keyNotFound) && !errors.As(err, &fileNotFound) { // if the error is real...
			return err
		}
	} else if tmpConn.LogicalName != "" && !cfg.Force { // else if the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection exists, use force to update the connection or remove it first")
	}
	// Set config (creates the file if missing).
	if err = cfg.ConfigFile.Set(cfg.LogicalName, &connection); err != nil {
		return fmt.Errorf("error writing connections config file after adding: %v", err)
	}
	fmt.Fprintf(output(cfg.Output), "Connection %q added\n", cfg.LogicalName)
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if err := cfg.ConfigFile.Delete(cfg.LogicalName); err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	fmt.Fprintf(output(cfg.Output), "Connection %q removed\n", cfg.LogicalName)
	return nil
}

// RunConnectionList prints every saved connection with passwords redacted.
func RunConnectionList(configFile ConnectionGetterSetter, w io.Writer) error {
	keys, err := configFile.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys { // for each key...
		conn := shared.ConnectionDetails{}
		if err := configFile.Get(k, &conn); err != nil {
			return err
		}
		fmt.Fprintf(output(w), "%v:\n%v\n", k, conn)
	}
	return nil
}
