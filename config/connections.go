package config

import (
	"fmt"

	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// GetConnectionDetails fetches generic connection details from the File c using the connectionName to do the lookup.
// If the connection is not found the an error is produced.
func (c *File) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	genericConn := &shared.ConnectionDetails{}
	if err := c.Get(connectionName, genericConn); err != nil {
		return nil, fmt.Errorf("connection %q is not configured: use 'config conn add' to create it: %w", connectionName, err)
	}
	if genericConn.Type == "" { // if the connection was not found...
		return nil, fmt.Errorf("unknown type for connection %q", connectionName)
	}
	return genericConn, nil
}

// LoadConnection implements shared.ConnectionGetter.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d, err := c.GetConnectionDetails(connectionName)
	if err != nil {
		return shared.ConnectionDetails{}, err
	}
	return *d, nil
}

// SaveConnection validates d and saves it under its logical name.
func (c *File) SaveConnection(d shared.ConnectionDetails) error {
	if err := helper.ValidateStructIsPopulated(&d); err != nil {
		return err
	}
	return c.Set(d.LogicalName, d)
}
