package actions

import (
	"github.com/relloyd/starpipe/rdbms/shared"
)

// ConnectionLoader fetches saved warehouse connections by logical name.
type ConnectionLoader interface {
	LoadConnection(connectionName string) (shared.ConnectionDetails, error)
}

type ConnectionGetterSetter interface {
	Get(key string, out interface{}) error
	Set(key string, val interface{}) error
	Delete(key string) error
	GetAllKeys() ([]string, error)
}
