package shared

import (
	"fmt"
	"strings"
)

// ConnectionDetails holds the DSN of a logical warehouse connection saved in config.
type ConnectionDetails struct {
	Type        string            `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName"`
	Data        map[string]string `json:"data" errorTxt:"connection data" mandatory:"yes" yaml:"data"`
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	x := make([]string, 0, len(c.Data)+1)
	x = append(x, fmt.Sprintf("  type = %v", c.Type))
	if v, ok := c.Data[DefaultDsnConnectionKeyNames.Dsn]; ok { // if there's a DSN...
		x = append(x, fmt.Sprintf("  dsn = %v", DsnConnectionDetails{Dsn: v}))
	}
	return strings.Join(x, "\n")
}

// NewConnectionDetails builds ConnectionDetails for the supplied DSN, using its scheme as the type.
func NewConnectionDetails(logicalName string, dsn string) (ConnectionDetails, error) {
	d := DsnConnectionDetails{Dsn: dsn}
	if err := d.Parse(); err != nil {
		return ConnectionDetails{}, err
	}
	return ConnectionDetails{
		Type:        d.OriginalScheme,
		LogicalName: logicalName,
		Data:        d.GetMap(nil),
	}, nil
}

// ResolveDsn returns s when it is a DSN, else the DSN saved under the logical name s.
func ResolveDsn(g ConnectionGetter, s string) (string, error) {
	if IsDsn(s) {
		return s, nil
	}
	if g == nil {
		return "", fmt.Errorf("%q is not a DSN and no saved connections are available", s)
	}
	c, err := g.LoadConnection(s)
	if err != nil {
		return "", err
	}
	dsn := c.Data[DefaultDsnConnectionKeyNames.Dsn]
	if dsn == "" {
		return "", fmt.Errorf("connection %q has no DSN", s)
	}
	return dsn, nil
}
