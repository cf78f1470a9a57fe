package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/constants"
	"github.com/xo/dburl"
)

var DefaultDsnConnectionKeyNames = struct {
	Dsn string
}{
	Dsn: "dsn",
}

// DsnConnectionDetails is a simple struct to hold a DSN only.
type DsnConnectionDetails struct {
	Dsn            string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
	OriginalScheme string
}

// String returns the DSN with redacted password.
func (d DsnConnectionDetails) String() string {
	scheme := SchemeOf(d.Dsn)
	if scheme == constants.ConnectionTypeDuckDB || scheme == constants.ConnectionTypeMock { // if there are no credentials...
		return d.Dsn
	}
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return scheme + "://xxxxx"
	}
	return u.Redacted()
}

// Parse validates the DSN and saves its scheme.
func (d *DsnConnectionDetails) Parse() error {
	if d.Dsn == "" { // if the Dsn is invalid...
		return errors.New("DSN not found")
	}
	scheme := SchemeOf(d.Dsn)
	switch scheme {
	case "":
		return fmt.Errorf("DSN %q has no scheme", d.Dsn)
	case constants.ConnectionTypeDuckDB, constants.ConnectionTypeMock:
		// Not understood by dburl.
	default:
		if _, err := dburl.Parse(d.Dsn); err != nil {
			return errors.Wrap(err, "DSN could not be parsed")
		}
	}
	d.OriginalScheme = scheme
	return nil
}

func (d *DsnConnectionDetails) GetScheme() (string, error) {
	if d.OriginalScheme == "" {
		if err := d.Parse(); err != nil {
			return "", err
		}
	}
	return d.OriginalScheme, nil
}

func (d DsnConnectionDetails) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[DefaultDsnConnectionKeyNames.Dsn] = d.Dsn
	return m
}

// GetDsnConnectionDetails converts generic ConnectionDetails to DsnConnectionDetails
// and returns a pointer to the new struct.
func GetDsnConnectionDetails(c *ConnectionDetails) *DsnConnectionDetails {
	return &DsnConnectionDetails{
		Dsn: c.Data[DefaultDsnConnectionKeyNames.Dsn],
	}
}

// SchemeOf returns the lower case scheme of dsn, e.g. "redshift" for redshift://host/db, or "" if there is none.
func SchemeOf(dsn string) string {
	idx := strings.Index(dsn, ":")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(dsn[:idx])
}

// IsDsn is true when s looks like a DSN rather than the logical name of a saved connection.
func IsDsn(s string) bool {
	return SchemeOf(s) != ""
}
