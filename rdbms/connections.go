package rdbms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms/shared"
	"github.com/xo/dburl"
)

const (
	driverPgx           = "pgx"
	defaultRedshiftPort = "5439"
	pingRetries         = 3
)

// dialectsByScheme maps supported DSN schemes to the SQL dialect used to talk to them.
var dialectsByScheme = map[string]string{
	constants.ConnectionTypeRedshift:  constants.DialectRedshift,
	constants.ConnectionTypePostgres:  constants.DialectRedshift,
	"postgresql":                      constants.DialectRedshift,
	constants.ConnectionTypeSnowflake: constants.DialectSnowflake,
	constants.ConnectionTypeDuckDB:    constants.DialectDuckDB,
	constants.ConnectionTypeMock:      constants.DialectRedshift,
}

// DialectForDsn returns the dialect name implied by the scheme of dsn.
func DialectForDsn(dsn string) (string, error) {
	scheme := shared.SchemeOf(dsn)
	d, ok := dialectsByScheme[scheme]
	if !ok {
		return "", fmt.Errorf("unsupported database type, %q", scheme)
	}
	return d, nil
}

// OpenDbConnection opens a database connection using the supplied DSN and pings it, retrying with backoff.
func OpenDbConnection(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails) (db shared.Connector, err error) {
	scheme, err := d.GetScheme()
	if err != nil {
		return nil, err
	}
	log.Debug("opening connection type ", scheme) // don't log password details in d.Dsn!
	switch scheme {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(log, d)
	case constants.ConnectionTypeDuckDB:
		db, err = newDuckDBConnection(log, d)
	case constants.ConnectionTypeRedshift, constants.ConnectionTypePostgres, "postgresql":
		db, err = newPgxConnection(log, d)
	case constants.ConnectionTypeMock:
		db = shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeMock)
	default: // else we have an unsupported database...
		err = fmt.Errorf("unsupported database type, %q", scheme)
	}
	if err != nil {
		return nil, err
	}
	if err = Ping(ctx, log, db, pingRetries); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Successful connection to: ", d)
	return db, nil
}

// Ping checks the connection is usable, retrying up to retries times with exponential backoff.
func Ping(ctx context.Context, log logger.Logger, db shared.Connector, retries uint64) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	err := backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx),
		func(err error, wait time.Duration) {
			log.Warn("ping failed, retrying in ", wait, ": ", err)
		})
	if err != nil {
		return errors.Wrap(err, "unable to ping database")
	}
	return nil
}

// newPgxConnection opens Redshift and Postgres DSNs with the pgx driver.
func newPgxConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", d)
	u, err := dburl.Parse(d.Dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, fmt.Errorf("error parsing DSN %q: %w", d, err)
	}
	if d.OriginalScheme == constants.ConnectionTypeRedshift && u.Port() == "" { // if Redshift is on its default port...
		u.Host = u.Host + ":" + defaultRedshiftPort
	}
	// pgx understands postgres URLs so rewrite the scheme instead of relying on the generated DSN.
	pgUrl := u.URL
	pgUrl.Scheme = constants.ConnectionTypePostgres
	return shared.NewSqlConnection(d.OriginalScheme, driverPgx, pgUrl.String())
}

// newDuckDBConnection opens an embedded DuckDB database.
// duckdb:/path/to/file.db and duckdb:///path/to/file.db open a file, while duckdb: opens an in-memory database.
func newDuckDBConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	path := DuckDBPath(d.Dsn)
	log.Info("Opening DuckDB database: ", path)
	return shared.NewSqlConnection(constants.ConnectionTypeDuckDB, constants.ConnectionTypeDuckDB, path)
}

// DuckDBPath returns the file path in a duckdb DSN, or "" for an in-memory database.
func DuckDBPath(dsn string) string {
	p := dsn[len(constants.ConnectionTypeDuckDB)+1:]
	if strings.HasPrefix(p, "//") {
		p = p[2:]
	}
	if p == ":memory:" {
		return ""
	}
	return p
}
