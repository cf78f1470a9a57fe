package constants

const (
	StatsCaptureFrequencySeconds = 5
	EmojiBang                    = "\U0001F4A5"
	EnvVarPrefix                 = "SP" // prefixed for environment variables in twelveFactorMode
	ServiceName                  = "starpipe"
	DefaultRegion                = "us-west-2"
	DefaultParallelism           = 4
	DefaultScheduleInterval      = "1h" // the workflow runs at the top of every hour
	DialectRedshift              = "redshift"
	DialectSnowflake             = "snowflake"
	DialectDuckDB                = "duckdb"
	ConnectionTypeRedshift       = "redshift"
	ConnectionTypePostgres       = "postgres"
	ConnectionTypeSnowflake      = "snowflake"
	ConnectionTypeDuckDB         = "duckdb"
	ConnectionTypeMock           = "mock"
	ConnectionTypeS3             = "s3"
)
