package catalog

import (
	"fmt"
	"strings"

	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
)

// Snowflake renders SQL for Snowflake and loads staging tables with COPY INTO from an external stage.
// Identifiers are upper-cased and quoted.
type Snowflake struct{}

func (Snowflake) Name() string { return constants.DialectSnowflake }

func (Snowflake) QuoteIdentifier(name string) string {
	return helper.QuoteIdentifier(strings.ToUpper(name))
}

func (Snowflake) ResolvesJsonPaths() bool { return true }

func (Snowflake) typeName(t DataType) string {
	switch t {
	case TypeTimestamp:
		return "TIMESTAMP_NTZ"
	default:
		return string(t)
	}
}

func (d Snowflake) columnDef(t *Table, c Column) string {
	sb := strings.Builder{}
	sb.WriteString(d.QuoteIdentifier(c.Name) + " " + d.typeName(c.Type))
	if c.Identity {
		sb.WriteString(" IDENTITY(0,1)")
	}
	if c.NotNull || c.Identity {
		sb.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	return sb.String()
}

func (d Snowflake) tableSuffix(t *Table) string {
	keys := sortKeys(t)
	if len(keys) == 0 {
		return ""
	}
	return fmt.Sprintf("\nCLUSTER BY (%v)", strings.Join(quoteAll(d, keys), ", "))
}

func (Snowflake) datePart(p DatePart, expr string) string {
	return fmt.Sprintf("EXTRACT(%v FROM %v)", p, expr)
}

func (d Snowflake) CreateTable(t *Table) []string { return []string{renderCreateTable(d, t)} }

func (d Snowflake) DropTable(t *Table) []string { return []string{renderDropTable(d, t)} }

func (d Snowflake) DeleteAll(t *Table) string { return renderDeleteAll(d, t) }

func (d Snowflake) InsertSelect(t *Table) (string, error) { return renderInsertSelect(d, t) }

func (d Snowflake) CountRows(t *Table) string { return renderCountRows(d, t) }

func (d Snowflake) CountNulls(t *Table, column string) string { return renderCountNulls(d, t, column) }

// sourceExpr converts the JSON field of column c from the staged VARIANT $1 into its column type.
func (Snowflake) sourceExpr(c Column) string {
	v := fmt.Sprintf("$1:%v::VARCHAR", helper.QuoteIdentifier(c.SourceField()))
	switch c.Type {
	case TypeInteger:
		return fmt.Sprintf("TRY_TO_NUMBER(%v)", v)
	case TypeFloat:
		return fmt.Sprintf("TRY_TO_DOUBLE(%v)", v)
	case TypeTimestamp:
		if c.EpochMillis {
			return fmt.Sprintf("TO_TIMESTAMP_NTZ(TRY_TO_NUMBER(%v), 3)", v)
		}
		return fmt.Sprintf("TRY_TO_TIMESTAMP_NTZ(%v)", v)
	default:
		return v
	}
}

// BulkLoad returns a COPY INTO that selects each column from the JSON files under src.URI via src.Stage.
// The stage must point at the bucket root so the object key of src.URI resolves beneath it.
func (d Snowflake) BulkLoad(t *Table, src LoadSource) ([]string, error) {
	if t.Load == nil {
		return nil, fmt.Errorf("table %q is not a staging table", t.Name)
	}
	if src.URI == "" {
		return nil, fmt.Errorf("missing source URI for table %q", t.Name)
	}
	if src.Stage == "" {
		return nil, fmt.Errorf("missing external stage required to COPY INTO table %q", t.Name)
	}
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		exprs[i] = d.sourceExpr(c)
	}
	location := "@" + strings.TrimPrefix(src.Stage, "@")
	if key := objectKey(src.URI); key != "" {
		location += "/" + key
	}
	stmt := fmt.Sprintf("COPY INTO %v (%v)\nFROM (SELECT %v FROM %v)\nFILE_FORMAT = (TYPE = JSON)\nFORCE = TRUE",
		d.QuoteIdentifier(t.Name),
		strings.Join(quoteAll(d, t.ColumnNames()), ", "),
		strings.Join(exprs, ", "),
		location,
	)
	return []string{stmt}, nil
}
