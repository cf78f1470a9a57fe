package catalog

import (
	"fmt"
	"strings"

	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
)

// DuckDB renders SQL for an embedded DuckDB warehouse and loads staging tables with read_json.
// Identity columns are backed by a sequence named <table>_<column>_seq.
// Primary keys are not declared since DuckDB rejects a delete and re-insert of the same key within one transaction.
type DuckDB struct{}

func (DuckDB) Name() string { return constants.DialectDuckDB }

func (DuckDB) QuoteIdentifier(name string) string { return helper.QuoteIdentifier(name) }

func (DuckDB) ResolvesJsonPaths() bool { return true }

func (DuckDB) typeName(t DataType) string {
	switch t {
	case TypeFloat:
		return "DOUBLE"
	default:
		return string(t)
	}
}

// SequenceName returns the sequence backing identity column c of t.
func (DuckDB) SequenceName(t *Table, c Column) string {
	return fmt.Sprintf("%v_%v_seq", t.Name, c.Name)
}

func (d DuckDB) columnDef(t *Table, c Column) string {
	sb := strings.Builder{}
	sb.WriteString(d.QuoteIdentifier(c.Name) + " " + d.typeName(c.Type))
	if c.Identity {
		sb.WriteString(fmt.Sprintf(" DEFAULT nextval(%v)", helper.QuoteLiteral(d.SequenceName(t, c))))
	}
	if c.NotNull || c.Identity || c.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

func (DuckDB) tableSuffix(t *Table) string { return "" }

func (DuckDB) datePart(p DatePart, expr string) string {
	if p == PartDayOfWeek {
		p = "dow"
	}
	return fmt.Sprintf("EXTRACT(%v FROM %v)", p, expr)
}

func (d DuckDB) CreateTable(t *Table) []string {
	retval := make([]string, 0)
	for _, c := range t.Columns {
		if c.Identity {
			retval = append(retval, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %v START WITH 0 MINVALUE 0", d.QuoteIdentifier(d.SequenceName(t, c))))
		}
	}
	return append(retval, renderCreateTable(d, t))
}

func (d DuckDB) DropTable(t *Table) []string {
	retval := []string{renderDropTable(d, t)}
	for _, c := range t.Columns {
		if c.Identity {
			retval = append(retval, fmt.Sprintf("DROP SEQUENCE IF EXISTS %v", d.QuoteIdentifier(d.SequenceName(t, c))))
		}
	}
	return retval
}

func (d DuckDB) DeleteAll(t *Table) string { return renderDeleteAll(d, t) }

func (d DuckDB) InsertSelect(t *Table) (string, error) { return renderInsertSelect(d, t) }

func (d DuckDB) CountRows(t *Table) string { return renderCountRows(d, t) }

func (d DuckDB) CountNulls(t *Table, column string) string { return renderCountNulls(d, t, column) }

// Glob returns the read_json pattern for src: directories are searched recursively for *.json files.
func (DuckDB) Glob(uri string) string {
	if strings.Contains(uri, "*") || strings.HasSuffix(strings.ToLower(uri), ".json") {
		return uri
	}
	return strings.TrimRight(uri, "/") + "/**/*.json"
}

func (d DuckDB) sourceExpr(c Column) string {
	field := d.QuoteIdentifier(c.SourceField())
	switch {
	case c.Type == TypeTimestamp && c.EpochMillis:
		return fmt.Sprintf("epoch_ms(TRY_CAST(%v AS BIGINT))", field)
	default:
		return fmt.Sprintf("TRY_CAST(%v AS %v)", field, d.typeName(c.Type))
	}
}

// BulkLoad returns an INSERT that reads newline-delimited JSON with every source field typed as VARCHAR,
// so malformed values become NULL instead of failing the load.
func (d DuckDB) BulkLoad(t *Table, src LoadSource) ([]string, error) {
	if t.Load == nil {
		return nil, fmt.Errorf("table %q is not a staging table", t.Name)
	}
	if src.URI == "" {
		return nil, fmt.Errorf("missing source URI for table %q", t.Name)
	}
	fields := sourceFields(t)
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = fmt.Sprintf("%v: 'VARCHAR'", helper.QuoteLiteral(f))
	}
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		exprs[i] = d.sourceExpr(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %v (%v)\nSELECT %v\nFROM read_json(%v, format = 'newline_delimited', columns = {%v})",
		d.QuoteIdentifier(t.Name),
		strings.Join(quoteAll(d, t.ColumnNames()), ", "),
		strings.Join(exprs, ", "),
		helper.QuoteLiteral(d.Glob(src.URI)),
		strings.Join(columns, ", "),
	)
	return []string{stmt}, nil
}
