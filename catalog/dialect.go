package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
)

// LoadSource carries the object storage location and opaque credentials used to bulk-load a staging table.
type LoadSource struct {
	URI        string `errorTxt:"source URI" mandatory:"yes"` // s3://bucket/prefix or a local path or glob
	JsonPaths  string // URI of the JSONPaths document; empty means match fields by name
	IamRoleArn string
	Region     string
	Stage      string // Snowflake external stage with access to the bucket
}

// Dialect renders catalog definitions into warehouse SQL.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	// CreateTable returns idempotent statements that create t.
	CreateTable(t *Table) []string
	// DropTable returns idempotent statements that drop t.
	DropTable(t *Table) []string
	// DeleteAll returns a statement removing every row of t.
	DeleteAll(t *Table) string
	// BulkLoad returns statements that copy JSON records from src into staging table t.
	BulkLoad(t *Table, src LoadSource) ([]string, error)
	// InsertSelect returns the statement that populates star table t from its Transform.
	InsertSelect(t *Table) (string, error)
	CountRows(t *Table) string
	CountNulls(t *Table, column string) string
	// ResolvesJsonPaths is true when the JSONPaths document must be applied to the table before BulkLoad.
	ResolvesJsonPaths() bool
}

// NewDialect returns the named dialect.
func NewDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case constants.DialectRedshift, constants.ConnectionTypePostgres:
		return Redshift{}, nil
	case constants.DialectSnowflake:
		return Snowflake{}, nil
	case constants.DialectDuckDB:
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

// SupportedDialects lists the dialect names accepted by NewDialect.
func SupportedDialects() []string {
	return []string{constants.DialectRedshift, constants.DialectSnowflake, constants.DialectDuckDB}
}

// renderHooks is the per-dialect behaviour used by the shared renderers below.
type renderHooks interface {
	QuoteIdentifier(name string) string
	columnDef(t *Table, c Column) string
	tableSuffix(t *Table) string
	datePart(p DatePart, expr string) string
}

func quoteAll(h renderHooks, names []string) []string {
	retval := make([]string, len(names))
	for i, n := range names {
		retval[i] = h.QuoteIdentifier(n)
	}
	return retval
}

func renderCreateTable(h renderHooks, t *Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = "    " + h.columnDef(t, c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (\n%v\n)%v", h.QuoteIdentifier(t.Name), strings.Join(defs, ",\n"), h.tableSuffix(t))
}

func renderDropTable(h renderHooks, t *Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %v", h.QuoteIdentifier(t.Name))
}

func renderDeleteAll(h renderHooks, t *Table) string {
	return fmt.Sprintf("DELETE FROM %v", h.QuoteIdentifier(t.Name))
}

func renderCountRows(h renderHooks, t *Table) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %v", h.QuoteIdentifier(t.Name))
}

func renderCountNulls(h renderHooks, t *Table, column string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %v WHERE %v IS NULL", h.QuoteIdentifier(t.Name), h.QuoteIdentifier(column))
}

func renderColumnRef(h renderHooks, r ColumnRef) string {
	return r.Alias + "." + h.QuoteIdentifier(r.Column)
}

// renderInsertSelect builds INSERT INTO t (targets) SELECT ... from the table's Transform.
// Rows are deduplicated with DISTINCT or, when a dedup key is set, by keeping the first row per key.
func renderInsertSelect(h renderHooks, t *Table) (string, error) {
	tr := t.Transform
	if tr == nil {
		return "", fmt.Errorf("table %q has no transform", t.Name)
	}
	if len(tr.Projections) == 0 {
		return "", fmt.Errorf("transform for %q has no projections", t.Name)
	}
	targets := quoteAll(h, tr.Targets())
	selectList := make([]string, len(tr.Projections))
	for i, p := range tr.Projections {
		expr := renderColumnRef(h, p.Column)
		if p.DatePart != "" {
			expr = h.datePart(p.DatePart, expr)
		}
		selectList[i] = fmt.Sprintf("%v AS %v", expr, targets[i])
	}
	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("FROM %v %v", h.QuoteIdentifier(tr.From.Table), tr.From.Alias))
	if tr.Join != nil {
		on := make([]string, len(tr.Join.On))
		for i, pair := range tr.Join.On {
			on[i] = fmt.Sprintf("%v = %v", renderColumnRef(h, pair.Left), renderColumnRef(h, pair.Right))
		}
		body.WriteString(fmt.Sprintf("\nJOIN %v %v ON %v", h.QuoteIdentifier(tr.Join.Table), tr.Join.Alias, strings.Join(on, " AND ")))
	}
	if len(tr.Where) > 0 {
		preds := make([]string, len(tr.Where))
		for i, w := range tr.Where {
			switch w.Op {
			case OpEquals:
				preds[i] = fmt.Sprintf("%v = %v", renderColumnRef(h, w.Column), helper.QuoteLiteral(w.Value))
			case OpNotNull:
				preds[i] = fmt.Sprintf("%v IS NOT NULL", renderColumnRef(h, w.Column))
			default:
				return "", fmt.Errorf("transform for %q uses unsupported operator %q", t.Name, w.Op)
			}
		}
		body.WriteString("\nWHERE " + strings.Join(preds, " AND "))
	}
	insert := fmt.Sprintf("INSERT INTO %v (%v)", h.QuoteIdentifier(t.Name), strings.Join(targets, ", "))
	if len(tr.DedupKey) == 0 { // if a plain select will do...
		distinct := ""
		if tr.Distinct {
			distinct = "DISTINCT "
		}
		sel := fmt.Sprintf("SELECT %v%v\n%v", distinct, strings.Join(selectList, ", "), body.String())
		return renderNumberedInsert(h, t, targets, insert, sel), nil
	}
	// Keep the first row per dedup key.
	keys := make([]string, len(tr.DedupKey))
	for i, k := range tr.DedupKey {
		keys[i] = renderColumnRef(h, k)
	}
	order := make([]string, 0, len(tr.DedupOrder))
	for _, o := range tr.DedupOrder {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("%v %v NULLS LAST", renderColumnRef(h, o.Column), dir))
	}
	if len(order) == 0 { // if there's no explicit order, any row per key will do...
		order = keys
	}
	rank := h.QuoteIdentifier("dedup_rank")
	sel := fmt.Sprintf("SELECT %v FROM (\nSELECT %v, ROW_NUMBER() OVER (PARTITION BY %v ORDER BY %v) AS %v\n%v\n) ranked\nWHERE %v = 1",
		strings.Join(targets, ", "),
		strings.Join(selectList, ", "),
		strings.Join(keys, ", "),
		strings.Join(order, ", "),
		rank,
		body.String(),
		rank,
	)
	return renderNumberedInsert(h, t, targets, insert, sel), nil
}

// identityColumn returns the identity column of t, if any.
func identityColumn(t *Table) (Column, bool) {
	for _, c := range t.Columns {
		if c.Identity {
			return c, true
		}
	}
	return Column{}, false
}

// renderNumberedInsert completes the INSERT of sel into t.
// An identity column is filled with a dense number ordered by every selected column, starting at 0,
// so replacing the rows of unchanged input reproduces the same surrogate keys.
func renderNumberedInsert(h renderHooks, t *Table, targets []string, insert string, sel string) string {
	id, ok := identityColumn(t)
	if !ok { // if there is no surrogate key to fill...
		return fmt.Sprintf("%v\n%v", insert, sel)
	}
	idCol := h.QuoteIdentifier(id.Name)
	cols := strings.Join(targets, ", ")
	return fmt.Sprintf("INSERT INTO %v (%v, %v)\nSELECT ROW_NUMBER() OVER (ORDER BY %v) - 1 AS %v, %v FROM (\n%v\n) numbered",
		h.QuoteIdentifier(t.Name), idCol, cols,
		cols, idCol, cols,
		sel)
}

// sortKeys returns the names of the sort key columns of t.
func sortKeys(t *Table) []string {
	retval := make([]string, 0)
	for _, c := range t.Columns {
		if c.SortKey {
			retval = append(retval, c.Name)
		}
	}
	return retval
}

// sourceFields returns the distinct source fields of t's columns in a stable order.
func sourceFields(t *Table) []string {
	m := make(map[string]struct{})
	for _, c := range t.Columns {
		m[c.SourceField()] = struct{}{}
	}
	retval := make([]string, 0, len(m))
	for k := range m {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// objectKey returns the key part of an s3://bucket/key URI, or the trimmed input when it is not a URI.
func objectKey(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return strings.Trim(uri, "/")
	}
	return strings.Trim(u.Path, "/")
}
