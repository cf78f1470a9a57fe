package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is an ordered set of table definitions.
type Catalog struct {
	tables []*Table
	byName map[string]*Table
}

// ValidationError lists every problem found in a catalog.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid catalog: %v", strings.Join(e.Problems, "; "))
}

// New builds a catalog from tables in creation order and validates it.
func New(tables ...*Table) (*Catalog, error) {
	c := &Catalog{tables: tables, byName: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if _, dup := c.byName[t.Name]; !dup {
			c.byName[t.Name] = t
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Table returns the named table.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// MustTable returns the named table or panics.
func (c *Catalog) MustTable(name string) *Table {
	t, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("table %q is not in the catalog", name))
	}
	return t
}

// Tables returns all tables in creation order.
func (c *Catalog) Tables() []*Table {
	retval := make([]*Table, len(c.tables))
	copy(retval, c.tables)
	return retval
}

// TablesWithRole returns the tables with role r in creation order.
func (c *Catalog) TablesWithRole(r Role) []*Table {
	retval := make([]*Table, 0)
	for _, t := range c.tables {
		if t.Role == r {
			retval = append(retval, t)
		}
	}
	return retval
}

// StarTables returns the fact table(s) followed by the dimensions.
func (c *Catalog) StarTables() []*Table {
	return append(c.TablesWithRole(RoleFact), c.TablesWithRole(RoleDimension)...)
}

// DropOrder returns tables in reverse creation order so dependants go first.
func (c *Catalog) DropOrder() []*Table {
	retval := c.Tables()
	for i, j := 0, len(retval)-1; i < j; i, j = i+1, j-1 {
		retval[i], retval[j] = retval[j], retval[i]
	}
	return retval
}

// Dependencies returns the sorted names of the tables read by the transform of table name.
func (c *Catalog) Dependencies(name string) []string {
	t, ok := c.byName[name]
	if !ok || t.Transform == nil {
		return nil
	}
	retval := make([]string, 0)
	for _, s := range t.Transform.Sources() {
		retval = append(retval, s.Table)
	}
	sort.Strings(retval)
	return retval
}

// Validate checks that every table is well formed and that every transform only refers to
// tables and columns that exist.
func (c *Catalog) Validate() error {
	p := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range c.tables {
		if t == nil {
			p = append(p, "nil table")
			continue
		}
		if t.Name == "" {
			p = append(p, "table with no name")
		}
		if seen[t.Name] {
			p = append(p, fmt.Sprintf("duplicate table %q", t.Name))
		}
		seen[t.Name] = true
		p = append(p, c.validateTable(t)...)
	}
	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

func (c *Catalog) validateTable(t *Table) []string {
	p := make([]string, 0)
	if len(t.Columns) == 0 {
		p = append(p, fmt.Sprintf("table %q has no columns", t.Name))
	}
	cols := make(map[string]bool)
	for _, col := range t.Columns {
		if cols[col.Name] {
			p = append(p, fmt.Sprintf("table %q has duplicate column %q", t.Name, col.Name))
		}
		cols[col.Name] = true
		if col.Identity && col.Type != TypeInteger {
			p = append(p, fmt.Sprintf("identity column %v.%v must be %v", t.Name, col.Name, TypeInteger))
		}
	}
	switch t.Role {
	case RoleStaging:
		if t.Load == nil {
			p = append(p, fmt.Sprintf("staging table %q has no load spec", t.Name))
		} else if t.Load.Source != SourceLogData && t.Load.Source != SourceSongData {
			p = append(p, fmt.Sprintf("staging table %q has unknown source %q", t.Name, t.Load.Source))
		}
		if t.Transform != nil {
			p = append(p, fmt.Sprintf("staging table %q must not have a transform", t.Name))
		}
	case RoleFact, RoleDimension:
		if t.Transform == nil {
			p = append(p, fmt.Sprintf("%v table %q has no transform", t.Role, t.Name))
		} else {
			p = append(p, c.validateTransform(t)...)
		}
		if t.Load != nil {
			p = append(p, fmt.Sprintf("%v table %q must not have a load spec", t.Role, t.Name))
		}
	default:
		p = append(p, fmt.Sprintf("table %q has no role", t.Name))
	}
	return p
}

func (c *Catalog) validateTransform(t *Table) []string {
	p := make([]string, 0)
	tr := t.Transform
	aliases := make(map[string]*Table)
	for _, s := range tr.Sources() {
		src, ok := c.byName[s.Table]
		if !ok {
			p = append(p, fmt.Sprintf("transform for %q reads unknown table %q", t.Name, s.Table))
			continue
		}
		if s.Table == t.Name {
			p = append(p, fmt.Sprintf("transform for %q reads its own target", t.Name))
		}
		if s.Alias == "" {
			p = append(p, fmt.Sprintf("transform for %q has no alias for table %q", t.Name, s.Table))
		}
		if _, dup := aliases[s.Alias]; dup {
			p = append(p, fmt.Sprintf("transform for %q reuses alias %q", t.Name, s.Alias))
		}
		aliases[s.Alias] = src
	}
	colType := func(r ColumnRef) (DataType, bool) {
		src, ok := aliases[r.Alias]
		if !ok {
			return "", false
		}
		col, ok := src.Column(r.Column)
		return col.Type, ok
	}
	for _, r := range tr.ColumnRefs() {
		if _, ok := colType(r); !ok {
			p = append(p, fmt.Sprintf("transform for %q refers to unknown column %v", t.Name, r))
		}
	}
	if tr.Join != nil && len(tr.Join.On) == 0 {
		p = append(p, fmt.Sprintf("transform for %q joins %q without conditions", t.Name, tr.Join.Table))
	}
	targets := make(map[string]bool)
	for _, pr := range tr.Projections {
		col, ok := t.Column(pr.Target)
		switch {
		case !ok:
			p = append(p, fmt.Sprintf("transform for %q populates unknown column %q", t.Name, pr.Target))
		case col.Identity:
			p = append(p, fmt.Sprintf("transform for %q must not populate identity column %q", t.Name, pr.Target))
		case targets[pr.Target]:
			p = append(p, fmt.Sprintf("transform for %q populates column %q twice", t.Name, pr.Target))
		}
		targets[pr.Target] = true
		if pr.DatePart != "" {
			if typ, ok := colType(pr.Column); ok && typ != TypeTimestamp {
				p = append(p, fmt.Sprintf("transform for %q extracts %v from non-timestamp column %v", t.Name, pr.DatePart, pr.Column))
			}
		}
	}
	for _, col := range t.Columns {
		if (col.NotNull || col.PrimaryKey) && !col.Identity && !targets[col.Name] {
			p = append(p, fmt.Sprintf("transform for %q does not populate NOT NULL column %q", t.Name, col.Name))
		}
	}
	for _, w := range tr.Where {
		if w.Op != OpEquals && w.Op != OpNotNull {
			p = append(p, fmt.Sprintf("transform for %q uses unsupported operator %q", t.Name, w.Op))
		}
	}
	if tr.Distinct && len(tr.DedupKey) > 0 {
		p = append(p, fmt.Sprintf("transform for %q sets both distinct and a dedup key", t.Name))
	}
	if len(tr.DedupOrder) > 0 && len(tr.DedupKey) == 0 {
		p = append(p, fmt.Sprintf("transform for %q orders rows without a dedup key", t.Name))
	}
	return p
}
