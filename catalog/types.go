package catalog

import (
	"encoding/json"
	"fmt"
)

// DataType is a portable column type; each Dialect maps it to a native name.
type DataType string

const (
	TypeVarchar   DataType = "VARCHAR"
	TypeInteger   DataType = "INTEGER"
	TypeFloat     DataType = "FLOAT"
	TypeTimestamp DataType = "TIMESTAMP"
)

// Role describes where a table sits in the star schema.
type Role uint32

const (
	RoleStaging Role = iota + 1
	RoleFact
	RoleDimension
)

func (r Role) String() string {
	switch r {
	case RoleStaging:
		return "staging"
	case RoleFact:
		return "fact"
	case RoleDimension:
		return "dimension"
	default:
		return ""
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	s := r.String()
	if s == "" {
		return nil, fmt.Errorf("unhandled Role value %v in custom MarshalJSON() conversion", uint32(r))
	}
	return json.Marshal(s)
}

// Column describes one column of a table.
type Column struct {
	Name        string   `json:"name"`
	Type        DataType `json:"type"`
	NotNull     bool     `json:"notNull,omitempty"`
	PrimaryKey  bool     `json:"primaryKey,omitempty"`
	SortKey     bool     `json:"sortKey,omitempty"`
	DistKey     bool     `json:"distKey,omitempty"`
	Identity    bool     `json:"identity,omitempty"`    // auto-increment surrogate starting at 0
	EpochMillis bool     `json:"epochMillis,omitempty"` // source value is epoch milliseconds, parsed on load
	Source      string   `json:"source,omitempty"`      // source JSON field when it differs from Name
}

// SourceField returns the JSON field that feeds a staging column.
func (c Column) SourceField() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// SourceKind names the object storage input used to bulk-load a staging table.
type SourceKind string

const (
	SourceLogData  SourceKind = "log-data"
	SourceSongData SourceKind = "song-data"
)

// LoadSpec describes how a staging table is bulk-loaded.
type LoadSpec struct {
	Source       SourceKind `json:"source"`
	UseJsonPaths bool       `json:"useJsonPaths,omitempty"` // map fields using the log-jsonpath document, else 'auto'
}

// Table is a table definition. Staging tables carry a LoadSpec; star tables carry a Transform.
type Table struct {
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	Columns   []Column   `json:"columns"`
	Load      *LoadSpec  `json:"load,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns all column names in definition order.
func (t *Table) ColumnNames() []string {
	retval := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		retval[i] = c.Name
	}
	return retval
}

// NotNullColumns returns the names of the columns declared NOT NULL.
func (t *Table) NotNullColumns() []string {
	retval := make([]string, 0)
	for _, c := range t.Columns {
		if c.NotNull || c.PrimaryKey || c.Identity {
			retval = append(retval, c.Name)
		}
	}
	return retval
}

// HasEpochMillis is true if any column is parsed from epoch milliseconds on load.
func (t *Table) HasEpochMillis() bool {
	for _, c := range t.Columns {
		if c.EpochMillis {
			return true
		}
	}
	return false
}

// IsStar is true for fact and dimension tables.
func (t *Table) IsStar() bool {
	return t.Role == RoleFact || t.Role == RoleDimension
}

// ColumnRef refers to a column of the table bound to Alias in a Transform.
type ColumnRef struct {
	Alias  string `json:"alias"`
	Column string `json:"column"`
}

func (c ColumnRef) String() string {
	return c.Alias + "." + c.Column
}

// DatePart is a calendar component extracted from a timestamp.
type DatePart string

const (
	PartHour      DatePart = "hour"
	PartDay       DatePart = "day"
	PartWeek      DatePart = "week"
	PartMonth     DatePart = "month"
	PartYear      DatePart = "year"
	PartDayOfWeek DatePart = "dayofweek"
)

// Projection populates Target from Column, optionally extracting a DatePart.
type Projection struct {
	Target   string    `json:"target"`
	Column   ColumnRef `json:"column"`
	DatePart DatePart  `json:"datePart,omitempty"`
}

// TableRef binds a table to an alias.
type TableRef struct {
	Table string `json:"table"`
	Alias string `json:"alias"`
}

// JoinPair is one equality condition of an inner join.
type JoinPair struct {
	Left  ColumnRef `json:"left"`
	Right ColumnRef `json:"right"`
}

// Join is an inner equi-join.
type Join struct {
	TableRef
	On []JoinPair `json:"on"`
}

// Op is a predicate operator.
type Op string

const (
	OpEquals  Op = "="
	OpNotNull Op = "IS NOT NULL"
)

// Predicate filters source rows.
type Predicate struct {
	Column ColumnRef `json:"column"`
	Op     Op        `json:"op"`
	Value  string    `json:"value,omitempty"` // string literal used with OpEquals
}

// OrderBy orders rows inside a dedup partition.
type OrderBy struct {
	Column ColumnRef `json:"column"`
	Desc   bool      `json:"desc,omitempty"`
}

// Transform describes the INSERT...SELECT that populates a star table.
// With DedupKey set, one row per key survives: the first by DedupOrder.
// Otherwise Distinct removes duplicate tuples.
type Transform struct {
	From        TableRef     `json:"from"`
	Join        *Join        `json:"join,omitempty"`
	Where       []Predicate  `json:"where,omitempty"`
	Projections []Projection `json:"projections"`
	Distinct    bool         `json:"distinct,omitempty"`
	DedupKey    []ColumnRef  `json:"dedupKey,omitempty"`
	DedupOrder  []OrderBy    `json:"dedupOrder,omitempty"`
}

// Targets returns the target column names in projection order.
func (t *Transform) Targets() []string {
	retval := make([]string, len(t.Projections))
	for i, p := range t.Projections {
		retval[i] = p.Target
	}
	return retval
}

// Sources returns the aliased tables read by the transform.
func (t *Transform) Sources() []TableRef {
	retval := []TableRef{t.From}
	if t.Join != nil {
		retval = append(retval, t.Join.TableRef)
	}
	return retval
}

// ColumnRefs returns every column the transform reads.
func (t *Transform) ColumnRefs() []ColumnRef {
	retval := make([]ColumnRef, 0)
	for _, p := range t.Projections {
		retval = append(retval, p.Column)
	}
	if t.Join != nil {
		for _, on := range t.Join.On {
			retval = append(retval, on.Left, on.Right)
		}
	}
	for _, w := range t.Where {
		retval = append(retval, w.Column)
	}
	retval = append(retval, t.DedupKey...)
	for _, o := range t.DedupOrder {
		retval = append(retval, o.Column)
	}
	return retval
}
