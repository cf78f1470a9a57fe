package components

import (
	"fmt"
	"strings"
)

const (
	OpCreate = "create"
	OpDrop   = "drop"
)

// SchemaError is a failure to create or drop a table.
type SchemaError struct {
	Table string
	Op    string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unable to %v table %v: %v", e.Op, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// LoadError is a failure to bulk-load a staging table.
type LoadError struct {
	Table  string
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("unable to load table %v: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("unable to load table %v from %v: %v", e.Table, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TransformError is a failure to populate a fact or dimension table.
type TransformError struct {
	Table string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("unable to transform table %v: %v", e.Table, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Names of the quality checks.
const (
	CheckRowCount = "row_count"
	CheckNotNull  = "not_null"
	CheckQuery    = "query"
)

// QualityFailure is one violated check. Column is empty for table-level checks.
type QualityFailure struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

func (f QualityFailure) String() string {
	if f.Column == "" {
		return fmt.Sprintf("%v %v: %v", f.Table, f.Check, f.Detail)
	}
	return fmt.Sprintf("%v.%v %v: %v", f.Table, f.Column, f.Check, f.Detail)
}

// QualityError lists every check that failed.
type QualityError struct {
	Failures []QualityFailure
}

func (e *QualityError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("data quality check failed: %v", strings.Join(msgs, "; "))
}
