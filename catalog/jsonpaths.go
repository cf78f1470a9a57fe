package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

type jsonPathsDocument struct {
	JsonPaths []string `json:"jsonpaths"`
}

var (
	reJsonPathBracket = regexp.MustCompile(`^\$\[\s*['"](.+)['"]\s*\]$`)
	reJsonPathDot     = regexp.MustCompile(`^\$\.([A-Za-z_][A-Za-z0-9_]*)$`)
)

// ParseJsonPaths reads a JSONPaths document of the form {"jsonpaths": ["$['field']", "$.other", ...]}
// and returns the top-level field name of each path in order.
func ParseJsonPaths(data []byte) ([]string, error) {
	doc := jsonPathsDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "error parsing jsonpaths document")
	}
	if len(doc.JsonPaths) == 0 {
		return nil, errors.New("jsonpaths document contains no paths")
	}
	retval := make([]string, len(doc.JsonPaths))
	for i, p := range doc.JsonPaths {
		if m := reJsonPathBracket.FindStringSubmatch(p); m != nil {
			retval[i] = m[1]
		} else if m := reJsonPathDot.FindStringSubmatch(p); m != nil {
			retval[i] = m[1]
		} else {
			return nil, fmt.Errorf("unsupported jsonpath expression %q at position %v", p, i)
		}
	}
	return retval, nil
}

// WithJsonPaths returns a copy of t whose columns are fed positionally by the supplied fields.
func WithJsonPaths(t *Table, fields []string) (*Table, error) {
	if len(fields) != len(t.Columns) {
		return nil, fmt.Errorf("jsonpaths document has %v paths but table %q has %v columns", len(fields), t.Name, len(t.Columns))
	}
	retval := *t
	retval.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		c.Source = fields[i]
		retval.Columns[i] = c
	}
	return &retval, nil
}
