package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/helper"
)

const (
	FormatYaml = "yaml"
	FormatJson = "json"
)

// GraphError lists every problem found while validating a Graph.
type GraphError struct {
	Problems []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("invalid workflow graph: %v", strings.Join(e.Problems, "; "))
}

// DefaultGraph derives the Sparkify workflow from cat:
// begin -> create_tables -> stage nodes -> fact nodes -> dimension nodes -> run_quality_checks -> end.
func DefaultGraph(cat *catalog.Catalog) *Graph {
	g := &Graph{Description: DefaultGraphDescription}
	g.Nodes = append(g.Nodes,
		Node{ID: NodeBegin, Kind: KindMarker},
		Node{ID: NodeCreateTables, Kind: KindCreate, Upstream: []string{NodeBegin}},
	)
	upstream := []string{NodeCreateTables}
	for _, role := range []catalog.Role{catalog.RoleStaging, catalog.RoleFact, catalog.RoleDimension} {
		ids := make([]string, 0)
		for _, t := range cat.TablesWithRole(role) { // for each table in this layer...
			n := Node{ID: NodeIDForTable(t), Kind: KindTransform, Tables: []string{t.Name}, Upstream: append([]string(nil), upstream...)}
			if role == catalog.RoleStaging {
				n.Kind = KindLoad
			}
			g.Nodes = append(g.Nodes, n)
			ids = append(ids, n.ID)
		}
		if len(ids) > 0 { // if this layer has nodes...
			upstream = ids
		}
	}
	checked := make([]string, 0)
	for _, t := range cat.StarTables() {
		checked = append(checked, t.Name)
	}
	g.Nodes = append(g.Nodes,
		Node{ID: NodeRunQualityChecks, Kind: KindCheck, Tables: checked, Upstream: upstream},
		Node{ID: NodeEnd, Kind: KindMarker, Upstream: []string{NodeRunQualityChecks}},
	)
	return g
}

// NodeIDForTable names the node that populates t, e.g. stage_events, load_songplays_fact, load_users_dim.
func NodeIDForTable(t *catalog.Table) string {
	switch t.Role {
	case catalog.RoleStaging:
		return "stage_" + strings.TrimPrefix(t.Name, "staging_")
	case catalog.RoleFact:
		return "load_" + t.Name + "_fact"
	default:
		return "load_" + t.Name + "_dim"
	}
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Downstream returns the IDs of the direct dependants of each node, in graph order.
func (g *Graph) Downstream() map[string][]string {
	retval := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, u := range n.Upstream {
			retval[u] = append(retval[u], n.ID)
		}
	}
	return retval
}

// TopologicalOrder sorts the nodes with Kahn's algorithm, keeping graph order among ready nodes.
// An error naming the nodes left over is returned if the graph has a cycle.
func (g *Graph) TopologicalOrder() ([]Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = len(n.Upstream)
	}
	down := g.Downstream()
	retval := make([]Node, 0, len(g.Nodes))
	done := make(map[string]bool, len(g.Nodes))
	for len(retval) < len(g.Nodes) {
		progress := false
		for _, n := range g.Nodes { // for each node in graph order...
			if done[n.ID] || inDegree[n.ID] > 0 {
				continue
			}
			done[n.ID] = true
			progress = true
			retval = append(retval, n)
			for _, d := range down[n.ID] {
				inDegree[d]--
			}
		}
		if !progress { // if the remaining nodes all wait on each other...
			left := make([]string, 0)
			for _, n := range g.Nodes {
				if !done[n.ID] {
					left = append(left, n.ID)
				}
			}
			return nil, fmt.Errorf("cycle detected between nodes %v", strings.Join(left, ", "))
		}
	}
	return retval, nil
}

// Ancestors returns the set of nodes that id transitively depends on.
func (g *Graph) Ancestors(id string) map[string]bool {
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	retval := make(map[string]bool)
	stack := append([]string{}, byID[id].Upstream...)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if retval[u] {
			continue
		}
		retval[u] = true
		stack = append(stack, byID[u].Upstream...)
	}
	return retval
}

// Validate checks node IDs, kinds, upstream references and table references against cat,
// then checks that the graph is acyclic.
func (g *Graph) Validate(cat *catalog.Catalog) error {
	p := make([]string, 0)
	if len(g.Nodes) == 0 {
		return &GraphError{Problems: []string{"graph has no nodes"}}
	}
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if err := helper.ValidateStructIsPopulated(n); err != nil {
			p = append(p, fmt.Sprintf("node %q: %v", n.ID, err))
		}
		if n.ID != "" && ids[n.ID] {
			p = append(p, fmt.Sprintf("duplicate node %q", n.ID))
		}
		ids[n.ID] = true
	}
	for _, n := range g.Nodes {
		seen := make(map[string]bool)
		for _, u := range n.Upstream { // for each upstream reference...
			switch {
			case u == n.ID:
				p = append(p, fmt.Sprintf("node %q depends on itself", n.ID))
			case !ids[u]:
				p = append(p, fmt.Sprintf("node %q has unknown upstream node %q", n.ID, u))
			case seen[u]:
				p = append(p, fmt.Sprintf("node %q lists upstream node %q twice", n.ID, u))
			}
			seen[u] = true
		}
		p = append(p, validateNodeTables(n, cat)...)
	}
	if len(p) > 0 {
		return &GraphError{Problems: p}
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return &GraphError{Problems: []string{err.Error()}}
	}
	p = append(p, g.validateProducers(cat)...)
	if len(p) > 0 {
		return &GraphError{Problems: p}
	}
	return nil
}

func validateNodeTables(n Node, cat *catalog.Catalog) []string {
	p := make([]string, 0)
	if n.Kind != "" && !n.Kind.valid() {
		return append(p, fmt.Sprintf("node %q has unknown kind %q", n.ID, n.Kind))
	}
	for _, name := range n.Tables {
		if _, ok := cat.Table(name); !ok {
			p = append(p, fmt.Sprintf("node %q refers to unknown table %q", n.ID, name))
		}
	}
	if len(p) > 0 {
		return p
	}
	role := func(name string) catalog.Role {
		return cat.MustTable(name).Role
	}
	switch n.Kind {
	case KindMarker:
		if len(n.Tables) > 0 {
			p = append(p, fmt.Sprintf("marker node %q must not refer to tables", n.ID))
		}
	case KindLoad:
		if len(n.Tables) != 1 {
			p = append(p, fmt.Sprintf("load node %q must refer to exactly one table", n.ID))
		} else if role(n.Tables[0]) != catalog.RoleStaging {
			p = append(p, fmt.Sprintf("load node %q refers to table %q which is not a staging table", n.ID, n.Tables[0]))
		}
	case KindTransform:
		if len(n.Tables) != 1 {
			p = append(p, fmt.Sprintf("transform node %q must refer to exactly one table", n.ID))
		} else if r := role(n.Tables[0]); r != catalog.RoleFact && r != catalog.RoleDimension {
			p = append(p, fmt.Sprintf("transform node %q refers to table %q which is not a fact or dimension table", n.ID, n.Tables[0]))
		}
	case KindCheck:
		if len(n.Tables) == 0 {
			p = append(p, fmt.Sprintf("check node %q must refer to at least one table", n.ID))
		}
		for _, name := range n.Tables {
			if r := role(name); r != catalog.RoleFact && r != catalog.RoleDimension {
				p = append(p, fmt.Sprintf("check node %q refers to table %q which is not a fact or dimension table", n.ID, name))
			}
		}
	}
	return p
}

// validateProducers ensures a transform runs after the nodes that populate the tables it reads.
func (g *Graph) validateProducers(cat *catalog.Catalog) []string {
	p := make([]string, 0)
	producer := make(map[string]string)
	for _, n := range g.Nodes {
		if n.Kind == KindLoad || n.Kind == KindTransform {
			producer[n.Table()] = n.ID
		}
	}
	for _, n := range g.Nodes {
		if n.Kind != KindTransform {
			continue
		}
		ancestors := g.Ancestors(n.ID)
		for _, dep := range cat.Dependencies(n.Table()) {
			if id, ok := producer[dep]; ok && !ancestors[id] { // if the table is populated by a node we don't wait for...
				p = append(p, fmt.Sprintf("transform node %q reads table %q but does not depend on node %q", n.ID, dep, id))
			}
		}
	}
	return p
}

// Marshal renders the graph as YAML or JSON.
func (g *Graph) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatYaml:
		return yaml.Marshal(g)
	case FormatJson:
		return json.MarshalIndent(g, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported graph format %q: use %v or %v", format, FormatYaml, FormatJson)
	}
}

// ParseGraph reads a graph from YAML or JSON.
func ParseGraph(b []byte) (*Graph, error) {
	g := &Graph{}
	if err := yaml.Unmarshal(b, g); err != nil {
		return nil, errors.Wrap(err, "unable to parse workflow graph")
	}
	return g, nil
}

// LoadGraphFile reads and validates a graph file against cat.
func LoadGraphFile(fileName string, cat *catalog.Catalog) (*Graph, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read workflow graph file %v", fileName)
	}
	g, err := ParseGraph(b)
	if err != nil {
		return nil, err
	}
	if err = g.Validate(cat); err != nil {
		return nil, err
	}
	return g, nil
}
