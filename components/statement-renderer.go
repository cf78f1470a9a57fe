package components

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/logger"
)

// ObjectStore reads the object storage inputs of staging loads.
// It is satisfied by *s3.Client.
type ObjectStore interface {
	Exists(ctx context.Context, uri string) error
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Sources are the object storage inputs and opaque credentials used by bulk loads.
type Sources struct {
	LogData     string `json:"logData"`
	LogJsonPath string `json:"logJsonPath"`
	SongData    string `json:"songData"`
	IamRoleArn  string `json:"iamRoleArn"`
	Region      string `json:"region"`
	Stage       string `json:"stage"`
}

// URI returns the location of the given source kind.
func (s Sources) URI(k catalog.SourceKind) string {
	switch k {
	case catalog.SourceLogData:
		return s.LogData
	case catalog.SourceSongData:
		return s.SongData
	default:
		return ""
	}
}

// Statement is one rendered SQL statement and the node step it belongs to.
type Statement struct {
	Step  string `json:"step"`
	Table string `json:"table"`
	SQL   string `json:"sql"`
}

// RendererConfig configures a StatementRenderer.
type RendererConfig struct {
	Log     logger.Logger    `errorTxt:"logger" mandatory:"yes"`
	Dialect catalog.Dialect  `errorTxt:"SQL dialect" mandatory:"yes"`
	Catalog *catalog.Catalog `errorTxt:"table catalog" mandatory:"yes"`
	Sources Sources
	Objects ObjectStore // optional; verifies sources exist and fetches the JSONPaths document
}

// StatementRenderer turns catalog definitions into the statements that each workflow step executes.
type StatementRenderer struct {
	log     logger.Logger
	dialect catalog.Dialect
	cat     *catalog.Catalog
	sources Sources
	objects ObjectStore
}

func newStatementRenderer(cfg RendererConfig) *StatementRenderer {
	return &StatementRenderer{
		log:     cfg.Log,
		dialect: cfg.Dialect,
		cat:     cfg.Catalog,
		sources: cfg.Sources,
		objects: cfg.Objects,
	}
}

// Dialect returns the dialect used to render statements.
func (r *StatementRenderer) Dialect() catalog.Dialect {
	return r.dialect
}

// tables resolves names, or every table in creation order when names is empty.
func (r *StatementRenderer) tables(names []string) ([]*catalog.Table, error) {
	if len(names) == 0 {
		return r.cat.Tables(), nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.cat.Table(n); !ok {
			return nil, fmt.Errorf("table %q is not in the catalog", n)
		}
		wanted[n] = true
	}
	retval := make([]*catalog.Table, 0, len(names))
	for _, t := range r.cat.Tables() { // for each table in creation order...
		if wanted[t.Name] {
			retval = append(retval, t)
		}
	}
	return retval, nil
}

func (r *StatementRenderer) tableWithRole(name string, roles ...catalog.Role) (*catalog.Table, error) {
	t, ok := r.cat.Table(name)
	if !ok {
		return nil, fmt.Errorf("table %q is not in the catalog", name)
	}
	for _, role := range roles {
		if t.Role == role {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table %q is a %v table", name, t.Role)
}

// loadSource resolves the bulk-load input of staging table t.
// When the dialect needs it, the JSONPaths document is fetched and applied to a copy of t.
func (r *StatementRenderer) loadSource(ctx context.Context, t *catalog.Table, verify bool) (*catalog.Table, catalog.LoadSource, error) {
	src := catalog.LoadSource{
		URI:        r.sources.URI(t.Load.Source),
		IamRoleArn: r.sources.IamRoleArn,
		Region:     r.sources.Region,
		Stage:      r.sources.Stage,
	}
	if src.URI == "" {
		return nil, src, fmt.Errorf("missing %v URI", t.Load.Source)
	}
	if verify && r.objects != nil { // if we can check the source before loading...
		if err := r.objects.Exists(ctx, src.URI); err != nil {
			return nil, src, errors.Wrap(err, "source not found")
		}
	}
	if !t.Load.UseJsonPaths || r.sources.LogJsonPath == "" {
		return t, src, nil
	}
	if !r.dialect.ResolvesJsonPaths() { // if the engine reads the JSONPaths document itself...
		src.JsonPaths = r.sources.LogJsonPath
		return t, src, nil
	}
	if r.objects == nil {
		r.log.Warn("Unable to read JSONPaths document ", r.sources.LogJsonPath, " so fields of ", t.Name, " are matched by name")
		return t, src, nil
	}
	b, err := r.objects.Get(ctx, r.sources.LogJsonPath)
	if err != nil {
		return nil, src, errors.Wrapf(err, "unable to read JSONPaths document %v", r.sources.LogJsonPath)
	}
	fields, err := catalog.ParseJsonPaths(b)
	if err != nil {
		return nil, src, err
	}
	mapped, err := catalog.WithJsonPaths(t, fields)
	if err != nil {
		return nil, src, err
	}
	return mapped, src, nil
}

// loadStatements returns the statement that empties staging table t and those that bulk-load it.
func (r *StatementRenderer) loadStatements(ctx context.Context, t *catalog.Table, verify bool) (clear string, load []string, src catalog.LoadSource, err error) {
	mapped, src, err := r.loadSource(ctx, t, verify)
	if err != nil {
		return "", nil, src, err
	}
	load, err = r.dialect.BulkLoad(mapped, src)
	if err != nil {
		return "", nil, src, err
	}
	return r.dialect.DeleteAll(t), load, src, nil
}

// transformStatements returns the statement that empties star table t and the INSERT...SELECT that fills it.
func (r *StatementRenderer) transformStatements(t *catalog.Table) (clear string, insert string, err error) {
	insert, err = r.dialect.InsertSelect(t)
	if err != nil {
		return "", "", err
	}
	return r.dialect.DeleteAll(t), insert, nil
}

// Plan renders every statement of a full workflow run in execution order without touching the warehouse.
// Tables are dropped first when drop is set.
func (r *StatementRenderer) Plan(ctx context.Context, drop bool) ([]Statement, error) {
	retval := make([]Statement, 0)
	add := func(step string, t *catalog.Table, stmts ...string) {
		for _, s := range stmts {
			retval = append(retval, Statement{Step: step, Table: t.Name, SQL: s})
		}
	}
	if drop {
		for _, t := range r.cat.DropOrder() {
			add(OpDrop, t, r.dialect.DropTable(t)...)
		}
	}
	for _, t := range r.cat.Tables() {
		add(OpCreate, t, r.dialect.CreateTable(t)...)
	}
	for _, t := range r.cat.TablesWithRole(catalog.RoleStaging) {
		clear, load, _, err := r.loadStatements(ctx, t, false)
		if err != nil {
			return nil, &LoadError{Table: t.Name, Err: err}
		}
		add("load", t, clear)
		add("load", t, load...)
	}
	for _, t := range r.cat.StarTables() {
		clear, insert, err := r.transformStatements(t)
		if err != nil {
			return nil, &TransformError{Table: t.Name, Err: err}
		}
		add("transform", t, clear, insert)
	}
	for _, t := range r.cat.StarTables() {
		add("check", t, r.dialect.CountRows(t))
		for _, col := range t.NotNullColumns() {
			add("check", t, r.dialect.CountNulls(t, col))
		}
	}
	return retval, nil
}

// NewStatementRenderer validates cfg and returns a renderer for dry runs.
func NewStatementRenderer(cfg RendererConfig) (*StatementRenderer, error) {
	if err := validateRendererConfig(cfg); err != nil {
		return nil, err
	}
	return newStatementRenderer(cfg), nil
}
