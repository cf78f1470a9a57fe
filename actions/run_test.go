package actions

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms"
	"github.com/relloyd/starpipe/rdbms/shared"
	"github.com/relloyd/starpipe/workflow"
)

const testEvents = `{"artist":"Test Artist","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":152.92036,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"Test Song","status":200,"ts":1610000000000,"userAgent":"Mozilla/5.0","userId":"7"}
{"artist":null,"auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":2,"lastName":"Koch","length":null,"level":"paid","location":"Chicago","method":"GET","page":"Home","registration":1541048010796.0,"sessionId":172,"song":null,"status":200,"ts":1610000002000,"userAgent":"Mozilla/5.0","userId":"15"}
`

const testSongs = `{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Test Artist", "song_id": "S1", "title": "Test Song", "duration": 152.92036, "year": 0}
`

const testJsonPaths = `{"jsonpaths": ["$['artist']", "$['auth']", "$['firstName']", "$['gender']", "$['itemInSession']", "$['lastName']", "$['length']", "$['level']", "$['location']", "$['method']", "$['page']", "$['registration']", "$['sessionId']", "$['song']", "$['status']", "$['ts']", "$['userAgent']", "$['userId']"]}`

func writeTestFile(t *testing.T, path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

// newDuckDBOptions writes a tiny Sparkify data set and returns options for a DuckDB warehouse that reads it.
func newDuckDBOptions(t *testing.T, out *bytes.Buffer) WarehouseOptions {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "log_data", "events.json"), testEvents)
	writeTestFile(t, filepath.Join(dir, "song_data", "A", "TRAAAAK128F9318786.json"), testSongs)
	writeTestFile(t, filepath.Join(dir, "log_json_path.json"), testJsonPaths)
	return WarehouseOptions{
		LogLevel:  "error",
		Warehouse: "duckdb:" + filepath.Join(dir, "sparkify.db"),
		Sources: components.Sources{
			LogData:     filepath.Join(dir, "log_data"),
			LogJsonPath: filepath.Join(dir, "log_json_path.json"),
			SongData:    filepath.Join(dir, "song_data"),
		},
		DropFirst: true,
		Output:    out,
	}
}

func TestRunWorkflowDuckDB(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	cfg := &RunConfig{WarehouseOptions: newDuckDBOptions(t, out), Parallelism: 2}
	log := cfg.newLogger()
	g.Expect(runWorkflow(context.Background(), log, cfg)).To(Succeed())
	for _, s := range []string{workflow.NodeLoadSongplaysFact, workflow.NodeRunQualityChecks, "succeeded"} {
		g.Expect(out.String()).To(ContainSubstring(s))
	}

	// Everything is in place for a second run on its own.
	cfg.DropFirst = false
	status, err := RunWorkflowOnce(context.Background(), cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(status.State).To(Equal(workflow.StateSucceeded))
	n, _ := status.Node(workflow.NodeStageEvents)
	g.Expect(n.RowsAffected).To(Equal(int64(2)))
}

func TestRunWorkflowFailureBlocksDownstream(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	cfg := &RunConfig{WarehouseOptions: newDuckDBOptions(t, out)}
	cfg.Sources.SongData = filepath.Join(t.TempDir(), "missing")
	err := runWorkflow(context.Background(), cfg.newLogger(), cfg)
	var re *workflow.RunError
	g.Expect(errors.As(err, &re)).To(BeTrue())
	var le *components.LoadError
	g.Expect(errors.As(err, &le)).To(BeTrue())
	g.Expect(le.Table).To(Equal(catalog.StagingSongs))
	g.Expect(out.String()).To(ContainSubstring("upstream_failed"))
}

func TestRunWorkflowReportsQualityFailures(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	cfg := &RunConfig{WarehouseOptions: newDuckDBOptions(t, out)}
	writeTestFile(t, filepath.Join(cfg.Sources.LogData, "events.json"), strings.Replace(testEvents, `"NextSong"`, `"Home"`, 1))
	err := runWorkflow(context.Background(), cfg.newLogger(), cfg)
	var qe *components.QualityError
	g.Expect(errors.As(err, &qe)).To(BeTrue())
	g.Expect(out.String()).To(ContainSubstring("table contains no rows"))
	g.Expect(out.String()).To(ContainSubstring(catalog.SongPlays))
}

func TestRunWorkflowRequiresWarehouse(t *testing.T) {
	cfg := &RunConfig{WarehouseOptions: WarehouseOptions{LogLevel: "error"}}
	_, err := RunWorkflowOnce(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "warehouse connection name or DSN") {
		t.Fatal("expected missing warehouse error. Got: ", err)
	}
	cfg.Warehouse = "nosuchconnection"
	if _, err = RunWorkflowOnce(context.Background(), cfg); err == nil {
		t.Fatal("expected error resolving an unknown connection")
	}
}

func TestSteps(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	cfg := &StepConfig{WarehouseOptions: newDuckDBOptions(t, out)}
	ctx := context.Background()
	log := cfg.newLogger()
	for _, fn := range []stepFunc{createStep, loadStep, transformStep, checkStep(out)} {
		g.Expect(runStepWithContext(ctx, log, cfg, fn)).To(Succeed())
	}
	g.Expect(out.String()).To(ContainSubstring("Data quality checks passed"))

	cfg.Tables = []string{catalog.Users}
	g.Expect(runStepWithContext(ctx, log, cfg, dropStep)).To(Succeed())
	out.Reset()
	err := runStepWithContext(ctx, log, cfg, checkStep(out))
	var qe *components.QualityError
	g.Expect(errors.As(err, &qe)).To(BeTrue())
	g.Expect(out.String()).To(ContainSubstring(catalog.Users))

	cfg.Tables = []string{"nope"}
	err = runStepWithContext(ctx, log, cfg, transformStep)
	var te *components.TransformError
	g.Expect(errors.As(err, &te)).To(BeTrue())
	g.Expect(te.Table).To(Equal("nope"))
}

func TestTablesOrRole(t *testing.T) {
	cat := catalog.Default()
	got := tablesOrRole(cat, nil, catalog.RoleStaging)
	if len(got) != 2 || got[0] != catalog.StagingEvents || got[1] != catalog.StagingSongs {
		t.Fatal("unexpected staging tables: ", got)
	}
	got = tablesOrRole(cat, []string{catalog.Time}, catalog.RoleStaging)
	if len(got) != 1 || got[0] != catalog.Time {
		t.Fatal("expected explicit tables to win. Got: ", got)
	}
}

func TestRunQuery(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	o := newDuckDBOptions(t, out)
	ctx := context.Background()
	log := o.newLogger()
	g.Expect(runStepWithContext(ctx, log, &StepConfig{WarehouseOptions: o}, createStep)).To(Succeed())
	g.Expect(runStepWithContext(ctx, log, &StepConfig{WarehouseOptions: o}, loadStep)).To(Succeed())

	cfg := &QueryConfig{
		WarehouseOptions: o,
		Query:            `SELECT "song_id", "title", "year" FROM "staging_songs"`,
		PrintHeader:      true,
	}
	g.Expect(runQuery(ctx, log, cfg, out)).To(Succeed())
	g.Expect(out.String()).To(Equal("song_id,title,year\nS1,Test Song,0\n"))

	out.Reset()
	cfg.DryRun = true
	g.Expect(RunQuery(cfg)).To(Succeed())
	g.Expect(out.String()).To(ContainSubstring(`FROM "staging_songs"`))
}

func TestRunSqlRedshift(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	cfg := &SqlConfig{
		WarehouseOptions: WarehouseOptions{
			LogLevel: "error",
			Sources: components.Sources{
				LogData:     "s3://udacity-dend/log_data",
				LogJsonPath: "s3://udacity-dend/log_json_path.json",
				SongData:    "s3://udacity-dend/song_data",
				IamRoleArn:  "arn:aws:iam::123:role/dwh",
			},
			DropFirst: true,
			Output:    out,
		},
		Dialect: "redshift",
	}
	g.Expect(RunSql(cfg)).To(Succeed())
	s := out.String()
	g.Expect(s).To(HavePrefix("-- drop time\n"))
	g.Expect(s).To(ContainSubstring(`COPY "staging_events" FROM 's3://udacity-dend/log_data'`))
	g.Expect(strings.Index(s, "-- transform songplays")).To(BeNumerically("<", strings.Index(s, "-- transform time")))

	cfg.Dialect = ""
	g.Expect(RunSql(cfg)).To(MatchError(ContainSubstring("supply a dialect or a warehouse")))
	cfg.Dialect = "oracle"
	g.Expect(RunSql(cfg)).To(MatchError(ContainSubstring("unsupported dialect")))
}

func TestRunDag(t *testing.T) {
	g := NewGomegaWithT(t)
	out := &bytes.Buffer{}
	g.Expect(RunDag(&DagConfig{Output: out})).To(Succeed())
	g.Expect(out.String()).To(ContainSubstring("id: " + workflow.NodeRunQualityChecks))

	// The printed graph can be read back.
	file := filepath.Join(t.TempDir(), "graph.yaml")
	writeTestFile(t, file, out.String())
	out.Reset()
	g.Expect(RunDag(&DagConfig{GraphFile: file, Format: workflow.FormatJson, Output: out})).To(Succeed())
	g.Expect(out.String()).To(ContainSubstring(`"id": "` + workflow.NodeLoadTimeDim + `"`))

	writeTestFile(t, file, "nodes:\n- id: a\n  kind: load\n  tables: [nope]\n")
	g.Expect(RunDag(&DagConfig{GraphFile: file, Output: out})).NotTo(Succeed())
}

func TestOpenConnectionMock(t *testing.T) {
	log := logger.NewLogger("actions test", "error", true)
	db, err := openConnection(context.Background(), log, &WarehouseOptions{LogLevel: "error", Warehouse: "mock:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok := db.(*shared.MockConnection); !ok {
		t.Fatal("expected *shared.MockConnection. Got: ", db)
	}
	n, err := rdbms.QueryInt64(context.Background(), db, "SELECT 1")
	if err != nil || n != 1 {
		t.Fatal("unexpected count. Expected: 1. Got: ", n, err)
	}
}
