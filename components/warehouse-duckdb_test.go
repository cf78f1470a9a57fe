package components

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/relloyd/starpipe/aws/s3"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms"
	"github.com/relloyd/starpipe/rdbms/shared"
)

const testJsonPaths = `{
  "jsonpaths": [
    "$['artist']", "$['auth']", "$['firstName']", "$['gender']", "$['itemInSession']", "$['lastName']",
    "$['length']", "$['level']", "$['location']", "$['method']", "$['page']", "$['registration']",
    "$['sessionId']", "$['song']", "$['status']", "$['ts']", "$['userAgent']", "$['userId']"
  ]
}`

const testSongJson = `{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Test Artist", "song_id": "S1", "title": "Test Song", "duration": 152.92036, "year": 0}
`

func testEventJson(page string) string {
	return strings.Join([]string{
		`{"artist":"Test Artist","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":152.92036,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"` + page + `","registration":1540344794796.0,"sessionId":139,"song":"Test Song","status":200,"ts":1610000000000,"userAgent":"Mozilla/5.0","userId":"7"}`,
		`{"artist":null,"auth":"Logged Out","firstName":null,"gender":null,"itemInSession":1,"lastName":null,"length":null,"level":"paid","location":null,"method":"GET","page":"NextSong","registration":null,"sessionId":52,"song":"Another Song","status":200,"ts":1610000001000,"userAgent":null,"userId":null}`,
		`{"artist":null,"auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":2,"lastName":"Koch","length":null,"level":"paid","location":"Chicago","method":"GET","page":"Home","registration":1541048010796.0,"sessionId":172,"song":null,"status":200,"ts":1610000002000,"userAgent":"Mozilla/5.0","userId":"15"}`,
	}, "\n") + "\n"
}

func writeTestFile(t *testing.T, path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func countRows(t *testing.T, db shared.Connector, sqltext string) int64 {
	n, err := rdbms.QueryInt64(context.Background(), db, sqltext)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func loadAndTransform(t *testing.T, w *WarehouseExecutor) {
	ctx := context.Background()
	for _, table := range []string{catalog.StagingEvents, catalog.StagingSongs} {
		if _, err := w.LoadStaging(ctx, table); err != nil {
			t.Fatal(err)
		}
	}
	for _, table := range []string{catalog.SongPlays, catalog.Users, catalog.Songs, catalog.Artists, catalog.Time} {
		if _, err := w.TransformTable(ctx, table); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDuckDBWarehouseEndToEnd(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	log := logger.NewLogger("duckdb warehouse test", "info", true)
	dir := t.TempDir()
	eventsFile := filepath.Join(dir, "log_data", "2021", "01", "events.json")
	writeTestFile(t, eventsFile, testEventJson("NextSong"))
	writeTestFile(t, filepath.Join(dir, "song_data", "A", "A", "TRAAAAK128F9318786.json"), testSongJson)
	writeTestFile(t, filepath.Join(dir, "log_json_path.json"), testJsonPaths)

	db, err := rdbms.OpenDbConnection(ctx, log, &shared.DsnConnectionDetails{Dsn: "duckdb:" + filepath.Join(dir, "sparkify.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	w, err := NewWarehouseExecutor(&WarehouseConfig{
		RendererConfig: RendererConfig{
			Log:     log,
			Dialect: catalog.DuckDB{},
			Catalog: catalog.Default(),
			Sources: Sources{
				LogData:     filepath.Join(dir, "log_data"),
				LogJsonPath: filepath.Join(dir, "log_json_path.json"),
				SongData:    filepath.Join(dir, "song_data"),
			},
			Objects: s3.NewClient("us-west-2"),
		},
		Db:        db,
		DropFirst: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	g.Expect(w.CreateTables(ctx, nil)).To(Succeed())
	loadAndTransform(t, w)

	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "staging_events"`)).To(Equal(int64(3)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays"`)).To(Equal(int64(1)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays" WHERE "user_id" = 7 AND "song_id" = 'S1' AND "artist_id" = 'A1'`)).To(Equal(int64(1)))
	// The event with a null userId and the user who never played a song are excluded.
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "users"`)).To(Equal(int64(1)))
	g.Expect(countRows(t, db, `SELECT "user_id" FROM "users"`)).To(Equal(int64(7)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songs"`)).To(Equal(int64(1)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "artists"`)).To(Equal(int64(1)))
	g.Expect(countRows(t, db, `SELECT "hour" FROM "time"`)).To(Equal(int64(6)))
	g.Expect(w.CheckQuality(ctx, nil)).To(Succeed())

	g.Expect(countRows(t, db, `SELECT "songplay_id" FROM "songplays"`)).To(Equal(int64(0)))

	// Rerunning replaces rather than appends, keeping the surrogate keys.
	loadAndTransform(t, w)
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "staging_events"`)).To(Equal(int64(3)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays"`)).To(Equal(int64(1)))
	g.Expect(countRows(t, db, `SELECT "songplay_id" FROM "songplays"`)).To(Equal(int64(0)))
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "time"`)).To(Equal(int64(1)))

	// Without a NextSong event there are no plays and the checks fail.
	writeTestFile(t, eventsFile, testEventJson("Home"))
	loadAndTransform(t, w)
	g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays"`)).To(Equal(int64(0)))
	err = w.CheckQuality(ctx, nil)
	var qe *QualityError
	g.Expect(errors.As(err, &qe)).To(BeTrue())
	g.Expect(qe.Failures).To(ContainElement(QualityFailure{Table: catalog.SongPlays, Check: CheckRowCount, Detail: "table contains no rows"}))
	g.Expect(qe.Failures).To(ContainElement(QualityFailure{Table: catalog.Time, Check: CheckRowCount, Detail: "table contains no rows"}))
}

// Events for users 7 and 9 on 2021-01-07, a Thursday, in ISO week 1.
// User 7 plays the same song at 06:13:20 on the free level and at 07:13:20 on the paid level.
// User 9 plays a song whose title exists but under a different artist.
const testRulesEventJson = `{"artist":"Test Artist","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":152.92036,"level":"free","location":"Phoenix","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"Test Song","status":200,"ts":1610000000000,"userAgent":"Mozilla/5.0","userId":"7"}
{"artist":"Test Artist","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,"lastName":"Summers","length":152.92036,"level":"paid","location":"Phoenix","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":140,"song":"Test Song","status":200,"ts":1610003600000,"userAgent":"Mozilla/5.0","userId":"7"}
{"artist":"Other Artist","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":0,"lastName":"Koch","length":200.0,"level":"free","location":"Chicago","method":"PUT","page":"NextSong","registration":1541048010796.0,"sessionId":172,"song":"Test Song","status":200,"ts":1610001000000,"userAgent":"Mozilla/5.0","userId":"9"}
`

// Song S1 appears twice, artist A1 three times and one record has neither id.
const testRulesSongJson = `{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Test Artist", "song_id": "S1", "title": "Test Song", "duration": 152.92036, "year": 2004}
{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Test Artist", "song_id": "S1", "title": "Test Song", "duration": 152.92036, "year": 2004}
{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Test Artist", "song_id": "S2", "title": "Other Song", "duration": 99.5, "year": 2006}
{"num_songs": 1, "artist_id": null, "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Nobody", "song_id": null, "title": "Lost Song", "duration": 10.0, "year": 0}
`

func newDuckDBExecutor(t *testing.T, dir string) (*WarehouseExecutor, shared.Connector) {
	log := logger.NewLogger("duckdb warehouse test", "error", true)
	db, err := rdbms.OpenDbConnection(context.Background(), log, &shared.DsnConnectionDetails{Dsn: "duckdb:" + filepath.Join(dir, "sparkify.db")})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWarehouseExecutor(&WarehouseConfig{
		RendererConfig: RendererConfig{
			Log:     log,
			Dialect: catalog.DuckDB{},
			Catalog: catalog.Default(),
			Sources: Sources{
				LogData:     filepath.Join(dir, "log_data"),
				LogJsonPath: filepath.Join(dir, "log_json_path.json"),
				SongData:    filepath.Join(dir, "song_data"),
			},
			Objects: s3.NewClient("us-west-2"),
		},
		Db:        db,
		DropFirst: true,
	})
	if err != nil {
		db.Close()
		t.Fatal(err)
	}
	return w, db
}

func TestDuckDBStarSchemaRules(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "log_data", "events.json"), testRulesEventJson)
	writeTestFile(t, filepath.Join(dir, "song_data", "songs.json"), testRulesSongJson)
	writeTestFile(t, filepath.Join(dir, "log_json_path.json"), testJsonPaths)
	w, db := newDuckDBExecutor(t, dir)
	defer db.Close()
	g.Expect(w.CreateTables(ctx, nil)).To(Succeed())
	loadAndTransform(t, w)

	assertStarSchema := func() {
		// Only the plays matching on both title and artist survive, numbered by start time.
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays"`)).To(Equal(int64(2)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays" WHERE "user_id" = 9`)).To(Equal(int64(0)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays" WHERE "songplay_id" = 0 AND "start_time" = epoch_ms(1610000000000) AND "level" = 'free'`)).To(Equal(int64(1)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songplays" WHERE "songplay_id" = 1 AND "start_time" = epoch_ms(1610003600000) AND "level" = 'paid'`)).To(Equal(int64(1)))
		// One row per user and the latest level wins.
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "users"`)).To(Equal(int64(2)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "users" WHERE "user_id" = 7 AND "level" = 'paid'`)).To(Equal(int64(1)))
		// Songs and artists dedupe on their key and skip null keys.
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songs"`)).To(Equal(int64(2)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "songs" WHERE "song_id" = 'S1' AND "year" = 2004`)).To(Equal(int64(1)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "artists"`)).To(Equal(int64(1)))
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "artists" WHERE "artist_id" = 'A1' AND "name" = 'Test Artist'`)).To(Equal(int64(1)))
		// One time row per play timestamp with its calendar parts.
		g.Expect(countRows(t, db, `SELECT COUNT(*) FROM "time"`)).To(Equal(int64(2)))
		first := `FROM "time" WHERE "start_time" = epoch_ms(1610000000000)`
		g.Expect(countRows(t, db, `SELECT "hour" `+first)).To(Equal(int64(6)))
		g.Expect(countRows(t, db, `SELECT "day" `+first)).To(Equal(int64(7)))
		g.Expect(countRows(t, db, `SELECT "week" `+first)).To(Equal(int64(1)))
		g.Expect(countRows(t, db, `SELECT "month" `+first)).To(Equal(int64(1)))
		g.Expect(countRows(t, db, `SELECT "year" `+first)).To(Equal(int64(2021)))
		g.Expect(countRows(t, db, `SELECT "weekday" `+first)).To(Equal(int64(4)))
	}
	assertStarSchema()
	g.Expect(w.CheckQuality(ctx, nil)).To(Succeed())

	// Unchanged input gives the same rows, surrogate keys included.
	loadAndTransform(t, w)
	assertStarSchema()
}

func TestDuckDBLoadMissingSource(t *testing.T) {
	ctx := context.Background()
	log := logger.NewLogger("duckdb warehouse test", "info", true)
	dir := t.TempDir()
	db, err := rdbms.OpenDbConnection(ctx, log, &shared.DsnConnectionDetails{Dsn: "duckdb:" + filepath.Join(dir, "sparkify.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	w, err := NewWarehouseExecutor(&WarehouseConfig{
		RendererConfig: RendererConfig{
			Log:     log,
			Dialect: catalog.DuckDB{},
			Catalog: catalog.Default(),
			Sources: Sources{SongData: filepath.Join(dir, "song_data")},
			Objects: s3.NewClient("us-west-2"),
		},
		Db: db,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err = w.CreateTables(ctx, []string{catalog.StagingSongs}); err != nil {
		t.Fatal(err)
	}
	_, err = w.LoadStaging(ctx, catalog.StagingSongs)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatal("expected *LoadError. Got: ", err)
	}
	if le.Source != filepath.Join(dir, "song_data") {
		t.Fatal("unexpected source. Expected: ", filepath.Join(dir, "song_data"), ". Got: ", le.Source)
	}
}
