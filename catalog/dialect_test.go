package catalog

import (
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

func TestNewDialect(t *testing.T) {
	for _, name := range append(SupportedDialects(), "postgres", "REDSHIFT") {
		d, err := NewDialect(name)
		if err != nil {
			t.Fatal("unexpected error for dialect ", name, ": ", err)
		}
		if d == nil {
			t.Fatal("expected dialect for ", name)
		}
	}
	if _, err := NewDialect("oracle"); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
}

func TestRedshiftCreateTable(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	stmts := Redshift{}.CreateTable(c.MustTable(SongPlays))
	g.Expect(stmts).To(HaveLen(1))
	g.Expect(stmts[0]).To(HavePrefix(`CREATE TABLE IF NOT EXISTS "songplays" (`))
	g.Expect(stmts[0]).To(ContainSubstring(`"songplay_id" INTEGER GENERATED BY DEFAULT AS IDENTITY(0,1) NOT NULL PRIMARY KEY`))
	g.Expect(stmts[0]).To(ContainSubstring(`"start_time" TIMESTAMP DISTKEY SORTKEY NOT NULL`))
	g.Expect(stmts[0]).To(ContainSubstring(`"level" VARCHAR,`))
	drop := Redshift{}.DropTable(c.MustTable(Time))
	g.Expect(drop).To(Equal([]string{`DROP TABLE IF EXISTS "time"`}))
}

func TestRedshiftBulkLoad(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	src := LoadSource{
		URI:        "s3://udacity-dend/log_data",
		JsonPaths:  "s3://udacity-dend/log_json_path.json",
		IamRoleArn: "arn:aws:iam::123:role/dwh",
	}
	stmts, err := Redshift{}.BulkLoad(c.MustTable(StagingEvents), src)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stmts).To(HaveLen(1))
	g.Expect(stmts[0]).To(Equal(`COPY "staging_events" FROM 's3://udacity-dend/log_data'
CREDENTIALS 'aws_iam_role=arn:aws:iam::123:role/dwh'
REGION 'us-west-2'
FORMAT AS JSON 's3://udacity-dend/log_json_path.json'
TIMEFORMAT AS 'epochmillisecs'`))

	src.URI = "s3://udacity-dend/song_data"
	src.Region = "eu-west-1"
	stmts, err = Redshift{}.BulkLoad(c.MustTable(StagingSongs), src)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stmts[0]).To(ContainSubstring("REGION 'eu-west-1'\nFORMAT AS JSON 'auto'"))
	g.Expect(stmts[0]).NotTo(ContainSubstring("TIMEFORMAT"))

	_, err = Redshift{}.BulkLoad(c.MustTable(StagingEvents), LoadSource{URI: "s3://b/k", IamRoleArn: "arn"})
	g.Expect(err).To(MatchError(ContainSubstring("missing JSONPaths URI")))
	_, err = Redshift{}.BulkLoad(c.MustTable(StagingSongs), LoadSource{URI: "s3://b/k"})
	g.Expect(err).To(MatchError(ContainSubstring("missing IAM role ARN")))
	_, err = Redshift{}.BulkLoad(c.MustTable(Users), src)
	g.Expect(err).To(MatchError(ContainSubstring("not a staging table")))
}

func TestInsertSelectSongPlays(t *testing.T) {
	g := NewGomegaWithT(t)
	sql, err := Redshift{}.InsertSelect(Default().MustTable(SongPlays))
	g.Expect(err).NotTo(HaveOccurred())
	cols := `"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"`
	g.Expect(sql).To(HavePrefix(`INSERT INTO "songplays" ("songplay_id", ` + cols + `)
SELECT ROW_NUMBER() OVER (ORDER BY ` + cols + `) - 1 AS "songplay_id", ` + cols + ` FROM (
SELECT DISTINCT se."ts" AS "start_time", se."userId" AS "user_id"`))
	g.Expect(sql).To(ContainSubstring(`FROM "staging_events" se
JOIN "staging_songs" ss ON se."song" = ss."title" AND se."artist" = ss."artist_name"
WHERE se."page" = 'NextSong'`))
	g.Expect(sql).To(HaveSuffix(") numbered"))
}

func TestInsertSelectDimensionKeepsNaturalKey(t *testing.T) {
	g := NewGomegaWithT(t)
	sql, err := DuckDB{}.InsertSelect(Default().MustTable(Songs))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sql).To(HavePrefix(`INSERT INTO "songs" ("song_id", "title", "artist_id", "year", "duration")
SELECT "song_id", "title", "artist_id", "year", "duration" FROM (`))
	g.Expect(sql).NotTo(ContainSubstring("numbered"))
}

func TestInsertSelectUsersDedup(t *testing.T) {
	g := NewGomegaWithT(t)
	sql, err := Redshift{}.InsertSelect(Default().MustTable(Users))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sql).To(ContainSubstring(`ROW_NUMBER() OVER (PARTITION BY se."userId" ORDER BY se."ts" DESC NULLS LAST) AS "dedup_rank"`))
	g.Expect(sql).To(ContainSubstring(`WHERE se."userId" IS NOT NULL AND se."page" = 'NextSong'`))
	g.Expect(sql).To(HaveSuffix(`) ranked
WHERE "dedup_rank" = 1`))
	g.Expect(sql).To(ContainSubstring(`SELECT "user_id", "first_name", "last_name", "gender", "level" FROM (`))
}

func TestInsertSelectTime(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	sql, err := Redshift{}.InsertSelect(c.MustTable(Time))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sql).To(ContainSubstring(`EXTRACT(hour FROM sp."start_time") AS "hour"`))
	g.Expect(sql).To(ContainSubstring(`EXTRACT(dayofweek FROM sp."start_time") AS "weekday"`))
	g.Expect(sql).To(ContainSubstring(`FROM "songplays" sp`))
	sql, err = DuckDB{}.InsertSelect(c.MustTable(Time))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sql).To(ContainSubstring(`EXTRACT(dow FROM sp."start_time") AS "weekday"`))
}

func TestInsertSelectStagingFails(t *testing.T) {
	if _, err := (Redshift{}).InsertSelect(Default().MustTable(StagingSongs)); err == nil {
		t.Fatal("expected error rendering a transform for a staging table")
	}
}

func TestSnowflakeRendering(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	d := Snowflake{}
	create := d.CreateTable(c.MustTable(SongPlays))[0]
	g.Expect(create).To(ContainSubstring(`"SONGPLAY_ID" INTEGER IDENTITY(0,1) NOT NULL PRIMARY KEY`))
	g.Expect(create).To(ContainSubstring(`"START_TIME" TIMESTAMP_NTZ NOT NULL`))
	g.Expect(create).To(HaveSuffix(`CLUSTER BY ("START_TIME")`))
	g.Expect(d.CountNulls(c.MustTable(Users), "first_name")).To(Equal(`SELECT COUNT(*) FROM "USERS" WHERE "FIRST_NAME" IS NULL`))

	_, err := d.BulkLoad(c.MustTable(StagingEvents), LoadSource{URI: "s3://udacity-dend/log_data"})
	g.Expect(err).To(MatchError(ContainSubstring("missing external stage")))
	stmts, err := d.BulkLoad(c.MustTable(StagingEvents), LoadSource{URI: "s3://udacity-dend/log_data", Stage: "sparkify_stage"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stmts[0]).To(HavePrefix(`COPY INTO "STAGING_EVENTS" ("ARTIST", "AUTH", "FIRSTNAME"`))
	g.Expect(stmts[0]).To(ContainSubstring(`$1:"artist"::VARCHAR, `))
	g.Expect(stmts[0]).To(ContainSubstring(`TRY_TO_NUMBER($1:"itemInSession"::VARCHAR)`))
	g.Expect(stmts[0]).To(ContainSubstring(`TRY_TO_DOUBLE($1:"length"::VARCHAR)`))
	g.Expect(stmts[0]).To(ContainSubstring(`TO_TIMESTAMP_NTZ(TRY_TO_NUMBER($1:"ts"::VARCHAR), 3)`))
	g.Expect(stmts[0]).To(ContainSubstring("FROM @sparkify_stage/log_data)\nFILE_FORMAT = (TYPE = JSON)\nFORCE = TRUE"))
}

func TestDuckDBRendering(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	d := DuckDB{}
	sp := c.MustTable(SongPlays)
	create := d.CreateTable(sp)
	g.Expect(create).To(HaveLen(2))
	g.Expect(create[0]).To(Equal(`CREATE SEQUENCE IF NOT EXISTS "songplays_songplay_id_seq" START WITH 0 MINVALUE 0`))
	g.Expect(create[1]).To(ContainSubstring(`"songplay_id" INTEGER DEFAULT nextval('songplays_songplay_id_seq') NOT NULL`))
	g.Expect(create[1]).NotTo(ContainSubstring("PRIMARY KEY"))
	g.Expect(d.DropTable(sp)).To(Equal([]string{`DROP TABLE IF EXISTS "songplays"`, `DROP SEQUENCE IF EXISTS "songplays_songplay_id_seq"`}))
	g.Expect(d.CreateTable(c.MustTable(Artists))[0]).To(ContainSubstring(`"latitude" DOUBLE`))

	stmts, err := d.BulkLoad(c.MustTable(StagingEvents), LoadSource{URI: "/data/log_data/"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stmts[0]).To(ContainSubstring(`epoch_ms(TRY_CAST("ts" AS BIGINT))`))
	g.Expect(stmts[0]).To(ContainSubstring(`TRY_CAST("userId" AS INTEGER)`))
	g.Expect(stmts[0]).To(ContainSubstring(`read_json('/data/log_data/**/*.json', format = 'newline_delimited', columns = {`))
	g.Expect(stmts[0]).To(ContainSubstring(`'firstName': 'VARCHAR'`))
}

func TestDuckDBGlob(t *testing.T) {
	d := DuckDB{}
	cases := map[string]string{
		"data/song_data":        "data/song_data/**/*.json",
		"data/song_data/*/*.js": "data/song_data/*/*.js",
		"data/events.JSON":      "data/events.JSON",
		"s3://bucket/log_data/": "s3://bucket/log_data/**/*.json",
	}
	for in, expected := range cases {
		if got := d.Glob(in); got != expected {
			t.Fatal("unexpected glob for ", in, ". Expected: ", expected, ". Got: ", got)
		}
	}
}

func TestWithJsonPathsRendersSourceFields(t *testing.T) {
	g := NewGomegaWithT(t)
	se := Default().MustTable(StagingEvents)
	fields := make([]string, len(se.Columns))
	for i, c := range se.Columns {
		fields[i] = strings.ToLower(c.Name)
	}
	mapped, err := WithJsonPaths(se, fields)
	g.Expect(err).NotTo(HaveOccurred())
	stmts, err := DuckDB{}.BulkLoad(mapped, LoadSource{URI: "events.json"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stmts[0]).To(ContainSubstring(`TRY_CAST("firstname" AS VARCHAR)`))
	g.Expect(stmts[0]).To(ContainSubstring(`INSERT INTO "staging_events" ("artist", "auth", "firstName"`))
	g.Expect(se.Columns[2].Source).To(BeEmpty())
}

func TestQuoteLiteralInPredicates(t *testing.T) {
	tbl := &Table{
		Name: "t", Role: RoleDimension, Columns: []Column{notNull("a", TypeVarchar)},
		Transform: &Transform{
			From:        TableRef{Table: "s", Alias: "x"},
			Where:       []Predicate{{Column: ref("x", "a"), Op: OpEquals, Value: "it's"}},
			Projections: []Projection{proj("a", ref("x", "a"))},
		},
	}
	sql, err := Redshift{}.InsertSelect(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, `WHERE x."a" = 'it''s'`) {
		t.Fatal("expected escaped literal. Got: ", sql)
	}
}
