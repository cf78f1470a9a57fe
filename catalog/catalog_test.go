package catalog

import (
	"errors"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

func TestDefaultCatalogTables(t *testing.T) {
	c := Default()
	expected := []string{StagingEvents, StagingSongs, SongPlays, Users, Songs, Artists, Time}
	got := c.Tables()
	if len(got) != len(expected) {
		t.Fatal("unexpected number of tables. Expected: ", len(expected), ". Got: ", len(got))
	}
	for i, name := range expected {
		if got[i].Name != name {
			t.Fatal("unexpected table at position ", i, ". Expected: ", name, ". Got: ", got[i].Name)
		}
	}
	star := c.StarTables()
	if star[0].Name != SongPlays || len(star) != 5 {
		t.Fatal("expected the fact table first followed by four dimensions. Got: ", star)
	}
	drop := c.DropOrder()
	if drop[0].Name != Time || drop[len(drop)-1].Name != StagingEvents {
		t.Fatal("expected drop order to reverse creation order")
	}
}

func TestDefaultCatalogNotNullColumns(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	g.Expect(c.MustTable(SongPlays).NotNullColumns()).To(Equal([]string{"songplay_id", "start_time", "user_id", "song_id", "artist_id"}))
	g.Expect(c.MustTable(Users).NotNullColumns()).To(Equal([]string{"user_id", "first_name", "last_name", "gender", "level"}))
	g.Expect(c.MustTable(Songs).NotNullColumns()).To(Equal([]string{"song_id", "title", "artist_id", "year"}))
	g.Expect(c.MustTable(Artists).NotNullColumns()).To(Equal([]string{"artist_id", "name"}))
	g.Expect(c.MustTable(Time).NotNullColumns()).To(HaveLen(7))
	g.Expect(c.MustTable(StagingEvents).NotNullColumns()).To(BeEmpty())
}

func TestDependencies(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Default()
	g.Expect(c.Dependencies(SongPlays)).To(Equal([]string{StagingEvents, StagingSongs}))
	g.Expect(c.Dependencies(Users)).To(Equal([]string{StagingEvents}))
	g.Expect(c.Dependencies(Time)).To(Equal([]string{SongPlays}))
	g.Expect(c.Dependencies(StagingEvents)).To(BeNil())
	g.Expect(c.Dependencies("missing")).To(BeNil())
}

func TestValidateRejectsBrokenTransforms(t *testing.T) {
	staging := stagingSongsTable()
	cases := []struct {
		name    string
		table   *Table
		problem string
	}{
		{
			name: "unknown source table",
			table: &Table{Name: "dim", Role: RoleDimension, Columns: []Column{notNull("id", TypeVarchar)},
				Transform: &Transform{From: TableRef{Table: "nope", Alias: "n"}, Projections: []Projection{proj("id", ref("n", "id"))}}},
			problem: `reads unknown table "nope"`,
		},
		{
			name: "unknown source column",
			table: &Table{Name: "dim", Role: RoleDimension, Columns: []Column{notNull("id", TypeVarchar)},
				Transform: &Transform{From: TableRef{Table: StagingSongs, Alias: "ss"}, Projections: []Projection{proj("id", ref("ss", "nope"))}}},
			problem: "refers to unknown column ss.nope",
		},
		{
			name: "unpopulated not null column",
			table: &Table{Name: "dim", Role: RoleDimension, Columns: []Column{notNull("id", TypeVarchar), notNull("name", TypeVarchar)},
				Transform: &Transform{From: TableRef{Table: StagingSongs, Alias: "ss"}, Projections: []Projection{proj("id", ref("ss", "song_id"))}}},
			problem: `does not populate NOT NULL column "name"`,
		},
		{
			name: "date part of a non timestamp",
			table: &Table{Name: "dim", Role: RoleDimension, Columns: []Column{notNull("hour", TypeInteger)},
				Transform: &Transform{From: TableRef{Table: StagingSongs, Alias: "ss"}, Projections: []Projection{{Target: "hour", Column: ref("ss", "title"), DatePart: PartHour}}}},
			problem: "extracts hour from non-timestamp column ss.title",
		},
		{
			name: "distinct with dedup key",
			table: &Table{Name: "dim", Role: RoleDimension, Columns: []Column{notNull("id", TypeVarchar)},
				Transform: &Transform{From: TableRef{Table: StagingSongs, Alias: "ss"}, Projections: []Projection{proj("id", ref("ss", "song_id"))},
					Distinct: true, DedupKey: []ColumnRef{ref("ss", "song_id")}}},
			problem: "sets both distinct and a dedup key",
		},
		{
			name:    "star table without transform",
			table:   &Table{Name: "dim", Role: RoleDimension, Columns: []Column{col("id", TypeVarchar)}},
			problem: `dimension table "dim" has no transform`,
		},
	}
	for _, tc := range cases {
		_, err := New(staging, tc.table)
		if err == nil {
			t.Fatal("expected validation error for case: ", tc.name)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatal("expected *ValidationError for case: ", tc.name, ". Got: ", err)
		}
		if !strings.Contains(err.Error(), tc.problem) {
			t.Fatal("unexpected problem for case: ", tc.name, ". Expected: ", tc.problem, ". Got: ", err)
		}
	}
}

func TestValidateDuplicateTable(t *testing.T) {
	_, err := New(stagingSongsTable(), stagingSongsTable())
	if err == nil || !strings.Contains(err.Error(), `duplicate table "staging_songs"`) {
		t.Fatal("expected duplicate table error. Got: ", err)
	}
}

func TestRoleMarshalJSON(t *testing.T) {
	b, err := RoleDimension.MarshalJSON()
	if err != nil || string(b) != `"dimension"` {
		t.Fatal("unexpected role JSON. Got: ", string(b), err)
	}
	if _, err := Role(0).MarshalJSON(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
