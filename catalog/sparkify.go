package catalog

// Table names.
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
	SongPlays     = "songplays"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
)

const pageNextSong = "NextSong"

func col(name string, t DataType) Column {
	return Column{Name: name, Type: t}
}

func notNull(name string, t DataType) Column {
	return Column{Name: name, Type: t, NotNull: true}
}

func ref(alias, column string) ColumnRef {
	return ColumnRef{Alias: alias, Column: column}
}

func proj(target string, c ColumnRef) Projection {
	return Projection{Target: target, Column: c}
}

// Default returns the Sparkify star schema: two staging tables loaded from JSON in object storage,
// one fact table and four dimension tables populated from staging.
func Default() *Catalog {
	c, err := New(
		stagingEventsTable(),
		stagingSongsTable(),
		songPlaysTable(),
		usersTable(),
		songsTable(),
		artistsTable(),
		timeTable(),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func stagingEventsTable() *Table {
	return &Table{
		Name: StagingEvents,
		Role: RoleStaging,
		Load: &LoadSpec{Source: SourceLogData, UseJsonPaths: true},
		Columns: []Column{
			col("artist", TypeVarchar),
			col("auth", TypeVarchar),
			col("firstName", TypeVarchar),
			col("gender", TypeVarchar),
			col("itemInSession", TypeInteger),
			col("lastName", TypeVarchar),
			col("length", TypeFloat),
			col("level", TypeVarchar),
			col("location", TypeVarchar),
			col("method", TypeVarchar),
			col("page", TypeVarchar),
			col("registration", TypeFloat),
			col("sessionId", TypeInteger),
			col("song", TypeVarchar),
			col("status", TypeInteger),
			{Name: "ts", Type: TypeTimestamp, EpochMillis: true},
			col("userAgent", TypeVarchar),
			col("userId", TypeInteger),
		},
	}
}

func stagingSongsTable() *Table {
	return &Table{
		Name: StagingSongs,
		Role: RoleStaging,
		Load: &LoadSpec{Source: SourceSongData},
		Columns: []Column{
			col("num_songs", TypeInteger),
			col("artist_id", TypeVarchar),
			col("artist_latitude", TypeFloat),
			col("artist_longitude", TypeFloat),
			col("artist_location", TypeVarchar),
			col("artist_name", TypeVarchar),
			col("song_id", TypeVarchar),
			col("title", TypeVarchar),
			col("duration", TypeFloat),
			col("year", TypeInteger),
		},
	}
}

func songPlaysTable() *Table {
	return &Table{
		Name: SongPlays,
		Role: RoleFact,
		Columns: []Column{
			{Name: "songplay_id", Type: TypeInteger, Identity: true, PrimaryKey: true, NotNull: true},
			{Name: "start_time", Type: TypeTimestamp, NotNull: true, SortKey: true, DistKey: true},
			notNull("user_id", TypeInteger),
			col("level", TypeVarchar),
			notNull("song_id", TypeVarchar),
			notNull("artist_id", TypeVarchar),
			col("session_id", TypeInteger),
			col("location", TypeVarchar),
			col("user_agent", TypeVarchar),
		},
		Transform: &Transform{
			From: TableRef{Table: StagingEvents, Alias: "se"},
			Join: &Join{
				TableRef: TableRef{Table: StagingSongs, Alias: "ss"},
				On: []JoinPair{
					{Left: ref("se", "song"), Right: ref("ss", "title")},
					{Left: ref("se", "artist"), Right: ref("ss", "artist_name")},
				},
			},
			Where: []Predicate{
				{Column: ref("se", "page"), Op: OpEquals, Value: pageNextSong},
			},
			Projections: []Projection{
				proj("start_time", ref("se", "ts")),
				proj("user_id", ref("se", "userId")),
				proj("level", ref("se", "level")),
				proj("song_id", ref("ss", "song_id")),
				proj("artist_id", ref("ss", "artist_id")),
				proj("session_id", ref("se", "sessionId")),
				proj("location", ref("se", "location")),
				proj("user_agent", ref("se", "userAgent")),
			},
			Distinct: true,
		},
	}
}

func usersTable() *Table {
	return &Table{
		Name: Users,
		Role: RoleDimension,
		Columns: []Column{
			{Name: "user_id", Type: TypeInteger, NotNull: true, SortKey: true, PrimaryKey: true},
			notNull("first_name", TypeVarchar),
			notNull("last_name", TypeVarchar),
			notNull("gender", TypeVarchar),
			notNull("level", TypeVarchar),
		},
		Transform: &Transform{
			From: TableRef{Table: StagingEvents, Alias: "se"},
			Where: []Predicate{
				{Column: ref("se", "userId"), Op: OpNotNull},
				{Column: ref("se", "page"), Op: OpEquals, Value: pageNextSong},
			},
			Projections: []Projection{
				proj("user_id", ref("se", "userId")),
				proj("first_name", ref("se", "firstName")),
				proj("last_name", ref("se", "lastName")),
				proj("gender", ref("se", "gender")),
				proj("level", ref("se", "level")),
			},
			// The most recent event decides the subscription level.
			DedupKey:   []ColumnRef{ref("se", "userId")},
			DedupOrder: []OrderBy{{Column: ref("se", "ts"), Desc: true}},
		},
	}
}

func songsTable() *Table {
	return &Table{
		Name: Songs,
		Role: RoleDimension,
		Columns: []Column{
			{Name: "song_id", Type: TypeVarchar, NotNull: true, SortKey: true, PrimaryKey: true},
			notNull("title", TypeVarchar),
			notNull("artist_id", TypeVarchar),
			notNull("year", TypeInteger),
			col("duration", TypeFloat),
		},
		Transform: &Transform{
			From: TableRef{Table: StagingSongs, Alias: "ss"},
			Where: []Predicate{
				{Column: ref("ss", "song_id"), Op: OpNotNull},
			},
			Projections: []Projection{
				proj("song_id", ref("ss", "song_id")),
				proj("title", ref("ss", "title")),
				proj("artist_id", ref("ss", "artist_id")),
				proj("year", ref("ss", "year")),
				proj("duration", ref("ss", "duration")),
			},
			DedupKey:   []ColumnRef{ref("ss", "song_id")},
			DedupOrder: []OrderBy{{Column: ref("ss", "title")}},
		},
	}
}

func artistsTable() *Table {
	return &Table{
		Name: Artists,
		Role: RoleDimension,
		Columns: []Column{
			{Name: "artist_id", Type: TypeVarchar, NotNull: true, SortKey: true, PrimaryKey: true},
			notNull("name", TypeVarchar),
			col("location", TypeVarchar),
			col("latitude", TypeFloat),
			col("longitude", TypeFloat),
		},
		Transform: &Transform{
			From: TableRef{Table: StagingSongs, Alias: "ss"},
			Where: []Predicate{
				{Column: ref("ss", "artist_id"), Op: OpNotNull},
			},
			Projections: []Projection{
				proj("artist_id", ref("ss", "artist_id")),
				proj("name", ref("ss", "artist_name")),
				proj("location", ref("ss", "artist_location")),
				proj("latitude", ref("ss", "artist_latitude")),
				proj("longitude", ref("ss", "artist_longitude")),
			},
			DedupKey:   []ColumnRef{ref("ss", "artist_id")},
			DedupOrder: []OrderBy{{Column: ref("ss", "artist_name")}},
		},
	}
}

func timeTable() *Table {
	start := ref("sp", "start_time")
	part := func(target string, p DatePart) Projection {
		return Projection{Target: target, Column: start, DatePart: p}
	}
	return &Table{
		Name: Time,
		Role: RoleDimension,
		Columns: []Column{
			{Name: "start_time", Type: TypeTimestamp, NotNull: true, DistKey: true, SortKey: true, PrimaryKey: true},
			notNull("hour", TypeInteger),
			notNull("day", TypeInteger),
			notNull("week", TypeInteger),
			notNull("month", TypeInteger),
			notNull("year", TypeInteger),
			notNull("weekday", TypeInteger),
		},
		Transform: &Transform{
			From: TableRef{Table: SongPlays, Alias: "sp"},
			Projections: []Projection{
				proj("start_time", start),
				part("hour", PartHour),
				part("day", PartDay),
				part("week", PartWeek),
				part("month", PartMonth),
				part("year", PartYear),
				part("weekday", PartDayOfWeek),
			},
			Distinct: true,
		},
	}
}
