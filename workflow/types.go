package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the variant of a Node.
type Kind string

const (
	KindMarker    Kind = "marker"
	KindCreate    Kind = "create"
	KindLoad      Kind = "load"
	KindTransform Kind = "transform"
	KindCheck     Kind = "check"
)

func (k Kind) valid() bool {
	switch k {
	case KindMarker, KindCreate, KindLoad, KindTransform, KindCheck:
		return true
	}
	return false
}

// Node IDs of the default Sparkify workflow.
const (
	NodeBegin             = "begin"
	NodeCreateTables      = "create_tables"
	NodeStageEvents       = "stage_events"
	NodeStageSongs        = "stage_songs"
	NodeLoadSongplaysFact = "load_songplays_fact"
	NodeLoadUsersDim      = "load_users_dim"
	NodeLoadSongsDim      = "load_songs_dim"
	NodeLoadArtistsDim    = "load_artists_dim"
	NodeLoadTimeDim       = "load_time_dim"
	NodeRunQualityChecks  = "run_quality_checks"
	NodeEnd               = "end"
)

const DefaultGraphDescription = "Load and transform Sparkify data from S3 into the warehouse"

// Node is one task of the workflow.
// Create nodes act on all Tables (or the whole catalog when empty); load and
// transform nodes act on exactly one table; check nodes verify Tables.
type Node struct {
	ID       string   `json:"id" errorTxt:"node id" mandatory:"yes"`
	Kind     Kind     `json:"kind" errorTxt:"node kind" mandatory:"yes"`
	Tables   []string `json:"tables,omitempty"`
	Upstream []string `json:"upstream,omitempty"`
}

func (n Node) String() string {
	return fmt.Sprintf("%v (%v)", n.ID, n.Kind)
}

// Table returns the single table of a load or transform node.
func (n Node) Table() string {
	if len(n.Tables) == 0 {
		return ""
	}
	return n.Tables[0]
}

// Graph is a named collection of nodes with explicit upstream lists.
type Graph struct {
	Description string `json:"description,omitempty"`
	Nodes       []Node `json:"nodes" errorTxt:"graph nodes" mandatory:"yes"`
}

// State is the lifecycle state of a node.
type State uint32

const (
	StatePending State = iota + 1
	StateRunning
	StateSucceeded
	StateFailed
	StateUpstreamFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateUpstreamFailed:
		return "upstream_failed"
	case StateCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// IsFinished is true for terminal states.
func (s State) IsFinished() bool {
	return s != StatePending && s != StateRunning
}

func (s State) MarshalJSON() ([]byte, error) {
	retval := s.String()
	if retval == "" {
		return nil, fmt.Errorf("unhandled State value %v in custom MarshalJSON() conversion", uint32(s))
	}
	return json.Marshal(retval)
}

func (s *State) UnmarshalJSON(b []byte) error {
	var txt string
	if err := json.Unmarshal(b, &txt); err != nil {
		return err
	}
	for x := StatePending; x <= StateCancelled; x++ {
		if strings.EqualFold(x.String(), txt) {
			*s = x
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", txt)
}
