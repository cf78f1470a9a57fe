package stats

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/starpipe/logger"
)

func TestStepWatcherRenderStats(t *testing.T) {
	clk := clockwork.NewFakeClock()
	sw := NewStepWatcher(nil, clk, "load_users_dim")
	sw.StartWatching()
	sw.AddAttempt()
	clk.Advance(3 * time.Second)
	s := sw.RenderStats()
	if s.StatusText != StatusRunning || s.ElapsedTimeSec != 3 {
		t.Fatal("unexpected running stats. Got: ", s)
	}
	sw.AddRows(90)
	sw.StopWatching(StatusSucceeded)
	clk.Advance(time.Minute)
	s = sw.RenderStats()
	if s.ElapsedTimeSec != 3 {
		t.Fatal("expected elapsed time to freeze when the step stops. Expected: 3. Got: ", s.ElapsedTimeSec)
	}
	if s.RowsAffected != 90 || s.RowsPerSecondAvg != 30 || s.Attempts != 1 {
		t.Fatal("unexpected final stats. Got: ", s)
	}
	if s.StatusEmoji != "\U00002705" {
		t.Fatal("unexpected emoji. Got: ", s.StatusEmoji)
	}
	if !strings.Contains(s.String(), "Stats for load_users_dim succeeded") {
		t.Fatal("unexpected stats string. Got: ", s.String())
	}
}

func TestRunStatsManagerOrderAndDumping(t *testing.T) {
	clk := clockwork.NewFakeClock()
	buf := &bytes.Buffer{}
	log := logger.NewLoggerWithFormat("starpipe", "warn", logger.FormatText, false)
	log.SetOutput(buf)
	m := NewRunStats(log, SetClock(clk), SetStatsDumpFrequency(time.Second))
	for _, name := range []string{"begin", "create_tables", "stage_songs", "stage_events"} {
		m.AddStepWatcher(name).StartWatching()
	}
	got := m.GetStats()
	if len(got) != 4 || got[2].StepName != "stage_songs" {
		t.Fatal("expected stats in the order watchers were added. Got: ", got)
	}
	m.StartDumping()
	m.StartDumping() // no-op
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	m.StopDumping()
	m.StopDumping() // no-op
	if !strings.Contains(buf.String(), "Stats for stage_events running") {
		t.Fatal("expected stats to be logged when dumping stops. Got: ", buf.String())
	}
}

func TestRunStatsManagerDisabled(t *testing.T) {
	m := NewRunStats(logger.NewLogger("starpipe", "error", false), SetStatsDumpFrequency(0))
	m.StartDumping()
	m.StopDumping()
	if len(m.GetStats()) != 0 {
		t.Fatal("expected no stats")
	}
}
