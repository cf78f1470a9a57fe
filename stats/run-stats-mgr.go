package stats

import (
	"sync"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/jonboulle/clockwork"
	c "github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

// StatsManager hands out a StepWatcher per workflow node and periodically logs their stats.
type StatsManager interface {
	StatsFetcher
	StartDumping()
	StopDumping()
	AddStepWatcher(stepName string) *StepWatcher
}

// RunStatsManager implements StatsManager and saves stats from each node added via calls to AddStepWatcher.
// Watchers are kept in the order they were added.
type RunStatsManager struct {
	ticker          clockwork.Ticker
	tickerDone      chan struct{}
	tickerRunning   bool
	tickerFrequency time.Duration
	clock           clockwork.Clock
	mu              sync.Mutex
	log             logger.Logger
	mapStepStats    *ordered_map.OrderedMap // map of node name to *StepWatcher
}

// SetStatsDumpFrequency returns a function that can be supplied as an option to constructor NewRunStats().
// A frequency of 0 disables periodic dumps.
func SetStatsDumpFrequency(d time.Duration) func(t *RunStatsManager) {
	return func(t *RunStatsManager) {
		t.tickerFrequency = d
	}
}

// SetClock returns a function that can be supplied as an option to constructor NewRunStats().
func SetClock(clock clockwork.Clock) func(t *RunStatsManager) {
	return func(t *RunStatsManager) {
		t.clock = clock
	}
}

// NewRunStats creates a new RunStatsManager.
func NewRunStats(log logger.Logger, options ...func(t *RunStatsManager)) *RunStatsManager {
	t := &RunStatsManager{
		log:             log,
		tickerFrequency: time.Second * c.StatsCaptureFrequencySeconds,
		clock:           clockwork.NewRealClock(),
	}
	for _, option := range options {
		option(t)
	}
	t.tickerDone = make(chan struct{})
	t.mapStepStats = ordered_map.NewOrderedMap()
	return t
}

// AddStepWatcher creates a new StepWatcher and saves it into this RunStatsManager.
func (t *RunStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	sw := NewStepWatcher(t.log, t.clock, stepName)
	t.mapStepStats.Set(stepName, sw)
	return sw
}

func (t *RunStatsManager) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tickerRunning { // if we're already dumping stats...
		t.log.Debug("stats dumper ticker already running")
		return
	}
	if t.tickerFrequency <= 0 { // if stats dumping is disabled...
		t.log.Debug("stats dumper disabled")
		return
	}
	t.ticker = t.clock.NewTicker(t.tickerFrequency)
	t.tickerRunning = true
	go func(ticker clockwork.Ticker) {
		t.log.Debug("stats dumper ticker started")
		for {
			select {
			case <-t.tickerDone:
				t.log.Debug("stats dumper ticker stopped")
				return
			case <-ticker.Chan():
				t.logStats()
			}
		}
	}(t.ticker)
}

// StopDumping will stop the ticker and dump the current stats,
// only if the ticker was already running via a call to StartDumping().
func (t *RunStatsManager) StopDumping() {
	t.mu.Lock()
	running := t.tickerRunning
	if running {
		t.tickerRunning = false
		t.ticker.Stop()
	}
	t.mu.Unlock()
	if running {
		t.tickerDone <- struct{}{} // cause the goroutine to exit
		t.logStats()
	}
}

// logStats outputs the stats of each registered node.
func (t *RunStatsManager) logStats() {
	for _, s := range t.GetStats() {
		t.log.Warn(s.String())
	}
}

// GetStats implements interface StatsFetcher{}.
func (t *RunStatsManager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	iter := t.mapStepStats.IterFunc()
	statsList := make([]Stats, 0)
	for kv, ok := iter(); ok; kv, ok = iter() { // for each element in the map of nodes...
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
