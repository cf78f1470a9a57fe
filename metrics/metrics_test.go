package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relloyd/starpipe/workflow"
)

func TestObserver(t *testing.T) {
	o := Observer{}
	n := workflow.Node{ID: workflow.NodeStageEvents, Kind: workflow.KindLoad, Tables: []string{"staging_events"}}
	o.NodeFinished(n, workflow.StateSucceeded, 2*time.Second, 8056)
	o.NodeFinished(n, workflow.StateFailed, time.Second, 0)
	o.NodeFinished(n, workflow.StateUpstreamFailed, 0, 0)
	o.RunFinished(workflow.StateFailed, 5*time.Second)

	if got := testutil.ToFloat64(MetricNodesTotal.WithLabelValues(n.ID, string(n.Kind), workflow.StateSucceeded.String())); got != 1 {
		t.Fatal("unexpected succeeded node count. Expected: 1. Got: ", got)
	}
	if got := testutil.ToFloat64(MetricNodesTotal.WithLabelValues(n.ID, string(n.Kind), workflow.StateUpstreamFailed.String())); got != 1 {
		t.Fatal("unexpected upstream_failed node count. Expected: 1. Got: ", got)
	}
	if got := testutil.ToFloat64(MetricNodeRows.WithLabelValues(n.ID)); got != 8056 {
		t.Fatal("unexpected rows. Expected: 8056. Got: ", got)
	}
	if got := testutil.ToFloat64(MetricRunsTotal.WithLabelValues(workflow.StateFailed.String())); got != 1 {
		t.Fatal("unexpected failed run count. Expected: 1. Got: ", got)
	}
	if got := testutil.CollectAndCount(MetricNodeDuration); got != 1 {
		t.Fatal("unexpected duration series count. Expected: 1. Got: ", got)
	}
}
