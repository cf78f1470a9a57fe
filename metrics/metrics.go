// Package metrics exposes workflow run and node outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/relloyd/starpipe/workflow"
)

const (
	MetricNameBuildInfo    = "starpipe_build_info"
	MetricNameNodesTotal   = "starpipe_nodes_total"
	MetricNameNodeDuration = "starpipe_node_duration_seconds"
	MetricNameNodeRows     = "starpipe_node_rows_affected_total"
	MetricNameRunsTotal    = "starpipe_runs_total"
	MetricNameRunDuration  = "starpipe_run_duration_seconds"

	MetricLabelVersion = "version"
	MetricLabelNode    = "node"
	MetricLabelKind    = "kind"
	MetricLabelState   = "state"
)

var (
	MetricBuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBuildInfo,
			Help: "Build information of starpipe",
		},
		[]string{MetricLabelVersion},
	)

	MetricNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameNodesTotal,
			Help: "Number of workflow nodes that finished, by final state",
		},
		[]string{MetricLabelNode, MetricLabelKind, MetricLabelState},
	)

	MetricNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameNodeDuration,
			Help:    "Time taken by workflow nodes that ran",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
		},
		[]string{MetricLabelNode, MetricLabelKind},
	)

	MetricNodeRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameNodeRows,
			Help: "Rows written by load and transform nodes",
		},
		[]string{MetricLabelNode},
	)

	MetricRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRunsTotal,
			Help: "Number of workflow runs that finished, by final state",
		},
		[]string{MetricLabelState},
	)

	MetricRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    MetricNameRunDuration,
			Help:    "Time taken by workflow runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)

// Observer records workflow outcomes in the package metrics.
type Observer struct{}

var _ workflow.Observer = Observer{}

func (Observer) NodeFinished(n workflow.Node, state workflow.State, elapsed time.Duration, rowsAffected int64) {
	MetricNodesTotal.WithLabelValues(n.ID, string(n.Kind), state.String()).Inc()
	if state == workflow.StateSucceeded || state == workflow.StateFailed { // if the node actually ran...
		MetricNodeDuration.WithLabelValues(n.ID, string(n.Kind)).Observe(elapsed.Seconds())
	}
	if rowsAffected > 0 {
		MetricNodeRows.WithLabelValues(n.ID).Add(float64(rowsAffected))
	}
}

func (Observer) RunFinished(state workflow.State, elapsed time.Duration) {
	MetricRunsTotal.WithLabelValues(state.String()).Inc()
	MetricRunDuration.Observe(elapsed.Seconds())
}

// SetBuildInfo publishes the running version.
func SetBuildInfo(version string) {
	MetricBuildInfo.WithLabelValues(version).Set(1)
}
