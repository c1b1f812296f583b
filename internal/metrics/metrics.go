// Package metrics holds the Prometheus collectors shared by the fetch,
// refresh and layout paths, registered on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "staffcal"

var (
	// Registry is the registry every collector below is registered on.
	Registry = prometheus.NewRegistry()

	FeedFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_fetches_total",
		Help:      "ICS feed fetches by outcome (fresh, not_modified, cache_fallback, error).",
	}, []string{"outcome"})

	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Meeting snapshot refreshes by outcome (ok, partial, error).",
	}, []string{"outcome"})

	SnapshotMeetings = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_meetings",
		Help:      "Meetings held in the current snapshot.",
	})

	LayoutIntervals = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "layout_intervals",
		Help:      "Intervals per lane layout call.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
	})

	ClusterLanes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cluster_lanes",
		Help:      "Lanes needed per overlap cluster.",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FeedFetches,
		Refreshes,
		SnapshotMeetings,
		LayoutIntervals,
		ClusterLanes,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
