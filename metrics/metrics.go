// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubtask_sync_runs_total",
			Help: "Total number of sync runs by type and final status",
		},
		[]string{"sync_type", "status"},
	)
	SyncedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubtask_synced_items_total",
			Help: "Total number of items written to the local store",
		},
		[]string{"sync_type"},
	)
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubtask_token_refreshes_total",
			Help: "OAuth refresh-token exchanges by outcome",
		},
		[]string{"outcome"},
	)
	UpstreamPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubtask_upstream_pages_total",
			Help: "Pages fetched from Lark list endpoints",
		},
		[]string{"endpoint"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncRuns, SyncedItems, TokenRefreshes, UpstreamPages)
	})
}
