// Package metrics exposes collabkit's Prometheus metrics, grounded on the
// teacher's runtime/metrics/prometheus exporter shape.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabkit"

var (
	// CacheHits counts Document Cache reads served directly from base+tail.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of GetSnapshot calls served from the cache window",
		},
		[]string{"type"},
	)

	// CacheMisses counts GetSnapshot calls that fell through to a rebuild.
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of GetSnapshot calls that rebuilt from the store",
		},
		[]string{"type"},
	)

	// CacheEvictions counts entries removed by the TTL sweep.
	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache entries evicted by the TTL sweep",
		},
		[]string{"type"},
	)

	// SubmitDuration is a histogram of SubmitOperation latency.
	SubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Duration of SubmitOperation calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "status"}, // status: confirmed, conflict, error
	)

	// SubscribersActive is a gauge of currently attached stream subscribers.
	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Number of currently attached StreamOperations subscribers",
		},
	)

	// RPCConnectionsActive is a gauge of live multiplexed RPC connections.
	RPCConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_connections_active",
			Help:      "Number of currently connected RPC transports",
		},
	)

	// RPCFramesTotal counts frames processed by kind.
	RPCFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_frames_total",
			Help:      "Total number of RPC frames processed",
		},
		[]string{"kind", "direction"}, // direction: in, out
	)

	allMetrics = []prometheus.Collector{
		CacheHits,
		CacheMisses,
		CacheEvictions,
		SubmitDuration,
		SubscribersActive,
		RPCConnectionsActive,
		RPCFramesTotal,
	}
)

// Exporter serves collabkit's metrics over HTTP.
type Exporter struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
	mu       sync.Mutex
	started  bool
}

// NewExporter creates an Exporter bound to addr with a fresh registry
// carrying collabkit's metrics plus the standard Go/process collectors.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Exporter{addr: addr, registry: reg}
}

// Handler returns an http.Handler serving the metrics endpoint, for
// embedding into an existing mux.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start begins serving metrics at /metrics. Blocks until Shutdown or a
// listener error; returns http.ErrServerClosed on graceful shutdown.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.started = true
	e.mu.Unlock()

	return e.server.ListenAndServe()
}

// Shutdown gracefully stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil && e.started {
		e.started = false
		return e.server.Shutdown(ctx)
	}
	return nil
}
