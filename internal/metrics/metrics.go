package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // CarrierCalls counts carrier API calls by operation and outcome code
    CarrierCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "carrier_calls_total", Help: "Carrier API calls by operation and outcome."},
        []string{"operation", "outcome"},
    )
    // CarrierLatency tracks carrier call latencies in milliseconds
    CarrierLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "carrier_call_latency_ms", Help: "Carrier call latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000}},
        []string{"operation"},
    )
    // RowOutcomes counts processed rows by job mode and terminal status
    RowOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "shipment_rows_total", Help: "Processed shipment rows by mode and outcome."},
        []string{"mode", "status"},
    )
    // JobsActive gauges jobs currently executing
    JobsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "jobs_active", Help: "Jobs currently executing."},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(CarrierCalls)
        Registry.MustRegister(CarrierLatency)
        Registry.MustRegister(RowOutcomes)
        Registry.MustRegister(JobsActive)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
