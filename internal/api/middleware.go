package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "shipbatch/internal/metrics"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    if h, ok := r.ResponseWriter.(http.Hijacker); ok { return h.Hijack() }
    return nil, nil, errors.New("hijack not supported")
}

// MetricsMiddleware records request counts and latencies on the dedicated
// registry. Paths are bucketed by their first two segments so per-job ids
// never explode label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
    metrics.RegisterDefault()
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()
        next.ServeHTTP(rec, r)
        path := metricPath(r.URL.Path)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
    })
}

func metricPath(p string) string {
    parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 3)
    if len(parts) >= 2 { return "/" + parts[0] + "/" + parts[1] }
    return p
}
