package main

import (
    "log"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "shipbatch/internal/api"
    "shipbatch/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    mux := http.NewServeMux()

    // Jobs
    mux.HandleFunc("/v1/jobs", srvDeps.JobsHandler)
    mux.HandleFunc("/v1/jobs/interrupted", srvDeps.InterruptedJobsHandler)
    mux.HandleFunc("/v1/jobs/", srvDeps.JobByIDHandler) // includes /preview, /execute, /resume, /cancel, /tasks, /events/stream

    // Tasks
    mux.HandleFunc("/v1/tasks/", srvDeps.TaskByIDHandler) // includes /retry, /label

    // Carrier passthroughs
    mux.HandleFunc("/v1/shipments/", srvDeps.ShipmentsHandler)
    mux.HandleFunc("/v1/rates/shop", srvDeps.RateShopHandler)
    mux.HandleFunc("/v1/address/validate", srvDeps.AddressValidateHandler)

    // Progress over WebSocket
    mux.HandleFunc("/v1/ws/jobs/", srvDeps.ProgressWSHandler)

    // Health and metrics
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    metrics.RegisterDefault()
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    srv := &http.Server{
        Addr:              srvDeps.Addr,
        Handler:           logMiddleware(api.MetricsMiddleware(mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", srvDeps.Addr)
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
