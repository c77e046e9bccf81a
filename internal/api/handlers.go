package api

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "shipbatch/internal/buildinfo"
    "shipbatch/internal/model"
    "shipbatch/internal/payload"
    "shipbatch/internal/validate"
)

// JobsHandler handles POST/GET /v1/jobs
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        if !s.requireOperator(w, r) { return }
        var req struct {
            Name    string                `json:"name"`
            Mode    string                `json:"mode"`
            Shipper *model.ShipperContext `json:"shipper,omitempty"`
            Records []model.OrderRecord   `json:"records"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        shipper := s.Shipper
        if req.Shipper != nil { shipper = *req.Shipper }
        job, err := s.Engine.CreateJob(r.Context(), req.Name, req.Mode, shipper, req.Records)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, job)
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        jobs, err := s.Store.ListJobs(r.Context(), status, limit)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// InterruptedJobsHandler handles GET /v1/jobs/interrupted. These are jobs
// left in running state by a process that died; each can be resumed.
func (s *Server) InterruptedJobsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    items, err := s.Store.ListInterruptedJobs(r.Context())
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// JobByIDHandler handles /v1/jobs/{id} and its sub-resources:
// preview, execute, resume, cancel, tasks, events/stream.
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) == 1 {
        if r.Method != http.MethodGet {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        job, err := s.Store.GetJob(r.Context(), id)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, job)
        return
    }
    switch parts[1] {
    case "preview":
        s.previewJob(w, r, id)
    case "execute", "resume":
        s.executeJob(w, r, id)
    case "cancel":
        s.cancelJob(w, r, id)
    case "tasks":
        s.listJobTasks(w, r, id)
    case "events":
        if len(parts) > 2 && parts[2] == "stream" {
            s.streamJobEvents(w, r, id)
            return
        }
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) previewJob(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    res, err := s.Engine.Preview(r.Context(), id)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// executeJob starts (or resumes) batch execution. By default the batch runs
// in the background and 202 is returned immediately; ?wait=1 blocks until
// the batch finishes and returns the final result.
func (s *Server) executeJob(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if !s.requireOperator(w, r) { return }
    if s.Engine.Running(id) {
        writeProblem(w, http.StatusConflict, "Already Running", "job is executing", r.URL.Path)
        return
    }
    if r.URL.Query().Get("wait") != "" {
        res, err := s.Engine.Execute(r.Context(), id)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, res)
        return
    }
    // Validate the job exists before detaching.
    if _, err := s.Store.GetJob(r.Context(), id); err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    go func() {
        if _, err := s.Engine.Execute(context.Background(), id); err != nil {
            log.Printf("job %s: execute: %v", id, err)
        }
    }()
    writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id, "status": model.JobRunning})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if !s.requireOperator(w, r) { return }
    if !s.Engine.Cancel(id) {
        writeProblem(w, http.StatusConflict, "Not Running", "job is not executing in this process", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id, "cancelling": true})
}

func (s *Server) listJobTasks(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var (
        tasks []model.ShipmentTask
        err   error
    )
    if status := r.URL.Query().Get("status"); status != "" {
        tasks, err = s.Store.ListTasksByStatus(r.Context(), id, status)
    } else {
        tasks, err = s.Store.ListTasks(r.Context(), id)
    }
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

// streamJobEvents serves SSE progress for one job.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"jobId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt)
            fmt.Fprintf(w, "event: progress\n")
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"jobId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// TaskByIDHandler handles /v1/tasks/{id} and /v1/tasks/{id}/retry.
func (s *Server) TaskByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 && parts[1] == "retry" {
        if r.Method != http.MethodPost {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        if !s.requireOperator(w, r) { return }
        task, err := s.Engine.RetryTask(r.Context(), id)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, task)
        return
    }
    if len(parts) > 1 && parts[1] == "label" {
        s.serveTaskLabel(w, r, id)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    task, err := s.Store.GetTask(r.Context(), id)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, task)
}

// serveTaskLabel downloads the PDF label of a completed task.
func (s *Server) serveTaskLabel(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    task, err := s.Store.GetTask(r.Context(), id)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    if task.LabelPath == "" || !s.Labels.Exists(task.LabelPath) {
        writeProblem(w, http.StatusNotFound, "Label Not Found", "no label stored for task", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "application/pdf")
    http.ServeFile(w, r, task.LabelPath)
}

// ShipmentsHandler handles POST /v1/shipments/{id}/void.
func (s *Server) ShipmentsHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/shipments/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "void" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if !s.requireOperator(w, r) { return }
    res, err := s.Carrier.VoidShipment(r.Context(), parts[0])
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// RateShopHandler handles POST /v1/rates/shop: price one record across all
// eligible services without committing anything.
func (s *Server) RateShopHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Shipper *model.ShipperContext `json:"shipper,omitempty"`
        Record  model.OrderRecord     `json:"record"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    shipper := s.Shipper
    if req.Shipper != nil { shipper = *req.Shipper }
    svc := validate.ResolveServiceCode(req.Record.ServiceHint)
    corrected, issues := validate.ApplyCorrections(&req.Record, shipper, svc)
    if validate.HasFatal(issues) {
        writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"issues": issues})
        return
    }
    form := payload.BuildRateForm(payload.BuildSimplified(&corrected, shipper, svc))
    quotes, err := s.Carrier.ShopRates(r.Context(), form)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes, "issues": issues})
}

// AddressValidateHandler handles POST /v1/address/validate.
func (s *Server) AddressValidateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var addr model.Address
    if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    verdict, err := s.Carrier.ValidateAddress(r.Context(), addr)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if p, ok := s.Store.(interface{ Ping(ctx context.Context) error }); ok {
        if err := p.Ping(r.Context()); err != nil {
            writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
