package batch

import (
    "context"
    "encoding/json"
    "log"
    "strings"
    "sync"
    "time"

    "shipbatch/internal/carrier"
    "shipbatch/internal/errcode"
    "shipbatch/internal/events"
    "shipbatch/internal/labels"
    "shipbatch/internal/metrics"
    "shipbatch/internal/model"
    "shipbatch/internal/payload"
    "shipbatch/internal/store"
    "shipbatch/internal/validate"
)

const (
    defaultPreviewRows = 20
    defaultRowRetries  = 3
    rowRetryBase       = 500 * time.Millisecond
)

// Engine drives batch jobs: non-committal cost preview and sequential,
// crash-safe execution. Rows are processed in strict ordinal order and each
// outcome is persisted before the next row starts, so a crash loses at most
// the row in flight.
type Engine struct {
    Store   store.Store
    Carrier carrier.Carrier
    Labels  labels.Storage
    Broker  events.EventBroker

    // PreviewRows caps how many rows Preview rates live; the rest are
    // extrapolated from the sampled average.
    PreviewRows int
    // RowRetries bounds automatic retries of one row on retryable carrier
    // errors during execution.
    RowRetries int
    // RetryDelay is the base backoff between row retries; it doubles per
    // attempt.
    RetryDelay time.Duration

    mu      sync.Mutex
    cancels map[string]context.CancelFunc
}

func NewEngine(st store.Store, c carrier.Carrier, lb labels.Storage, br events.EventBroker) *Engine {
    return &Engine{
        Store:       st,
        Carrier:     c,
        Labels:      lb,
        Broker:      br,
        PreviewRows: defaultPreviewRows,
        RowRetries:  defaultRowRetries,
        RetryDelay:  rowRetryBase,
        cancels:     map[string]context.CancelFunc{},
    }
}

// CreateJob persists a job and one pending task per input record. Records
// are renumbered 1..n in input order; the normalized record is captured on
// the task so a later resume processes exactly what was submitted.
func (e *Engine) CreateJob(ctx context.Context, name, mode string, shipper model.ShipperContext, records []model.OrderRecord) (model.Job, error) {
    if len(records) == 0 {
        return model.Job{}, errcode.New(errcode.CodeEmptyJob, "job has no rows")
    }
    if mode == "" { mode = model.ModeExecute }
    job := model.Job{Name: name, Mode: mode, Shipper: shipper, Currency: "USD"}
    tasks := make([]model.ShipmentTask, 0, len(records))
    for i := range records {
        rec := records[i]
        rec.Ordinal = i + 1
        data, err := json.Marshal(rec)
        if err != nil {
            return model.Job{}, errcode.Newf(errcode.CodeInternal, "encode row %d: %v", rec.Ordinal, err)
        }
        tasks = append(tasks, model.ShipmentTask{Ordinal: rec.Ordinal, OrderData: string(data)})
    }
    if err := e.Store.CreateJob(ctx, &job, tasks); err != nil {
        return model.Job{}, errcode.Newf(errcode.CodeDatabase, "create job: %v", err)
    }
    return job, nil
}

// Preview rates a sample of the job's rows and extrapolates the rest. It
// never calls the shipment endpoint and never mutates stored state, so it is
// safe to run any number of times before execution.
func (e *Engine) Preview(ctx context.Context, jobID string) (model.PreviewResult, error) {
    job, err := e.Store.GetJob(ctx, jobID)
    if err != nil { return model.PreviewResult{}, err }
    tasks, err := e.Store.ListTasksByStatus(ctx, jobID, model.TaskPending)
    if err != nil { return model.PreviewResult{}, err }

    limit := e.PreviewRows
    if limit <= 0 { limit = defaultPreviewRows }
    sample := tasks
    if len(sample) > limit { sample = sample[:limit] }

    out := model.PreviewResult{JobID: job.ID, TotalRows: len(tasks), Currency: "USD"}
    var sampledTotal int64
    for i := range sample {
        row := e.rateRow(ctx, job, &sample[i])
        if len(row.Warnings) > 0 { out.RowsWithWarnings++ }
        if row.EstimatedCostCents > 0 && out.Currency == "USD" && row.currency != "" {
            out.Currency = row.currency
        }
        sampledTotal += row.EstimatedCostCents
        out.Rows = append(out.Rows, row.PreviewRow)
        status := model.TaskCompleted
        if row.NotShippable || row.RateError != "" { status = model.TaskFailed }
        metrics.RowOutcomes.WithLabelValues(model.ModePreview, status).Inc()
    }

    // Unsampled rows are estimated at the sampled average. Errored rows stay
    // in the denominator: they pull the estimate down the same way they pull
    // the executed total down.
    out.AdditionalRows = len(tasks) - len(sample)
    out.TotalEstimatedCostCents = sampledTotal
    if out.AdditionalRows > 0 && len(sample) > 0 {
        avg := sampledTotal / int64(len(sample))
        out.TotalEstimatedCostCents += avg * int64(out.AdditionalRows)
    }
    return out, nil
}

type previewRow struct {
    model.PreviewRow
    currency string
}

func (e *Engine) rateRow(ctx context.Context, job model.Job, task *model.ShipmentTask) previewRow {
    row := previewRow{PreviewRow: model.PreviewRow{Ordinal: task.Ordinal}}

    var rec model.OrderRecord
    if err := json.Unmarshal([]byte(task.OrderData), &rec); err != nil {
        row.NotShippable = true
        row.RateError = "unreadable row data"
        return row
    }
    row.RecipientName = rec.Recipient.Name
    row.CityState = strings.TrimSuffix(rec.Recipient.City+", "+rec.Recipient.StateProvince, ", ")

    svc := validate.ResolveServiceCode(rec.ServiceHint)
    corrected, issues := validate.ApplyCorrections(&rec, job.Shipper, svc)
    row.ServiceCode = svc
    row.Warnings = validate.Warnings(issues)
    if validate.HasFatal(issues) {
        row.NotShippable = true
        return row
    }

    form := payload.BuildRateForm(payload.BuildSimplified(&corrected, job.Shipper, svc))
    start := time.Now()
    quote, err := e.Carrier.QuoteRate(ctx, form)
    metrics.CarrierLatency.WithLabelValues("rate").Observe(float64(time.Since(start).Milliseconds()))
    if err != nil {
        metrics.CarrierCalls.WithLabelValues("rate", errcode.CodeOf(err)).Inc()
        row.RateError = err.Error()
        return row
    }
    metrics.CarrierCalls.WithLabelValues("rate", "ok").Inc()
    row.EstimatedCostCents = quote.CostCents
    row.currency = quote.Currency
    return row
}

// Execute processes every pending row of a job in ordinal order. It is also
// the resume path: terminal rows are simply absent from the pending list, so
// a re-run picks up where the previous run stopped.
func (e *Engine) Execute(ctx context.Context, jobID string) (model.ExecuteResult, error) {
    job, err := e.Store.GetJob(ctx, jobID)
    if err != nil { return model.ExecuteResult{}, err }
    switch job.Status {
    case model.JobCompleted, model.JobFailed:
        return model.ExecuteResult{}, errcode.Newf(errcode.CodeInternal, "job %s is %s", jobID, job.Status)
    }
    // Preview jobs are rate-only and never reach the shipment endpoint.
    if job.Mode == model.ModePreview {
        return model.ExecuteResult{}, errcode.Newf(errcode.CodeInternal, "job %s was created in preview mode", jobID)
    }
    if err := e.Store.SetJobStatus(ctx, jobID, model.JobRunning, "", ""); err != nil {
        return model.ExecuteResult{}, err
    }

    ctx, cancel := context.WithCancel(ctx)
    e.mu.Lock()
    e.cancels[jobID] = cancel
    e.mu.Unlock()
    defer func() {
        e.mu.Lock()
        delete(e.cancels, jobID)
        e.mu.Unlock()
        cancel()
    }()

    metrics.JobsActive.Inc()
    defer metrics.JobsActive.Dec()

    tasks, err := e.Store.ListTasksByStatus(ctx, jobID, model.TaskPending)
    if err != nil { return model.ExecuteResult{}, err }

    cancelled := false
    for i := range tasks {
        // Cancellation takes effect at row boundaries only; the row in
        // flight always runs to a persisted outcome.
        if ctx.Err() != nil {
            cancelled = true
            break
        }
        e.processRow(ctx, job, &tasks[i])
    }

    final := model.JobCompleted
    if cancelled { final = model.JobCancelled }
    if err := e.Store.SetJobStatus(context.WithoutCancel(ctx), jobID, final, "", ""); err != nil {
        log.Printf("job %s: set final status: %v", jobID, err)
    }
    job, err = e.Store.ReconcileJob(context.WithoutCancel(ctx), jobID)
    if err != nil { return model.ExecuteResult{}, err }
    return model.ExecuteResult{
        JobID:          job.ID,
        Total:          job.TotalRows,
        Successful:     job.Successful,
        Failed:         job.Failed,
        NeedsReview:    job.NeedsReview,
        TotalCostCents: job.TotalCostCents,
        Currency:       job.Currency,
        Cancelled:      cancelled,
    }, nil
}

// Cancel requests a stop of a running job. The row in flight finishes; the
// job lands in cancelled with its remaining rows still pending.
func (e *Engine) Cancel(jobID string) bool {
    e.mu.Lock()
    cancel, ok := e.cancels[jobID]
    e.mu.Unlock()
    if ok { cancel() }
    return ok
}

// Running reports whether a job is currently executing in this process.
func (e *Engine) Running(jobID string) bool {
    e.mu.Lock()
    _, ok := e.cancels[jobID]
    e.mu.Unlock()
    return ok
}

// RetryTask records a fresh attempt for a terminal task and processes it
// immediately. The prior attempt is untouched; job counters are recomputed
// from the latest attempt per ordinal.
func (e *Engine) RetryTask(ctx context.Context, taskID string) (model.ShipmentTask, error) {
    prior, err := e.Store.GetTask(ctx, taskID)
    if err != nil { return model.ShipmentTask{}, err }
    // Only failed and needs_review rows may be retried: a pending row has
    // no outcome yet, and retrying a completed row would ship it twice.
    if prior.Status == model.TaskPending || prior.Status == model.TaskCompleted {
        return model.ShipmentTask{}, store.ErrTerminal
    }
    job, err := e.Store.GetJob(ctx, prior.JobID)
    if err != nil { return model.ShipmentTask{}, err }

    task := model.ShipmentTask{JobID: prior.JobID, Ordinal: prior.Ordinal, OrderData: prior.OrderData}
    if err := e.Store.InsertTaskAttempt(ctx, &task); err != nil {
        return model.ShipmentTask{}, err
    }
    e.processRow(ctx, job, &task)
    if _, err := e.Store.ReconcileJob(ctx, job.ID); err != nil {
        log.Printf("job %s: reconcile after retry: %v", job.ID, err)
    }
    return e.Store.GetTask(ctx, task.ID)
}

// processRow takes one task from pending to a terminal state, persists the
// outcome, and publishes a progress event. It never returns an error: every
// failure mode becomes a persisted row outcome.
func (e *Engine) processRow(ctx context.Context, job model.Job, task *model.ShipmentTask) {
    defer func() {
        if r := recover(); r != nil {
            log.Printf("job %s row %d: panic: %v", job.ID, task.Ordinal, r)
            e.failRow(ctx, job, task, model.TaskFailed, errcode.Newf(errcode.CodeInternal, "row processing panic: %v", r))
        }
    }()

    var rec model.OrderRecord
    if err := json.Unmarshal([]byte(task.OrderData), &rec); err != nil {
        e.failRow(ctx, job, task, model.TaskNeedsReview, errcode.Newf(errcode.CodeInternal, "unreadable row data: %v", err))
        return
    }

    svc := validate.ResolveServiceCode(rec.ServiceHint)
    corrected, issues := validate.ApplyCorrections(&rec, job.Shipper, svc)
    if validate.HasFatal(issues) {
        e.failRow(ctx, job, task, model.TaskNeedsReview, issueError(issues))
        return
    }

    wire := payload.BuildWire(payload.BuildSimplified(&corrected, job.Shipper, svc))
    snapshot, err := json.Marshal(wire)
    if err != nil {
        e.failRow(ctx, job, task, model.TaskFailed, errcode.Newf(errcode.CodeInternal, "encode payload: %v", err))
        return
    }
    // The exact payload is persisted before submission so a crash mid-call
    // leaves an auditable record of what may have reached the carrier.
    if err := e.Store.SaveTaskPayload(context.WithoutCancel(ctx), task.ID, svc, string(snapshot)); err != nil {
        e.failRow(ctx, job, task, model.TaskFailed, errcode.Newf(errcode.CodeDatabase, "save payload: %v", err))
        return
    }

    res, err := e.createWithRetry(ctx, job.ID, task.Ordinal, wire)
    if err != nil {
        e.failRow(ctx, job, task, model.TaskFailed, err)
        return
    }

    tracking := res.TrackingNumber
    if tracking == "" || strings.Contains(tracking, "XXXX") {
        tracking = res.ShipmentID
    }

    // Labels land in staging first and are promoted once the shipment is
    // confirmed, so the final directory only ever holds real labels.
    labelPath := ""
    if pdf, derr := labels.Decode(res.LabelB64); derr != nil {
        log.Printf("job %s row %d: label decode: %v", job.ID, task.Ordinal, derr)
    } else if staged, serr := e.Labels.SaveStaged(job.ID, task.Ordinal, tracking, pdf); serr != nil {
        log.Printf("job %s row %d: stage label: %v", job.ID, task.Ordinal, serr)
    } else if final, perr := e.Labels.Promote(staged); perr != nil {
        log.Printf("job %s row %d: promote label: %v", job.ID, task.Ordinal, perr)
    } else {
        labelPath = final
    }

    // The shipment exists at the carrier from here on: the row completes
    // even if the label could not be written.
    if err := e.Store.CompleteTask(context.WithoutCancel(ctx), task.ID, tracking, labelPath, res.CostCents, res.Currency); err != nil {
        log.Printf("job %s row %d: complete: %v", job.ID, task.Ordinal, err)
        return
    }
    if err := e.Store.AddJobCounts(context.WithoutCancel(ctx), job.ID, 1, 0, 0, res.CostCents); err != nil {
        log.Printf("job %s: counts: %v", job.ID, err)
    }
    metrics.RowOutcomes.WithLabelValues(job.Mode, model.TaskCompleted).Inc()
    e.Broker.Publish(job.ID, model.ProgressEvent{
        JobID:          job.ID,
        Ordinal:        task.Ordinal,
        Status:         model.TaskCompleted,
        TrackingNumber: tracking,
        CostCents:      res.CostCents,
    })
}

// createWithRetry submits one shipment, retrying only on retryable carrier
// errors and only within the row's retry budget. The adapter itself never
// retries a create, so the total submission count is bounded here.
func (e *Engine) createWithRetry(ctx context.Context, jobID string, ordinal int, req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
    attempts := e.RowRetries
    if attempts <= 0 { attempts = 1 }
    var lastErr error
    for attempt := 1; attempt <= attempts; attempt++ {
        start := time.Now()
        // A cancel must never abort an in-flight create: aborting mid-call
        // leaves "did it ship or not" unknowable. The row runs to a real
        // carrier outcome; cancellation lands at the next row boundary.
        res, err := e.Carrier.CreateShipment(context.WithoutCancel(ctx), req)
        metrics.CarrierLatency.WithLabelValues("ship").Observe(float64(time.Since(start).Milliseconds()))
        if err == nil {
            metrics.CarrierCalls.WithLabelValues("ship", "ok").Inc()
            return res, nil
        }
        metrics.CarrierCalls.WithLabelValues("ship", errcode.CodeOf(err)).Inc()
        lastErr = err
        if !errcode.IsRetryable(err) || attempt == attempts {
            break
        }
        base := e.RetryDelay
        if base <= 0 { base = rowRetryBase }
        delay := base << (attempt - 1)
        log.Printf("job %s row %d: carrier error %s, retry %d/%d in %s",
            jobID, ordinal, errcode.CodeOf(err), attempt, attempts-1, delay)
        select {
        case <-time.After(delay):
        case <-ctx.Done():
            return carrier.ShipmentResult{}, lastErr
        }
    }
    return carrier.ShipmentResult{}, lastErr
}

func (e *Engine) failRow(ctx context.Context, job model.Job, task *model.ShipmentTask, status string, err error) {
    code := errcode.CodeOf(err)
    if serr := e.Store.FailTask(context.WithoutCancel(ctx), task.ID, status, code, err.Error(), errcode.IsRetryable(err)); serr != nil {
        log.Printf("job %s row %d: fail: %v", job.ID, task.Ordinal, serr)
        return
    }
    failed, review := 0, 0
    if status == model.TaskNeedsReview { review = 1 } else { failed = 1 }
    if serr := e.Store.AddJobCounts(context.WithoutCancel(ctx), job.ID, 0, failed, review, 0); serr != nil {
        log.Printf("job %s: counts: %v", job.ID, serr)
    }
    metrics.RowOutcomes.WithLabelValues(job.Mode, status).Inc()
    e.Broker.Publish(job.ID, model.ProgressEvent{
        JobID:        job.ID,
        Ordinal:      task.Ordinal,
        Status:       status,
        ErrorCode:    code,
        ErrorMessage: err.Error(),
    })
}

// issueError folds the first fatal validation issue into an engine error.
func issueError(issues []model.Issue) *errcode.Error {
    for _, is := range issues {
        if is.Severity != model.SeverityError { continue }
        return errcode.New(issueCode(is.Code), is.Message)
    }
    return errcode.New(errcode.CodeInternal, "validation failed")
}

// issueCode maps validator finding codes onto registry codes.
func issueCode(code string) string {
    switch code {
    case "MISSING_DESTINATION_COUNTRY":
        return errcode.CodeMissingField
    case "INVALID_WEIGHT", "WEIGHT_EXCEEDS_PACKAGING_LIMIT", "WEIGHT_EXCEEDS_SERVICE_LIMIT":
        return errcode.CodeInvalidWeight
    case "INTERNATIONAL_PACKAGING_DOMESTIC":
        return errcode.CodePackaging
    case "UNSUPPORTED_LANE":
        return errcode.CodeUnsupportedLane
    case "SERVICE_UNAVAILABLE_FOR_LANE":
        return errcode.CodeLaneService
    case "CURRENCY_MISMATCH":
        return errcode.CodeCurrencyMismatch
    case "INVALID_HS_CODE":
        return errcode.CodeHSCode
    default:
        if strings.HasPrefix(code, "MISSING_") || strings.HasPrefix(code, "INVALID_") {
            return errcode.CodeIntlField
        }
        return errcode.CodeInternal
    }
}
