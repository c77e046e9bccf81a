package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "shipbatch/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set, and by
// tests. Semantics mirror Postgres exactly, including terminal-state guards.
type Memory struct {
    mu    sync.Mutex
    jobs  map[string]model.Job
    tasks map[string]model.ShipmentTask
    byJob map[string][]string // job id -> task ids, insertion order
}

func NewMemory() *Memory {
    return &Memory{
        jobs:  map[string]model.Job{},
        tasks: map[string]model.ShipmentTask{},
        byJob: map[string][]string{},
    }
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func (m *Memory) CreateJob(ctx context.Context, job *model.Job, tasks []model.ShipmentTask) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if job.ID == "" { job.ID = uuid.NewString() }
    if job.Status == "" { job.Status = model.JobPending }
    if job.CreatedAt == "" { job.CreatedAt = nowRFC3339() }
    job.TotalRows = len(tasks)
    for i := range tasks {
        t := tasks[i]
        if t.ID == "" { t.ID = uuid.NewString() }
        t.JobID = job.ID
        if t.Status == "" { t.Status = model.TaskPending }
        if t.Attempt == 0 { t.Attempt = 1 }
        if t.CreatedAt == "" { t.CreatedAt = job.CreatedAt }
        m.tasks[t.ID] = t
        m.byJob[job.ID] = append(m.byJob[job.ID], t.ID)
        tasks[i] = t
    }
    m.jobs[job.ID] = *job
    return nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return model.Job{}, ErrNotFound }
    return j, nil
}

func (m *Memory) ListJobs(ctx context.Context, status string, limit int) ([]model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Job, 0, len(m.jobs))
    for _, j := range m.jobs {
        if status != "" && j.Status != status { continue }
        out = append(out, j)
    }
    sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt > out[k].CreatedAt })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) SetJobStatus(ctx context.Context, id, status, errCode, errMsg string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return ErrNotFound }
    j.Status = status
    j.ErrorCode, j.ErrorMessage = errCode, errMsg
    switch status {
    case model.JobRunning:
        if j.StartedAt == "" { j.StartedAt = nowRFC3339() }
    case model.JobCompleted, model.JobCancelled, model.JobFailed:
        j.CompletedAt = nowRFC3339()
    }
    m.jobs[id] = j
    return nil
}

func (m *Memory) AddJobCounts(ctx context.Context, id string, successful, failed, needsReview int, costCents int64) error {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return ErrNotFound }
    j.Successful += successful
    j.Failed += failed
    j.NeedsReview += needsReview
    j.TotalCostCents += costCents
    m.jobs[id] = j
    return nil
}

func (m *Memory) ListInterruptedJobs(ctx context.Context) ([]model.InterruptedJob, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.InterruptedJob
    for _, j := range m.jobs {
        if j.Status != model.JobRunning { continue }
        ij := model.InterruptedJob{JobID: j.ID, Name: j.Name, TotalRows: j.TotalRows}
        for _, tid := range m.byJob[j.ID] {
            t := m.tasks[tid]
            if t.Status == model.TaskPending { continue }
            ij.CompletedRows++
            if t.Ordinal > ij.LastOrdinal {
                ij.LastOrdinal = t.Ordinal
                ij.LastTracking = t.TrackingNumber
            }
        }
        ij.RemainingRows = ij.TotalRows - ij.CompletedRows
        out = append(out, ij)
    }
    sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
    return out, nil
}

func (m *Memory) ReconcileJob(ctx context.Context, id string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return model.Job{}, ErrNotFound }
    // Only the latest attempt per ordinal counts; earlier attempts stay as
    // audit records.
    latest := make(map[int]model.ShipmentTask)
    for _, tid := range m.byJob[id] {
        t := m.tasks[tid]
        if cur, ok := latest[t.Ordinal]; !ok || t.Attempt > cur.Attempt {
            latest[t.Ordinal] = t
        }
    }
    j.Successful, j.Failed, j.NeedsReview, j.TotalCostCents = 0, 0, 0, 0
    for _, t := range latest {
        switch t.Status {
        case model.TaskCompleted:
            j.Successful++
            j.TotalCostCents += t.CostCents
        case model.TaskFailed:
            j.Failed++
        case model.TaskNeedsReview:
            j.NeedsReview++
        }
    }
    m.jobs[id] = j
    return j, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (model.ShipmentTask, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return model.ShipmentTask{}, ErrNotFound }
    return t, nil
}

func (m *Memory) listTasksLocked(jobID, status string) []model.ShipmentTask {
    out := make([]model.ShipmentTask, 0, len(m.byJob[jobID]))
    for _, tid := range m.byJob[jobID] {
        t := m.tasks[tid]
        if status != "" && t.Status != status { continue }
        out = append(out, t)
    }
    sort.Slice(out, func(i, k int) bool {
        if out[i].Ordinal != out[k].Ordinal { return out[i].Ordinal < out[k].Ordinal }
        return out[i].Attempt < out[k].Attempt
    })
    return out
}

func (m *Memory) ListTasks(ctx context.Context, jobID string) ([]model.ShipmentTask, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.jobs[jobID]; !ok { return nil, ErrNotFound }
    return m.listTasksLocked(jobID, ""), nil
}

func (m *Memory) ListTasksByStatus(ctx context.Context, jobID, status string) ([]model.ShipmentTask, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.jobs[jobID]; !ok { return nil, ErrNotFound }
    return m.listTasksLocked(jobID, status), nil
}

func (m *Memory) SaveTaskPayload(ctx context.Context, id, serviceCode, snapshot string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return ErrNotFound }
    if t.Status != model.TaskPending { return ErrTerminal }
    t.ServiceCode = serviceCode
    t.PayloadSnapshot = snapshot
    m.tasks[id] = t
    return nil
}

func (m *Memory) CompleteTask(ctx context.Context, id, tracking, labelPath string, costCents int64, currency string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return ErrNotFound }
    if t.Status != model.TaskPending { return ErrTerminal }
    t.Status = model.TaskCompleted
    t.TrackingNumber = tracking
    t.LabelPath = labelPath
    t.CostCents = costCents
    t.Currency = currency
    t.ProcessedAt = nowRFC3339()
    m.tasks[id] = t
    return nil
}

func (m *Memory) FailTask(ctx context.Context, id, status, errCode, errMsg string, retryable bool) error {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return ErrNotFound }
    if t.Status != model.TaskPending { return ErrTerminal }
    if status != model.TaskFailed && status != model.TaskNeedsReview { status = model.TaskFailed }
    t.Status = status
    t.ErrorCode, t.ErrorMessage, t.ErrorRetryable = errCode, errMsg, retryable
    t.ProcessedAt = nowRFC3339()
    m.tasks[id] = t
    return nil
}

func (m *Memory) InsertTaskAttempt(ctx context.Context, task *model.ShipmentTask) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.jobs[task.JobID]; !ok { return ErrNotFound }
    maxAttempt := 0
    var latest model.ShipmentTask
    for _, tid := range m.byJob[task.JobID] {
        prev := m.tasks[tid]
        if prev.Ordinal == task.Ordinal {
            if prev.Status == model.TaskPending { return ErrTerminal }
            if prev.Attempt > maxAttempt {
                maxAttempt = prev.Attempt
                latest = prev
            }
        }
    }
    if maxAttempt == 0 { return ErrNotFound }
    if task.OrderData == "" { task.OrderData = latest.OrderData }
    if task.ID == "" { task.ID = uuid.NewString() }
    task.Attempt = maxAttempt + 1
    task.Status = model.TaskPending
    task.CreatedAt = nowRFC3339()
    m.tasks[task.ID] = *task
    m.byJob[task.JobID] = append(m.byJob[task.JobID], task.ID)
    return nil
}
