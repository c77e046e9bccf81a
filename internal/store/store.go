package store

import (
    "context"
    "errors"

    "shipbatch/internal/model"
)

// Store is the persistence interface used by the engine and the API server.
// Every row outcome is persisted before the engine moves to the next row, so
// implementations must make each write durable before returning.
type Store interface {
    // Jobs
    CreateJob(ctx context.Context, job *model.Job, tasks []model.ShipmentTask) error
    GetJob(ctx context.Context, id string) (model.Job, error)
    ListJobs(ctx context.Context, status string, limit int) ([]model.Job, error)
    SetJobStatus(ctx context.Context, id, status, errCode, errMsg string) error
    AddJobCounts(ctx context.Context, id string, successful, failed, needsReview int, costCents int64) error
    ListInterruptedJobs(ctx context.Context) ([]model.InterruptedJob, error)
    // ReconcileJob recomputes job counters from persisted task outcomes and
    // returns the corrected job. Source of truth after a crash is the task
    // table, not the in-memory tally that died with the process.
    ReconcileJob(ctx context.Context, id string) (model.Job, error)

    // Tasks
    GetTask(ctx context.Context, id string) (model.ShipmentTask, error)
    ListTasks(ctx context.Context, jobID string) ([]model.ShipmentTask, error)
    ListTasksByStatus(ctx context.Context, jobID, status string) ([]model.ShipmentTask, error)
    SaveTaskPayload(ctx context.Context, id, serviceCode, snapshot string) error
    // CompleteTask and FailTask transition a pending task to a terminal
    // state. Transitioning a task that is not pending returns ErrTerminal.
    CompleteTask(ctx context.Context, id, tracking, labelPath string, costCents int64, currency string) error
    FailTask(ctx context.Context, id, status, errCode, errMsg string, retryable bool) error
    // InsertTaskAttempt records a fresh attempt for an ordinal whose prior
    // attempt reached a terminal state. Prior attempts are never mutated.
    InsertTaskAttempt(ctx context.Context, task *model.ShipmentTask) error
}

var ErrNotFound = errors.New("not found")

// ErrTerminal is returned when a write targets a task already in a terminal
// state. Completed and failed outcomes are immutable audit records.
var ErrTerminal = errors.New("task already in terminal state")
