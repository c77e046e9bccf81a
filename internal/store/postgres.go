package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "strconv"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "shipbatch/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, err }
    if err := db.Ping(); err != nil { return nil, err }
    p := &Postgres{db: db}
    if err := p.EnsureSchema(context.Background()); err != nil { return nil, err }
    return p, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// EnsureSchema creates the tables on first boot. Idempotent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
    id               UUID PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    mode             TEXT NOT NULL,
    status           TEXT NOT NULL,
    shipper          JSONB NOT NULL,
    total_rows       INT NOT NULL DEFAULT 0,
    successful       INT NOT NULL DEFAULT 0,
    failed           INT NOT NULL DEFAULT 0,
    needs_review     INT NOT NULL DEFAULT 0,
    total_cost_cents BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'USD',
    error_code       TEXT NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at       TIMESTAMPTZ,
    completed_at     TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS shipment_tasks (
    id               UUID PRIMARY KEY,
    job_id           UUID NOT NULL REFERENCES jobs(id),
    ordinal          INT NOT NULL,
    attempt          INT NOT NULL DEFAULT 1,
    status           TEXT NOT NULL,
    order_data       TEXT NOT NULL DEFAULT '',
    service_code     TEXT NOT NULL DEFAULT '',
    payload_snapshot TEXT NOT NULL DEFAULT '',
    tracking_number  TEXT NOT NULL DEFAULT '',
    label_path       TEXT NOT NULL DEFAULT '',
    cost_cents       BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    error_code       TEXT NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT '',
    error_retryable  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at     TIMESTAMPTZ,
    UNIQUE (job_id, ordinal, attempt)
);
CREATE INDEX IF NOT EXISTS idx_tasks_job_status ON shipment_tasks (job_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
`)
    return err
}

func fmtTime(t sql.NullTime) string {
    if !t.Valid { return "" }
    return t.Time.UTC().Format(time.RFC3339)
}

func (p *Postgres) CreateJob(ctx context.Context, job *model.Job, tasks []model.ShipmentTask) error {
    if job.ID == "" { job.ID = uuid.NewString() }
    if job.Status == "" { job.Status = model.JobPending }
    job.TotalRows = len(tasks)
    shipper, err := json.Marshal(job.Shipper)
    if err != nil { return err }

    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    var created time.Time
    err = tx.QueryRowContext(ctx, `INSERT INTO jobs (id, name, mode, status, shipper, total_rows, currency)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`,
        job.ID, job.Name, job.Mode, job.Status, shipper, job.TotalRows, orUSD(job.Currency)).Scan(&created)
    if err != nil { return err }
    job.CreatedAt = created.UTC().Format(time.RFC3339)

    for i := range tasks {
        t := &tasks[i]
        if t.ID == "" { t.ID = uuid.NewString() }
        t.JobID = job.ID
        if t.Status == "" { t.Status = model.TaskPending }
        if t.Attempt == 0 { t.Attempt = 1 }
        t.CreatedAt = job.CreatedAt
        _, err = tx.ExecContext(ctx, `INSERT INTO shipment_tasks (id, job_id, ordinal, attempt, status, order_data, service_code, payload_snapshot)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
            t.ID, t.JobID, t.Ordinal, t.Attempt, t.Status, t.OrderData, t.ServiceCode, t.PayloadSnapshot)
        if err != nil { return err }
    }
    return tx.Commit()
}

func orUSD(c string) string {
    if c == "" { return "USD" }
    return c
}

const jobCols = `id::text, name, mode, status, shipper, total_rows, successful, failed, needs_review,
    total_cost_cents, currency, error_code, error_message, created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (model.Job, error) {
    var j model.Job
    var shipper []byte
    var created time.Time
    var started, completed sql.NullTime
    err := row.Scan(&j.ID, &j.Name, &j.Mode, &j.Status, &shipper, &j.TotalRows, &j.Successful, &j.Failed,
        &j.NeedsReview, &j.TotalCostCents, &j.Currency, &j.ErrorCode, &j.ErrorMessage, &created, &started, &completed)
    if err != nil { return model.Job{}, err }
    if len(shipper) > 0 { _ = json.Unmarshal(shipper, &j.Shipper) }
    j.CreatedAt = created.UTC().Format(time.RFC3339)
    j.StartedAt = fmtTime(started)
    j.CompletedAt = fmtTime(completed)
    return j, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (model.Job, error) {
    j, err := scanJob(p.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Job{}, ErrNotFound }
    return j, err
}

func (p *Postgres) ListJobs(ctx context.Context, status string, limit int) ([]model.Job, error) {
    if limit <= 0 { limit = 100 }
    q := `SELECT ` + jobCols + ` FROM jobs`
    args := []any{}
    if status != "" {
        q += ` WHERE status=$1`
        args = append(args, status)
    }
    q += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.Job
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, err }
        out = append(out, j)
    }
    return out, rows.Err()
}

func (p *Postgres) SetJobStatus(ctx context.Context, id, status, errCode, errMsg string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE jobs SET status=$2, error_code=$3, error_message=$4,
        started_at = CASE WHEN $2='running' AND started_at IS NULL THEN now() ELSE started_at END,
        completed_at = CASE WHEN $2 IN ('completed','cancelled','failed') THEN now() ELSE completed_at END
        WHERE id=$1`, id, status, errCode, errMsg)
    if err != nil { return err }
    return mustAffect(res)
}

func mustAffect(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) AddJobCounts(ctx context.Context, id string, successful, failed, needsReview int, costCents int64) error {
    res, err := p.db.ExecContext(ctx, `UPDATE jobs SET successful=successful+$2, failed=failed+$3,
        needs_review=needs_review+$4, total_cost_cents=total_cost_cents+$5 WHERE id=$1`,
        id, successful, failed, needsReview, costCents)
    if err != nil { return err }
    return mustAffect(res)
}

func (p *Postgres) ListInterruptedJobs(ctx context.Context) ([]model.InterruptedJob, error) {
    rows, err := p.db.QueryContext(ctx, `
        SELECT j.id::text, j.name, j.total_rows,
               COUNT(t.id) FILTER (WHERE t.status <> 'pending') AS done,
               COALESCE(MAX(t.ordinal) FILTER (WHERE t.status <> 'pending'), 0) AS last_ordinal
        FROM jobs j
        LEFT JOIN shipment_tasks t ON t.job_id = j.id
        WHERE j.status = 'running'
        GROUP BY j.id, j.name, j.total_rows
        ORDER BY j.id`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.InterruptedJob
    for rows.Next() {
        var ij model.InterruptedJob
        if err := rows.Scan(&ij.JobID, &ij.Name, &ij.TotalRows, &ij.CompletedRows, &ij.LastOrdinal); err != nil {
            return nil, err
        }
        ij.RemainingRows = ij.TotalRows - ij.CompletedRows
        if ij.LastOrdinal > 0 {
            var tracking string
            err := p.db.QueryRowContext(ctx, `SELECT tracking_number FROM shipment_tasks
                WHERE job_id=$1 AND ordinal=$2 ORDER BY attempt DESC LIMIT 1`, ij.JobID, ij.LastOrdinal).Scan(&tracking)
            if err == nil { ij.LastTracking = tracking }
        }
        out = append(out, ij)
    }
    return out, rows.Err()
}

func (p *Postgres) ReconcileJob(ctx context.Context, id string) (model.Job, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE jobs j SET
        successful = agg.ok, failed = agg.bad, needs_review = agg.review, total_cost_cents = agg.cost
        FROM (SELECT
            COUNT(*) FILTER (WHERE status='completed') AS ok,
            COUNT(*) FILTER (WHERE status='failed') AS bad,
            COUNT(*) FILTER (WHERE status='needs_review') AS review,
            COALESCE(SUM(cost_cents) FILTER (WHERE status='completed'), 0) AS cost
            FROM (SELECT DISTINCT ON (ordinal) status, cost_cents
                FROM shipment_tasks WHERE job_id=$1
                ORDER BY ordinal, attempt DESC) latest) agg
        WHERE j.id=$1`, id)
    if err != nil { return model.Job{}, err }
    if err := mustAffect(res); err != nil { return model.Job{}, err }
    return p.GetJob(ctx, id)
}

const taskCols = `id::text, job_id::text, ordinal, attempt, status, order_data, service_code, payload_snapshot,
    tracking_number, label_path, cost_cents, currency, error_code, error_message, error_retryable,
    created_at, processed_at`

func scanTask(row interface{ Scan(...any) error }) (model.ShipmentTask, error) {
    var t model.ShipmentTask
    var created time.Time
    var processed sql.NullTime
    err := row.Scan(&t.ID, &t.JobID, &t.Ordinal, &t.Attempt, &t.Status, &t.OrderData, &t.ServiceCode, &t.PayloadSnapshot,
        &t.TrackingNumber, &t.LabelPath, &t.CostCents, &t.Currency, &t.ErrorCode, &t.ErrorMessage,
        &t.ErrorRetryable, &created, &processed)
    if err != nil { return model.ShipmentTask{}, err }
    t.CreatedAt = created.UTC().Format(time.RFC3339)
    t.ProcessedAt = fmtTime(processed)
    return t, nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (model.ShipmentTask, error) {
    t, err := scanTask(p.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM shipment_tasks WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.ShipmentTask{}, ErrNotFound }
    return t, err
}

func (p *Postgres) listTasks(ctx context.Context, jobID, status string) ([]model.ShipmentTask, error) {
    if _, err := p.GetJob(ctx, jobID); err != nil { return nil, err }
    q := `SELECT ` + taskCols + ` FROM shipment_tasks WHERE job_id=$1`
    args := []any{jobID}
    if status != "" {
        q += ` AND status=$2`
        args = append(args, status)
    }
    q += ` ORDER BY ordinal, attempt`
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.ShipmentTask
    for rows.Next() {
        t, err := scanTask(rows)
        if err != nil { return nil, err }
        out = append(out, t)
    }
    return out, rows.Err()
}

func (p *Postgres) ListTasks(ctx context.Context, jobID string) ([]model.ShipmentTask, error) {
    return p.listTasks(ctx, jobID, "")
}

func (p *Postgres) ListTasksByStatus(ctx context.Context, jobID, status string) ([]model.ShipmentTask, error) {
    return p.listTasks(ctx, jobID, status)
}

func (p *Postgres) SaveTaskPayload(ctx context.Context, id, serviceCode, snapshot string) error {
    return p.guardedTaskUpdate(ctx, id, `UPDATE shipment_tasks SET service_code=$2, payload_snapshot=$3
        WHERE id=$1 AND status='pending'`, serviceCode, snapshot)
}

func (p *Postgres) CompleteTask(ctx context.Context, id, tracking, labelPath string, costCents int64, currency string) error {
    return p.guardedTaskUpdate(ctx, id, `UPDATE shipment_tasks SET status='completed', tracking_number=$2,
        label_path=$3, cost_cents=$4, currency=$5, processed_at=now()
        WHERE id=$1 AND status='pending'`, tracking, labelPath, costCents, currency)
}

func (p *Postgres) FailTask(ctx context.Context, id, status, errCode, errMsg string, retryable bool) error {
    if status != model.TaskFailed && status != model.TaskNeedsReview { status = model.TaskFailed }
    return p.guardedTaskUpdate(ctx, id, `UPDATE shipment_tasks SET status=$2, error_code=$3, error_message=$4,
        error_retryable=$5, processed_at=now()
        WHERE id=$1 AND status='pending'`, status, errCode, errMsg, retryable)
}

// guardedTaskUpdate applies an update that matches only pending tasks and
// distinguishes "missing" from "already terminal".
func (p *Postgres) guardedTaskUpdate(ctx context.Context, id, query string, args ...any) error {
    all := append([]any{id}, args...)
    res, err := p.db.ExecContext(ctx, query, all...)
    if err != nil { return err }
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n > 0 { return nil }
    var status string
    err = p.db.QueryRowContext(ctx, `SELECT status FROM shipment_tasks WHERE id=$1`, id).Scan(&status)
    if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
    if err != nil { return err }
    return ErrTerminal
}

func (p *Postgres) InsertTaskAttempt(ctx context.Context, task *model.ShipmentTask) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    var maxAttempt int
    var pending int
    err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt),0),
        COUNT(*) FILTER (WHERE status='pending')
        FROM shipment_tasks WHERE job_id=$1 AND ordinal=$2`, task.JobID, task.Ordinal).Scan(&maxAttempt, &pending)
    if err != nil { return err }
    if maxAttempt == 0 { return ErrNotFound }
    if pending > 0 { return ErrTerminal }
    if task.OrderData == "" {
        err = tx.QueryRowContext(ctx, `SELECT order_data FROM shipment_tasks
            WHERE job_id=$1 AND ordinal=$2 ORDER BY attempt DESC LIMIT 1`, task.JobID, task.Ordinal).Scan(&task.OrderData)
        if err != nil { return err }
    }

    if task.ID == "" { task.ID = uuid.NewString() }
    task.Attempt = maxAttempt + 1
    task.Status = model.TaskPending
    var created time.Time
    err = tx.QueryRowContext(ctx, `INSERT INTO shipment_tasks (id, job_id, ordinal, attempt, status, order_data, service_code, payload_snapshot)
        VALUES ($1,$2,$3,$4,'pending',$5,$6,$7) RETURNING created_at`,
        task.ID, task.JobID, task.Ordinal, task.Attempt, task.OrderData, task.ServiceCode, task.PayloadSnapshot).Scan(&created)
    if err != nil { return err }
    task.CreatedAt = created.UTC().Format(time.RFC3339)
    return tx.Commit()
}
