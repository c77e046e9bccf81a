package batch

import (
	"context"
	"os"
	"testing"
	"time"

	"shipbatch/internal/carrier"
	"shipbatch/internal/errcode"
	"shipbatch/internal/events"
	"shipbatch/internal/labels"
	"shipbatch/internal/model"
	"shipbatch/internal/payload"
	"shipbatch/internal/store"
)

func testShipper() model.ShipperContext {
	return model.ShipperContext{
		AccountNumber: "A1B2C3",
		Address: model.Address{
			Name:          "Acme Fulfillment",
			AttentionName: "Dock 4",
			Phone:         "206-555-0100",
			Line1:         "500 Warehouse Way",
			City:          "Seattle",
			StateProvince: "WA",
			PostalCode:    "98101",
			CountryCode:   "US",
		},
	}
}

func testRecord(name string) model.OrderRecord {
	return model.OrderRecord{
		Recipient: model.Address{
			Name:          name,
			Phone:         "415-555-0199",
			Line1:         "1 Market St",
			City:          "San Francisco",
			StateProvince: "CA",
			PostalCode:    "94105",
			CountryCode:   "US",
		},
		WeightLbs:     2.0,
		PackagingCode: "02",
		OrderNumber:   "SO-1001",
	}
}

func testEngine(t *testing.T, fake *carrier.Fake) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	eng := NewEngine(st, fake, labels.NewLocal(t.TempDir()), events.NewBroker())
	eng.RetryDelay = time.Millisecond
	return eng, st
}

func mustCreateJob(t *testing.T, eng *Engine, n int) model.Job {
	t.Helper()
	records := make([]model.OrderRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, testRecord("Recipient"))
	}
	job, err := eng.CreateJob(context.Background(), "orders", model.ModeExecute, testShipper(), records)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestCreateJobRejectsEmptyInput(t *testing.T) {
	eng, _ := testEngine(t, &carrier.Fake{})
	_, err := eng.CreateJob(context.Background(), "empty", model.ModeExecute, testShipper(), nil)
	if err == nil {
		t.Fatal("expected error for empty job")
	}
	if errcode.CodeOf(err) != errcode.CodeEmptyJob {
		t.Fatalf("code = %s, want %s", errcode.CodeOf(err), errcode.CodeEmptyJob)
	}
}

func TestExecuteProcessesEveryRow(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 3)

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Successful != 3 || res.Failed != 0 || res.NeedsReview != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.TotalCostCents != 3750 {
		t.Fatalf("total cost = %d, want 3750", res.TotalCostCents)
	}
	if fake.CreateCalls != 3 {
		t.Fatalf("carrier calls = %d, want 3", fake.CreateCalls)
	}

	tasks, err := st.ListTasks(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	for i, task := range tasks {
		if task.Ordinal != i+1 {
			t.Fatalf("task %d ordinal = %d", i, task.Ordinal)
		}
		if task.Status != model.TaskCompleted {
			t.Fatalf("row %d status = %s", task.Ordinal, task.Status)
		}
		if task.TrackingNumber == "" {
			t.Fatalf("row %d missing tracking number", task.Ordinal)
		}
		if task.PayloadSnapshot == "" {
			t.Fatalf("row %d missing payload snapshot", task.Ordinal)
		}
		if _, err := os.Stat(task.LabelPath); err != nil {
			t.Fatalf("row %d label not on disk: %v", task.Ordinal, err)
		}
	}

	got, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobCompleted {
		t.Fatalf("job status = %s", got.Status)
	}
}

func TestExecuteFatalValidationSkipsCarrier(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)

	rec := testRecord("No Country")
	rec.Recipient.CountryCode = ""
	job, err := eng.CreateJob(context.Background(), "bad", model.ModeExecute, testShipper(), []model.OrderRecord{rec})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.NeedsReview != 1 || res.Successful != 0 {
		t.Fatalf("result = %+v", res)
	}
	if fake.CreateCalls != 0 {
		t.Fatalf("carrier called %d times for unshippable row", fake.CreateCalls)
	}

	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if tasks[0].Status != model.TaskNeedsReview {
		t.Fatalf("status = %s", tasks[0].Status)
	}
	if tasks[0].ErrorCode != errcode.CodeMissingField {
		t.Fatalf("error code = %s, want %s", tasks[0].ErrorCode, errcode.CodeMissingField)
	}
}

func TestExecuteRetriesRetryableCarrierErrors(t *testing.T) {
	fake := &carrier.Fake{}
	calls := 0
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		calls++
		if calls < 3 {
			return carrier.ShipmentResult{}, errcode.New(errcode.CodeCarrierDown, "503")
		}
		return carrier.ShipmentResult{
			ShipmentID: "1Z999", TrackingNumber: "1Z999",
			LabelB64: carrier.FakeLabel, CostCents: 900, Currency: "USD",
		}, nil
	}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 1)

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Fatalf("create attempts = %d, want 3", calls)
	}
	if res.Successful != 1 {
		t.Fatalf("result = %+v", res)
	}
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if tasks[0].TrackingNumber != "1Z999" {
		t.Fatalf("tracking = %q", tasks[0].TrackingNumber)
	}
}

func TestExecuteDoesNotRetryNonRetryableErrors(t *testing.T) {
	fake := &carrier.Fake{}
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		return carrier.ShipmentResult{}, errcode.New(errcode.CodeBadAddress, "address not found")
	}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 2)

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// A failed row never aborts the batch; the next row still runs.
	if res.Failed != 2 || res.Successful != 0 {
		t.Fatalf("result = %+v", res)
	}
	if fake.CreateCalls != 2 {
		t.Fatalf("create attempts = %d, want 2 (one per row)", fake.CreateCalls)
	}
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	for _, task := range tasks {
		if task.Status != model.TaskFailed {
			t.Fatalf("row %d status = %s", task.Ordinal, task.Status)
		}
		if task.ErrorCode != errcode.CodeBadAddress {
			t.Fatalf("row %d code = %s", task.Ordinal, task.ErrorCode)
		}
	}
}

func TestExecuteResumesFromPendingRows(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 3)

	// Simulate a prior run that died after row 1.
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if err := st.CompleteTask(context.Background(), tasks[0].ID, "1ZPRIOR", "", 1000, "USD"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := st.SetJobStatus(context.Background(), job.ID, model.JobRunning, "", ""); err != nil {
		t.Fatalf("SetJobStatus: %v", err)
	}

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.CreateCalls != 2 {
		t.Fatalf("create calls = %d, want 2 (row 1 already done)", fake.CreateCalls)
	}
	if res.Successful != 3 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := st.GetTask(context.Background(), tasks[0].ID)
	if got.TrackingNumber != "1ZPRIOR" {
		t.Fatalf("completed row was reprocessed: tracking = %q", got.TrackingNumber)
	}
}

func TestExecuteRejectsTerminalJob(t *testing.T) {
	eng, st := testEngine(t, &carrier.Fake{})
	job := mustCreateJob(t, eng, 1)
	if _, err := eng.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := eng.Execute(context.Background(), job.ID); err == nil {
		t.Fatal("expected error executing completed job")
	}
	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.JobCompleted {
		t.Fatalf("job status = %s", got.Status)
	}
}

func TestCancelStopsAtRowBoundary(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 3)

	// Cancel while the first row is in flight: it must still complete, and
	// the remaining rows must stay pending.
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		eng.Cancel(job.ID)
		return carrier.ShipmentResult{
			ShipmentID: "1Z001", TrackingNumber: "1Z001",
			LabelB64: carrier.FakeLabel, CostCents: 1250, Currency: "USD",
		}, nil
	}

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Cancelled {
		t.Fatal("result not marked cancelled")
	}
	if res.Successful != 1 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.JobCancelled {
		t.Fatalf("job status = %s", got.Status)
	}
	pending, _ := st.ListTasksByStatus(context.Background(), job.ID, model.TaskPending)
	if len(pending) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(pending))
	}
}

// ctxCarrier forwards CreateShipment to a func that sees the context the
// engine hands over, the way the real HTTP adapter does.
type ctxCarrier struct {
	*carrier.Fake
	create func(context.Context, payload.ShipmentRequest) (carrier.ShipmentResult, error)
}

func (c *ctxCarrier) CreateShipment(ctx context.Context, req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
	return c.create(ctx, req)
}

func TestCancelDoesNotAbortInFlightCreate(t *testing.T) {
	cc := &ctxCarrier{Fake: &carrier.Fake{}}
	st := store.NewMemory()
	eng := NewEngine(st, cc, labels.NewLocal(t.TempDir()), events.NewBroker())
	eng.RetryDelay = time.Millisecond
	job := mustCreateJob(t, eng, 3)

	// The adapter builds its HTTP request from this context; a cancel that
	// reached the in-flight create would abort a shipment that may already
	// exist at the carrier.
	cc.create = func(ctx context.Context, req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		eng.Cancel(job.ID)
		if err := ctx.Err(); err != nil {
			return carrier.ShipmentResult{}, errcode.Newf(errcode.CodeCarrierDown, "carrier request: %v", err)
		}
		return carrier.ShipmentResult{
			ShipmentID: "1Z900", TrackingNumber: "1Z900",
			LabelB64: carrier.FakeLabel, CostCents: 1250, Currency: "USD",
		}, nil
	}

	res, err := eng.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Cancelled {
		t.Fatal("result not marked cancelled")
	}
	if res.Successful != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if tasks[0].Status != model.TaskCompleted || tasks[0].TrackingNumber != "1Z900" {
		t.Fatalf("in-flight row = %+v", tasks[0])
	}
	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.JobCancelled {
		t.Fatalf("job status = %s", got.Status)
	}
	pending, _ := st.ListTasksByStatus(context.Background(), job.ID, model.TaskPending)
	if len(pending) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(pending))
	}
}

func TestExecuteRejectsPreviewModeJob(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)
	job, err := eng.CreateJob(context.Background(), "dry-run", model.ModePreview, testShipper(), []model.OrderRecord{testRecord("Recipient")})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := eng.Execute(context.Background(), job.ID); err == nil {
		t.Fatal("expected error executing preview-mode job")
	}
	if fake.CreateCalls != 0 {
		t.Fatalf("carrier called %d times for preview-mode job", fake.CreateCalls)
	}
	pending, _ := st.ListTasksByStatus(context.Background(), job.ID, model.TaskPending)
	if len(pending) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(pending))
	}
}

func TestExecuteTrackingFallsBackToShipmentID(t *testing.T) {
	fake := &carrier.Fake{}
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		return carrier.ShipmentResult{
			ShipmentID: "1ZREAL123", TrackingNumber: "1ZXXXX0000",
			LabelB64: carrier.FakeLabel, CostCents: 1250, Currency: "USD",
		}, nil
	}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 1)
	if _, err := eng.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if tasks[0].TrackingNumber != "1ZREAL123" {
		t.Fatalf("tracking = %q, want shipment id fallback", tasks[0].TrackingNumber)
	}
}

func TestExecutePublishesProgressEvents(t *testing.T) {
	fake := &carrier.Fake{}
	st := store.NewMemory()
	broker := events.NewBroker()
	eng := NewEngine(st, fake, labels.NewLocal(t.TempDir()), broker)
	eng.RetryDelay = time.Millisecond

	job := mustCreateJob(t, eng, 2)
	ch := broker.Subscribe(job.ID)
	defer broker.Unsubscribe(job.ID, ch)

	if _, err := eng.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for want := 1; want <= 2; want++ {
		select {
		case evt := <-ch:
			if evt.Ordinal != want || evt.Status != model.TaskCompleted {
				t.Fatalf("event = %+v, want ordinal %d completed", evt, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event for row %d", want)
		}
	}
}

func TestPreviewSamplesAndExtrapolates(t *testing.T) {
	fake := &carrier.Fake{}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 25)

	res, err := eng.Preview(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(res.Rows) != 20 {
		t.Fatalf("sampled rows = %d, want 20", len(res.Rows))
	}
	if res.AdditionalRows != 5 {
		t.Fatalf("additional rows = %d, want 5", res.AdditionalRows)
	}
	// 25 rows at the flat fake rate of 1250.
	if res.TotalEstimatedCostCents != 25*1250 {
		t.Fatalf("estimate = %d, want %d", res.TotalEstimatedCostCents, 25*1250)
	}
	if fake.QuoteCalls != 20 {
		t.Fatalf("quote calls = %d, want 20", fake.QuoteCalls)
	}
	if fake.CreateCalls != 0 {
		t.Fatal("preview must never create shipments")
	}

	// Preview leaves the job untouched.
	tasks, _ := st.ListTasksByStatus(context.Background(), job.ID, model.TaskPending)
	if len(tasks) != 25 {
		t.Fatalf("pending rows after preview = %d, want 25", len(tasks))
	}
	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.JobPending {
		t.Fatalf("job status = %s", got.Status)
	}
}

func TestPreviewMarksUnshippableRows(t *testing.T) {
	fake := &carrier.Fake{}
	eng, _ := testEngine(t, fake)

	bad := testRecord("Heavy")
	bad.WeightLbs = 200
	job, err := eng.CreateJob(context.Background(), "mixed", model.ModeExecute, testShipper(),
		[]model.OrderRecord{testRecord("Fine"), bad})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	res, err := eng.Preview(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if res.Rows[0].NotShippable {
		t.Fatal("row 1 marked unshippable")
	}
	if !res.Rows[1].NotShippable {
		t.Fatal("overweight row not marked unshippable")
	}
	if fake.QuoteCalls != 1 {
		t.Fatalf("quote calls = %d, want 1 (unshippable row skipped)", fake.QuoteCalls)
	}
	// The unshippable row contributes zero but stays in the average.
	if res.TotalEstimatedCostCents != 1250 {
		t.Fatalf("estimate = %d, want 1250", res.TotalEstimatedCostCents)
	}
}

func TestRetryTaskRecordsFreshAttempt(t *testing.T) {
	fake := &carrier.Fake{}
	fail := true
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		if fail {
			return carrier.ShipmentResult{}, errcode.New(errcode.CodeBadAddress, "address not found")
		}
		return carrier.ShipmentResult{
			ShipmentID: "1ZFIXED", TrackingNumber: "1ZFIXED",
			LabelB64: carrier.FakeLabel, CostCents: 1400, Currency: "USD",
		}, nil
	}
	eng, st := testEngine(t, fake)
	job := mustCreateJob(t, eng, 1)
	if _, err := eng.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	tasks, _ := st.ListTasks(context.Background(), job.ID)
	failedID := tasks[0].ID

	fail = false
	retried, err := eng.RetryTask(context.Background(), failedID)
	if err != nil {
		t.Fatalf("RetryTask: %v", err)
	}
	if retried.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", retried.Attempt)
	}
	if retried.Status != model.TaskCompleted || retried.TrackingNumber != "1ZFIXED" {
		t.Fatalf("retried = %+v", retried)
	}

	// The failed attempt is untouched and still on record.
	prior, _ := st.GetTask(context.Background(), failedID)
	if prior.Status != model.TaskFailed {
		t.Fatalf("prior attempt status = %s", prior.Status)
	}

	// Counters reflect the latest attempt per row.
	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Successful != 1 || got.Failed != 0 {
		t.Fatalf("job counts = %d ok / %d failed", got.Successful, got.Failed)
	}
}

func TestRetryTaskRejectsPendingTask(t *testing.T) {
	eng, st := testEngine(t, &carrier.Fake{})
	job := mustCreateJob(t, eng, 1)
	tasks, _ := st.ListTasks(context.Background(), job.ID)
	if _, err := eng.RetryTask(context.Background(), tasks[0].ID); err == nil {
		t.Fatal("expected error retrying pending task")
	}
}
