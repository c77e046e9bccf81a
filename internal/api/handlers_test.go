package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shipbatch/internal/auth"
	"shipbatch/internal/batch"
	"shipbatch/internal/carrier"
	"shipbatch/internal/errcode"
	"shipbatch/internal/events"
	"shipbatch/internal/labels"
	"shipbatch/internal/model"
	"shipbatch/internal/payload"
	"shipbatch/internal/store"
)

func testServer(t *testing.T) (*Server, *carrier.Fake) {
	t.Helper()
	fake := &carrier.Fake{}
	st := store.NewMemory()
	broker := events.NewBroker()
	lb := labels.NewLocal(t.TempDir())
	eng := batch.NewEngine(st, fake, lb, broker)
	eng.RetryDelay = time.Millisecond
	return &Server{
		Store:   st,
		Carrier: fake,
		Engine:  eng,
		Labels:  lb,
		Broker:  broker,
		Auth:    auth.NewVerifierFromEnv(),
		Shipper: model.ShipperContext{
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
		},
	}, fake
}

func jobBody(rows int) []byte {
	records := make([]map[string]any, 0, rows)
	for i := 0; i < rows; i++ {
		records = append(records, map[string]any{
			"recipient": map[string]any{
				"name":              "Test Recipient",
				"phone":             "415-555-0199",
				"addressLine1":      "1 Market St",
				"city":              "San Francisco",
				"stateProvinceCode": "CA",
				"postalCode":        "94105",
				"countryCode":       "US",
			},
			"weightLbs":     2.0,
			"packagingCode": "02",
		})
	}
	b, _ := json.Marshal(map[string]any{"name": "orders", "records": records})
	return b
}

func createJob(t *testing.T, s *Server, rows int) model.Job {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(jobBody(rows)))
	w := httptest.NewRecorder()
	s.JobsHandler(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create job status = %d: %s", w.Code, w.Body.String())
	}
	var job model.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return job
}

func TestCreateJobAndGet(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 2)
	if job.ID == "" || job.TotalRows != 2 || job.Status != model.JobPending {
		t.Fatalf("job = %+v", job)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID, nil)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get job status = %d", w.Code)
	}
}

func TestCreateJobEmptyRowsRejected(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(map[string]any{"name": "empty", "records": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.JobsHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var prob Problem
	_ = json.Unmarshal(w.Body.Bytes(), &prob)
	if prob.Code != "SB-1002" {
		t.Fatalf("problem code = %q", prob.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	s, fake := testServer(t)
	job := createJob(t, s, 3)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID+"/preview", nil)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res model.PreviewResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TotalRows != 3 || len(res.Rows) != 3 {
		t.Fatalf("preview = %+v", res)
	}
	if res.TotalEstimatedCostCents != 3750 {
		t.Fatalf("estimate = %d", res.TotalEstimatedCostCents)
	}
	if fake.CreateCalls != 0 {
		t.Fatal("preview created shipments")
	}
}

func TestExecuteWaitReturnsResult(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 2)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID+"/execute?wait=1", nil)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res model.ExecuteResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Successful != 2 || res.TotalCostCents != 2500 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteRequiresOperator(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 1)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID+"/execute", nil)
	req.Header.Set("X-Role", auth.RoleViewer)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestListTasksAfterExecute(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 2)
	if _, err := s.Engine.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/tasks", nil)
	w := httptest.NewRecorder()
	s.JobByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		Items []model.ShipmentTask `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d", len(res.Items))
	}
	for _, task := range res.Items {
		if task.Status != model.TaskCompleted {
			t.Fatalf("task %d status = %s", task.Ordinal, task.Status)
		}
	}
}

func TestTaskLabelDownload(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 1)
	if _, err := s.Engine.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	tasks, _ := s.Store.ListTasks(context.Background(), job.ID)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+tasks[0].ID+"/label", nil)
	w := httptest.NewRecorder()
	s.TaskByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Fatal("body is not a PDF")
	}
}

func TestRetryEndpoint(t *testing.T) {
	s, fake := testServer(t)
	fail := true
	fake.CreateFn = func(req payload.ShipmentRequest) (carrier.ShipmentResult, error) {
		if fail {
			return carrier.ShipmentResult{}, errcode.New(errcode.CodeBadAddress, "address not found")
		}
		return carrier.ShipmentResult{
			ShipmentID: "1ZFIXED", TrackingNumber: "1ZFIXED",
			LabelB64: carrier.FakeLabel, CostCents: 1100, Currency: "USD",
		}, nil
	}
	job := createJob(t, s, 1)
	if _, err := s.Engine.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	tasks, _ := s.Store.ListTasks(context.Background(), job.ID)

	fail = false
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks/"+tasks[0].ID+"/retry", nil)
	w := httptest.NewRecorder()
	s.TaskByIDHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var task model.ShipmentTask
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Attempt != 2 || task.Status != model.TaskCompleted {
		t.Fatalf("task = %+v", task)
	}

	// Retrying a completed task conflicts: it would ship the row twice.
	req = httptest.NewRequest(http.MethodPost, "/v1/tasks/"+task.ID+"/retry", nil)
	w = httptest.NewRecorder()
	s.TaskByIDHandler(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestInterruptedJobsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 2)
	// Simulate a crash: job running with one row done.
	tasks, _ := s.Store.ListTasks(context.Background(), job.ID)
	_ = s.Store.SetJobStatus(context.Background(), job.ID, model.JobRunning, "", "")
	_ = s.Store.CompleteTask(context.Background(), tasks[0].ID, "1Z1", "", 1000, "USD")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/interrupted", nil)
	w := httptest.NewRecorder()
	s.InterruptedJobsHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		Items []model.InterruptedJob `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].CompletedRows != 1 || res.Items[0].RemainingRows != 1 {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestVoidEndpoint(t *testing.T) {
	s, fake := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/shipments/1Z999/void", nil)
	w := httptest.NewRecorder()
	s.ShipmentsHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res carrier.VoidResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Voided {
		t.Fatalf("result = %+v", res)
	}
	if fake.VoidCalls != 1 {
		t.Fatalf("void calls = %d", fake.VoidCalls)
	}
}

func TestRateShopEndpoint(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(map[string]any{
		"record": map[string]any{
			"recipient": map[string]any{
				"name":              "Test Recipient",
				"addressLine1":      "1 Market St",
				"city":              "San Francisco",
				"stateProvinceCode": "CA",
				"postalCode":        "94105",
				"countryCode":       "US",
			},
			"weightLbs": 2.0,
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/rates/shop", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.RateShopHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Quotes []carrier.RateQuote `json:"quotes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Quotes) != 3 {
		t.Fatalf("quotes = %+v", res.Quotes)
	}
}

func TestAddressValidateEndpoint(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(map[string]any{
		"addressLine1":      "1 Market St",
		"city":              "San Francisco",
		"stateProvinceCode": "CA",
		"postalCode":        "94105",
		"countryCode":       "US",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/address/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.AddressValidateHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res carrier.AddressVerdict
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != carrier.AddressValid {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestSSEStreamDeliversEvents(t *testing.T) {
	s, _ := testServer(t)
	job := createJob(t, s, 1)

	srv := httptest.NewServer(http.HandlerFunc(s.JobByIDHandler))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/jobs/"+job.ID+"/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Give the subscriber a moment to register, then run the batch.
	time.Sleep(50 * time.Millisecond)
	if _, err := s.Engine.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	buf := make([]byte, 4096)
	deadline := time.Now().Add(3 * time.Second)
	var got strings.Builder
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
			if strings.Contains(got.String(), "event: progress") {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if !strings.Contains(got.String(), "event: progress") {
		t.Fatalf("no progress event in stream: %q", got.String())
	}
}
