// Package main runs a demo WebSocket client for job progress events.
// It creates a small job against a locally running API (CARRIER_FAKE=true),
// starts execution, and prints every progress event until the job finishes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type progressEvent struct {
	JobID          string `json:"jobId"`
	Ordinal        int    `json:"ordinal"`
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	CostCents      int64  `json:"costCents,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a three-row job.
	records := []map[string]any{}
	for i := 0; i < 3; i++ {
		records = append(records, map[string]any{
			"recipient": map[string]any{
				"name":              fmt.Sprintf("Demo Recipient %d", i+1),
				"phone":             "415-555-0199",
				"addressLine1":      "1 Market St",
				"city":              "San Francisco",
				"stateProvinceCode": "CA",
				"postalCode":        "94105",
				"countryCode":       "US",
			},
			"weightLbs":     2.5,
			"packagingCode": "02",
		})
	}
	body, _ := json.Marshal(map[string]any{"name": "ws-demo", "records": records})
	resp, err := http.Post(base+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("create job: %v", err)
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatalf("decode job: %v", err)
	}
	_ = resp.Body.Close()
	log.Printf("created job %s", job.ID)

	// Connect progress stream before starting execution.
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("localhost:%s", port), Path: "/v1/ws/jobs/" + job.ID}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err = http.Post(base+"/v1/jobs/"+job.ID+"/execute", "application/json", nil)
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	_ = resp.Body.Close()

	seen := 0
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for seen < len(records) {
		var evt progressEvent
		if err := conn.ReadJSON(&evt); err != nil {
			log.Fatalf("read: %v", err)
		}
		seen++
		if evt.ErrorCode != "" {
			log.Printf("row %d %s (%s)", evt.Ordinal, evt.Status, evt.ErrorCode)
			continue
		}
		log.Printf("row %d %s tracking=%s cost=%d", evt.Ordinal, evt.Status, evt.TrackingNumber, evt.CostCents)
	}
	log.Printf("job %s done, %d rows", job.ID, seen)
}
