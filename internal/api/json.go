package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"shipbatch/internal/errcode"
	"shipbatch/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps store sentinels and registry errors onto problem responses.
func writeError(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), instance)
		return
	case errors.Is(err, store.ErrTerminal):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error(), instance)
		return
	}
	var e *errcode.Error
	if errors.As(err, &e) {
		status := http.StatusInternalServerError
		switch e.Code {
		case errcode.CodeEmptyJob, errcode.CodeMissingField:
			status = http.StatusBadRequest
		case errcode.CodeBadCredentials:
			status = http.StatusBadGateway
		case errcode.CodeRateLimited:
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, Problem{
			Type:     "about:blank",
			Title:    e.Message,
			Status:   status,
			Detail:   e.Remediation,
			Instance: instance,
			Code:     e.Code,
		})
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), instance)
}
