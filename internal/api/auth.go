// Package api implements HTTP handlers for the batch shipment service.
package api

import (
    "net/http"
    "strings"

    "shipbatch/internal/auth"
)

// getPrincipal extracts subject and role from the request.
// - If Authorization: Bearer is present, uses the configured verifier
//   (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return pr
        }
    }
    subject := r.Header.Get("X-Subject")
    role := r.Header.Get("X-Role")
    if subject == "" { subject = "dev" }
    if role == "" { role = auth.RoleOperator }
    return auth.Principal{Subject: subject, Role: strings.ToLower(role)}
}

// requireOperator rejects the request unless the principal may mutate jobs.
func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request) bool {
    p := s.getPrincipal(r)
    if !p.CanExecute() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "operator role required", r.URL.Path)
        return false
    }
    return true
}
