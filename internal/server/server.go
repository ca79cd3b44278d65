// Package server exposes the table manager over HTTP.
//
// The layer is deliberately thin: it resolves the caller identity from a
// trusted reverse-proxy header, parses table keys out of the path, and maps
// the manager's typed failures to status codes. All authorization decisions
// live in the manager.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sdtp-io/tablehub/internal/config"
	"github.com/sdtp-io/tablehub/internal/objstore"
	"github.com/sdtp-io/tablehub/internal/tables"
)

// Server holds the handler dependencies.
type Server struct {
	mgr        *tables.Manager
	userHeader string
}

// NewRouter builds the HTTP handler tree for the service.
func NewRouter(mgr *tables.Manager, cfg config.Config) http.Handler {
	s := &Server{mgr: mgr, userHeader: cfg.UserHeader}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/tables", s.listTables)
	mux.HandleFunc("GET /api/tables/schemas", s.schemas)
	mux.HandleFunc("POST /api/tables/{owner}/{name}", s.publish)
	mux.HandleFunc("GET /api/tables/{owner}/{name}", s.getTable)
	mux.HandleFunc("DELETE /api/tables/{owner}/{name}", s.deleteTable)
	mux.HandleFunc("GET /api/tables/{owner}/{name}/schema", s.schema)
	mux.HandleFunc("GET /api/tables/{owner}/{name}/values", s.values)
	mux.HandleFunc("GET /api/tables/{owner}/{name}/column", s.column)
	mux.HandleFunc("GET /api/tables/{owner}/{name}/range", s.rangeSpec)
	mux.HandleFunc("GET /api/tables/{owner}/{name}/access", s.getAccess)
	mux.HandleFunc("POST /api/tables/{owner}/{name}/access", s.updateAccess)

	return RateLimit(mux, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// identity resolves the caller from the trusted proxy header. verified is
// true iff the header carried a name at all; anonymous requests still reach
// the manager, which then applies PUBLIC grants only.
func (s *Server) identity(r *http.Request) (identity string, verified bool) {
	identity = r.Header.Get(s.userHeader)
	return identity, identity != ""
}

// writeJSON serializes v with a 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus serializes v with the given status code. The content type
// must be set before the status is written or it is silently dropped.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the manager's failure kinds onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tables.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tables.ErrNotPermitted), errors.Is(err, tables.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, tables.ErrInvalidKey),
		errors.Is(err, tables.ErrMalformedTable),
		errors.Is(err, tables.ErrNoSuchColumn):
		status = http.StatusBadRequest
	case errors.Is(err, objstore.ErrUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Handler error", "path", r.URL.Path, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: err.Error()}); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
