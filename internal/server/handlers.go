package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sdtp-io/tablehub/internal/tables"
)

// maxTableBytes caps an uploaded table document.
const maxTableBytes = 32 << 20

// pathKey assembles the table key from the route's owner and name segments.
// A name without the .sdml suffix gets it appended, matching the upload
// behavior of SDML clients.
func pathKey(r *http.Request) (tables.Key, error) {
	name := r.PathValue("name")
	if !strings.HasSuffix(name, tables.TableSuffix) {
		name += tables.TableSuffix
	}
	return tables.NewKey(r.PathValue("owner"), name)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// listTables returns the keys of every table the caller may read.
func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	identity, verified := s.identity(r)
	keys, err := s.mgr.ListAccessible(r.Context(), identity, verified)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	writeJSON(w, names)
}

// schemas returns a map of accessible table key to schema.
func (s *Server) schemas(w http.ResponseWriter, r *http.Request) {
	identity, verified := s.identity(r)
	result, err := s.mgr.AccessibleSchemas(r.Context(), identity, verified)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// publish stores a table under the caller's own prefix. The body is either
// the SDML document itself or a JSON envelope {"table": ...} whose value is
// the document as an object or an embedded string.
func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if identity == "" || identity != key.Owner {
		writeError(w, r, fmt.Errorf("only %s may publish under %s/: %w", key.Owner, key.Owner, tables.ErrNotOwner))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTableBytes))
	if err != nil {
		writeError(w, r, fmt.Errorf("read body: %w", err))
		return
	}
	raw := unwrapTableBody(body)
	if err := s.mgr.Publish(r.Context(), key, raw); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"key": key.String()})
}

// unwrapTableBody accepts the three upload shapes: a bare SDML document, an
// envelope with an embedded object, or an envelope with the document as a
// JSON string.
func unwrapTableBody(body []byte) []byte {
	var envelope struct {
		Table json.RawMessage `json:"table"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Table) == 0 {
		return body
	}
	var embedded string
	if err := json.Unmarshal(envelope.Table, &embedded); err == nil {
		return []byte(embedded)
	}
	return envelope.Table
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	identity, verified := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	table, err := s.mgr.GetIfPermitted(r.Context(), key, identity, verified)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, table)
}

// deleteTable removes a table and its permission record. Owner-only.
func (s *Server) deleteTable(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.mgr.Permissions(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if identity == "" || identity != rec.Owner {
		writeError(w, r, fmt.Errorf("%s: %w", key, tables.ErrNotOwner))
		return
	}
	if err := s.mgr.Delete(r.Context(), key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"deleted": key.String()})
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	table, ok := s.permittedTable(w, r)
	if !ok {
		return
	}
	writeJSON(w, table.Schema)
}

func (s *Server) values(w http.ResponseWriter, r *http.Request) {
	table, ok := s.permittedTable(w, r)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	values, err := table.DistinctValues(column)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, values)
}

func (s *Server) column(w http.ResponseWriter, r *http.Request) {
	table, ok := s.permittedTable(w, r)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	values, err := table.Column(column)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, values)
}

func (s *Server) rangeSpec(w http.ResponseWriter, r *http.Request) {
	table, ok := s.permittedTable(w, r)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	minVal, maxVal, err := table.Range(column)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"min_val": minVal, "max_val": maxVal})
}

// permittedTable resolves the path key and loads the table with the
// existence-before-permission ordering. On failure the response is written
// and ok is false.
func (s *Server) permittedTable(w http.ResponseWriter, r *http.Request) (*tables.Table, bool) {
	identity, verified := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	table, err := s.mgr.GetIfPermitted(r.Context(), key, identity, verified)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return table, true
}

func (s *Server) getAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := s.mgr.UserAccess(r.Context(), key, identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, users)
}

type updateAccessRequest struct {
	Users   []string `json:"users"`
	Replace bool     `json:"replace"`
}

func (s *Server) updateAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identity(r)
	key, err := pathKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateAccessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.mgr.UpdateAccess(r.Context(), key, identity, req.Users, req.Replace); err != nil {
		writeError(w, r, err)
		return
	}
	users, err := s.mgr.UserAccess(r.Context(), key, identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, users)
}
