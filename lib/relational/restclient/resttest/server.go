package resttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// Server is an in-memory fake of the PostgREST table API, limited to the requests
// sent by restclient. Tables must be created with CreateTable before use.
type Server struct {
	*httptest.Server
	APIKey string

	mu       sync.Mutex
	tables   map[string]*table
	requests map[string]int
}

type table struct {
	columns []string
	rows    map[string]map[string]any
	order   []string
}

// NewServer starts a fake service accepting apiKey.
func NewServer(apiKey string) *Server {
	s := &Server{
		APIKey:   apiKey,
		tables:   make(map[string]*table),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// CreateTable creates an empty table. The "id" column is added if missing.
func (s *Server) CreateTable(name string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(columns, "id") {
		columns = append([]string{"id"}, columns...)
	}
	s.tables[name] = &table{columns: columns, rows: make(map[string]map[string]any)}
}

// Requests returns the number of requests received for method and table.
func (s *Server) Requests(method, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+table]
}

// ResetRequests clears the request counters.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[string]int)
}

// Row returns a copy of a stored row.
func (s *Server) Row(tableName, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, false
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return t.project(row, nil), true
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, code, format string, args ...any) {
	writeJSON(w, status, apiError{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := strings.CutPrefix(r.URL.Path, "/rest/v1/")
	if !ok || name == "" {
		fail(w, http.StatusNotFound, "PGRST125", "invalid path %q", r.URL.Path)
		return
	}
	s.requests[r.Method+" "+name]++

	if r.Header.Get("apikey") != s.APIKey || r.Header.Get("Authorization") != "Bearer "+s.APIKey {
		fail(w, http.StatusUnauthorized, "PGRST301", "invalid API key")
		return
	}

	t, ok := s.tables[name]
	if !ok {
		fail(w, http.StatusNotFound, "PGRST205", "Could not find the table 'public.%s' in the schema cache", name)
		return
	}

	query := r.URL.Query()
	match, err := parseFilter(query.Get("id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "PGRST100", "%v", err)
		return
	}
	selected := parseSelect(query.Get("select"))
	representation := strings.Contains(r.Header.Get("Prefer"), "return=representation")

	switch r.Method {
	case http.MethodGet:
		limit := -1
		if raw := query.Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil {
				fail(w, http.StatusBadRequest, "PGRST100", "invalid limit %q", raw)
				return
			}
		}
		out := make([]map[string]any, 0)
		for _, id := range t.order {
			if limit >= 0 && len(out) >= limit {
				break
			}
			if match(id) {
				out = append(out, t.project(t.rows[id], selected))
			}
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		if !strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") || query.Get("on_conflict") != "id" {
			fail(w, http.StatusBadRequest, "PGRST100", "only upserts on id are supported")
			return
		}
		var rows []map[string]any
		if err := decode(r, &rows); err != nil {
			fail(w, http.StatusBadRequest, "PGRST102", "invalid body: %v", err)
			return
		}
		if err := t.checkRows(rows); err != nil {
			fail(w, http.StatusBadRequest, err.Code, "%s", err.Message)
			return
		}
		for _, row := range rows {
			t.merge(row)
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodPatch:
		if query.Get("id") == "" {
			fail(w, http.StatusBadRequest, "21000", "UPDATE requires a WHERE clause")
			return
		}
		var values map[string]any
		if err := decode(r, &values); err != nil {
			fail(w, http.StatusBadRequest, "PGRST102", "invalid body: %v", err)
			return
		}
		if err := t.checkRows([]map[string]any{values}); err != nil {
			fail(w, http.StatusBadRequest, err.Code, "%s", err.Message)
			return
		}
		out := make([]map[string]any, 0)
		for _, id := range t.order {
			if match(id) {
				for col, v := range values {
					t.rows[id][col] = v
				}
				out = append(out, t.project(t.rows[id], selected))
			}
		}
		s.respond(w, representation, out)

	case http.MethodDelete:
		if query.Get("id") == "" {
			fail(w, http.StatusBadRequest, "21000", "DELETE requires a WHERE clause")
			return
		}
		out := make([]map[string]any, 0)
		kept := make([]string, 0, len(t.order))
		for _, id := range t.order {
			if match(id) {
				out = append(out, t.project(t.rows[id], selected))
				delete(t.rows, id)
				continue
			}
			kept = append(kept, id)
		}
		t.order = kept
		s.respond(w, representation, out)

	default:
		fail(w, http.StatusMethodNotAllowed, "PGRST117", "unsupported method %s", r.Method)
	}
}

func (s *Server) respond(w http.ResponseWriter, representation bool, rows []map[string]any) {
	if representation {
		writeJSON(w, http.StatusOK, rows)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(out)
}

// parseFilter supports "eq.<id>", "not.is.null" and no filter at all.
func parseFilter(raw string) (func(id string) bool, error) {
	switch {
	case raw == "" || raw == "not.is.null":
		return func(string) bool { return true }, nil
	case strings.HasPrefix(raw, "eq."):
		want := strings.TrimPrefix(raw, "eq.")
		return func(id string) bool { return id == want }, nil
	default:
		return nil, fmt.Errorf("unsupported filter %q", raw)
	}
}

func parseSelect(raw string) []string {
	if raw == "" || raw == "*" {
		return nil
	}
	return strings.Split(raw, ",")
}

// --------------------------------------------------------------------------
// Table Operations
// --------------------------------------------------------------------------

func (t *table) checkRows(rows []map[string]any) *apiError {
	var keys []string
	for i, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			if !slices.Contains(t.columns, col) {
				return &apiError{Code: "PGRST204", Message: fmt.Sprintf("Could not find the '%s' column in the schema cache", col)}
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)
		if i == 0 {
			keys = cols
		} else if !slices.Equal(keys, cols) {
			return &apiError{Code: "PGRST102", Message: "All object keys must match"}
		}
	}
	return nil
}

func (t *table) merge(row map[string]any) {
	id, _ := row["id"].(string)
	existing, ok := t.rows[id]
	if !ok {
		existing = make(map[string]any, len(t.columns))
		t.rows[id] = existing
		t.order = append(t.order, id)
	}
	for col, v := range row {
		existing[col] = v
	}
}

// project returns the selected columns of row. Unset columns are null.
func (t *table) project(row map[string]any, selected []string) map[string]any {
	cols := selected
	if cols == nil {
		cols = t.columns
	}
	out := make(map[string]any, len(cols))
	for _, col := range cols {
		out[col] = row[col]
	}
	return out
}
