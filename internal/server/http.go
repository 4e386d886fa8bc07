package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

// Scope headers identify the caller of list and mutation requests.
const (
	HeaderWorkspace  = "X-Workspace-ID"
	HeaderUser       = "X-User-ID"
	HeaderRole       = "X-Role"
	HeaderFreelancer = "X-Freelancer-ID"
	HeaderRequestID  = "X-Request-ID"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *StudioServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("POST /v1/pluck", s.handlePluck)
	mux.HandleFunc("GET /v1/lists", s.handleDescribeLists)
	mux.HandleFunc("GET /v1/lists/{entity}", s.handleList)
	mux.HandleFunc("POST /v1/tables/{table}/rows", s.handleInsertRow)
	mux.HandleFunc("PATCH /v1/tables/{table}/rows/{id}", s.handleUpdateRow)
	mux.HandleFunc("DELETE /v1/tables/{table}/rows/{id}", s.handleDeleteRow)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/presence", s.handlePresence)
	return s.requestLog(AuthMiddleware(authToken, mux))
}

// requestLog tags every request with an id and logs failed requests.
func (s *StudioServer) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= 400 {
			s.logger.Info("request failed", "method", r.Method, "path", r.URL.Path, "status", rec.status, "request_id", id)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// handleHealth handles GET /v1/health.
func (s *StudioServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePresence handles GET /v1/presence.
func (s *StudioServer) handlePresence(w http.ResponseWriter, r *http.Request) {
	workspace := r.Header.Get(HeaderWorkspace)
	if err := requireWorkspace(workspace); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"viewers": s.presence.Roster(workspace)})
}

// handleQuery handles POST /v1/query.
func (s *StudioServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	page, err := s.runQuery(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// pluckRequest is the body of POST /v1/pluck.
type pluckRequest struct {
	Query  query.Query `json:"query"`
	Column string      `json:"column"`
}

// handlePluck handles POST /v1/pluck.
func (s *StudioServer) handlePluck(w http.ResponseWriter, r *http.Request) {
	var in pluckRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	vals, err := s.runPluck(r.Context(), in.Query, in.Column)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": vals})
}

// handleDescribeLists handles GET /v1/lists.
func (s *StudioServer) handleDescribeLists(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lists": describeLists()})
}

// handleList handles GET /v1/lists/{entity}.
func (s *StudioServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{
		Entity: r.PathValue("entity"),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
	}
	for _, v := range q["filter"] {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				req.Filters = append(req.Filters, key)
			}
		}
	}
	if v := q.Get("desc"); v != "" {
		desc, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid desc")
			return
		}
		req.Desc = &desc
	}
	for name, dst := range map[string]*int{"page": &req.Page, "page_size": &req.PageSize} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}

	resp, err := s.runList(r.Context(), scopeFromHeaders(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInsertRow handles POST /v1/tables/{table}/rows.
func (s *StudioServer) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	table, err := parseTable(r.PathValue("table"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var row model.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.insertRow(r.Context(), table, r.Header.Get(HeaderWorkspace), row)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateRow handles PATCH /v1/tables/{table}/rows/{id}.
func (s *StudioServer) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	table, err := parseTable(r.PathValue("table"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var patch model.Row
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.updateRow(r.Context(), table, r.Header.Get(HeaderWorkspace), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRow handles DELETE /v1/tables/{table}/rows/{id}.
func (s *StudioServer) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	table, err := parseTable(r.PathValue("table"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.deleteRow(r.Context(), table, r.Header.Get(HeaderWorkspace), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scopeFromHeaders reads the caller scope from request headers.
func scopeFromHeaders(r *http.Request) model.Scope {
	return model.Scope{
		WorkspaceID:  r.Header.Get(HeaderWorkspace),
		UserID:       r.Header.Get(HeaderUser),
		Role:         model.Role(r.Header.Get(HeaderRole)),
		FreelancerID: r.Header.Get(HeaderFreelancer),
	}
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "row not found")
	case errors.Is(err, errUnknownList):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
