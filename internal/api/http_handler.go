package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rpattn/paperatlas/internal/domain"
	"github.com/rpattn/paperatlas/internal/export"
	"github.com/rpattn/paperatlas/internal/query"
)

// Handler exposes the query pipeline over JSON.
type Handler struct {
	engine       *query.Engine
	orchestrator *query.Orchestrator
	exporter     *export.Service
}

// NewHTTPHandler wires the query endpoints.
func NewHTTPHandler(engine *query.Engine, orchestrator *query.Orchestrator, exporter *export.Service) http.Handler {
	return &Handler{engine: engine, orchestrator: orchestrator, exporter: exporter}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/multi-query"):
		h.handleMultiQuery(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/export"):
		h.handleExport(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query"):
		h.handleQuery(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.ExecuteQuery(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type multiQueryPayload struct {
	Definitions  []query.Definition `json:"definitions"`
	SharedFields []string           `json:"sharedFields"`
	Limit        int                `json:"limit"`
	Offset       int                `json:"offset"`
}

func (h *Handler) handleMultiQuery(w http.ResponseWriter, r *http.Request) {
	var payload multiQueryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.ExecuteMultiQuery(
		r.Context(), payload.Definitions, payload.SharedFields, payload.Limit, payload.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type exportPayload struct {
	Request query.Request `json:"request"`
	Name    string        `json:"name"`
	Format  string        `json:"format"`
}

type exportResponse struct {
	Path string `json:"path"`
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var payload exportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.ExecuteQuery(r.Context(), payload.Request)
	if err != nil {
		writeError(w, err)
		return
	}

	format := export.Format(payload.Format)
	if format == "" {
		format = export.FormatXLSX
	}

	path, err := h.exporter.ExportResult(result, payload.Request.Fields, payload.Name, format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{Path: path})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses: validation
// failures are the caller's to fix, timeouts get their own status so
// clients can suggest narrowing the request.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Message, Kind: string(validationErr.Kind)})
		return
	}

	var embeddingErr *domain.EmbeddingServiceError
	if errors.As(err, &embeddingErr) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: embeddingErr.Error()})
		return
	}

	var dbErr *domain.DatabaseError
	if errors.As(err, &dbErr) {
		status := http.StatusInternalServerError
		if dbErr.Kind == domain.QueryTimeout {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorResponse{Error: dbErr.Error(), Kind: string(dbErr.Kind)})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
