package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/generator"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/internal/modules/filter"
	"github.com/csvquerygenie/genie/internal/parser"
	"github.com/csvquerygenie/genie/internal/runtime"
	"github.com/csvquerygenie/genie/internal/store"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Response messages
const (
	rootMessage         = "CSV Query Genie API is running!"
	invalidDataMessage  = "Invalid data format."
	applyFailedPrefix   = "Failed to apply filters: "
	datasetNotFound     = "dataset not found"
	bodyTooLargeMessage = "Request body too large"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.limiter.middleware)
	r.Use(limitBody(s.cfg.MaxBodyBytes))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post("/query", s.handleQuery)
	r.Post("/parse", s.handleParse)

	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", s.handleCreateDataset)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDataset)
			r.Delete("/", s.handleDeleteDataset)
			r.Post("/query", s.handleQueryDataset)
		})
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQuery filters the rows posted with the question and answers with
// the matching rows.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeQuery(r.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, bodyTooLargeMessage)
			return
		}
		logger.Warn("invalid query body", "error", err.Error())
		writeError(w, http.StatusBadRequest, invalidDataMessage)
		return
	}
	if len(payload.Rows) == 0 {
		writeRaw(w, http.StatusOK, []byte("[]"))
		return
	}

	exec, err := s.executor.WithExpression(payload.Expression)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	table := tabular.NewTable(payload.Headers, payload.Rows)
	res, err := exec.ExecuteTable(r.Context(), table, payload.Query)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	body, err := tabular.MarshalRows(res.Table.Headers, res.Table.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, applyFailedPrefix+err.Error())
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// handleParse parses the raw CSV body.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tabular.ParseResponse{
		Table:   parsed.Table,
		Skipped: parsed.SkippedInfo(),
	})
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	skipped := parsed.SkippedInfo()
	id := s.store.Put(parsed.Table, skipped)
	entry, found := s.store.Get(id)
	if !found {
		writeError(w, http.StatusInternalServerError, "dataset could not be stored")
		return
	}
	logger.Info("dataset stored",
		"dataset_id", id,
		"rows", parsed.Table.Len(),
		"skipped", len(skipped),
	)
	writeJSON(w, http.StatusCreated, datasetResponse(entry))
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	entry, found := s.store.Get(chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, datasetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry.Table)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, datasetNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueryDataset runs a query against a stored dataset. Failures of
// generation or filtering still answer 200 with the unfiltered table.
func (s *Server) handleQueryDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, found := s.store.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, datasetNotFound)
		return
	}

	var req tabular.DatasetQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, bodyTooLargeMessage)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	exec, err := s.executor.WithExpression(req.Expression)
	if err != nil {
		writeError(w, errhandling.HTTPStatusFor(err), err.Error())
		return
	}

	var res *runtime.Result
	if req.Conditions != nil {
		res, err = exec.ExecuteConditions(r.Context(), entry.Table, req.Conditions)
	} else {
		res, err = exec.ExecuteTable(r.Context(), entry.Table, req.Query)
	}
	if res == nil || res.Table == nil {
		writeQueryError(w, err)
		return
	}

	resp := tabular.QueryResponse{
		ID:         res.ID,
		Table:      res.Table,
		Conditions: res.Conditions,
		Fallback:   res.Fallback,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	logger.Debug("dataset queried",
		"dataset_id", id,
		"query_id", res.ID,
		"rows", res.Table.Len(),
		"fallback", res.Fallback,
	)
	writeJSON(w, http.StatusOK, resp)
}

// parseBody parses the request body as CSV, honoring ?headerRow=N. It writes
// the error response itself and reports whether parsing succeeded.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*parser.Result, bool) {
	headerRow := s.cfg.HeaderRow
	if raw := r.URL.Query().Get("headerRow"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "headerRow must be a positive integer")
			return nil, false
		}
		headerRow = n
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errhandling.HTTPStatusFor(err), "failed to read request body")
		return nil, false
	}

	parsed, err := parser.ParseWithOptions(string(body), parser.Options{HeaderRow: headerRow})
	if err != nil {
		writeError(w, errhandling.HTTPStatusFor(err), err.Error())
		return nil, false
	}
	return parsed, true
}

// writeQueryError maps an execution failure to a status and detail.
func writeQueryError(w http.ResponseWriter, err error) {
	if err == nil {
		writeError(w, http.StatusInternalServerError, applyFailedPrefix+"no result")
		return
	}

	var filterErr *filter.FilterError
	if errors.As(err, &filterErr) {
		writeError(w, http.StatusUnprocessableEntity, filterErr.Error())
		return
	}
	var upstreamErr *generator.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch {
		case upstreamErr.Code == generator.ErrCodeInvalidResponse:
			writeError(w, http.StatusInternalServerError, generator.InvalidResponseMessage)
		case upstreamErr.StatusCode > 0:
			writeError(w, http.StatusBadGateway, upstreamErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, applyFailedPrefix+upstreamErr.Error())
		}
		return
	}
	writeError(w, http.StatusInternalServerError, applyFailedPrefix+err.Error())
}

func datasetResponse(e *store.Entry) tabular.DatasetResponse {
	skipped := e.Skipped
	if skipped == nil {
		skipped = []tabular.RowSkipInfo{}
	}
	return tabular.DatasetResponse{
		ID:        e.ID,
		Headers:   e.Table.Headers,
		RowCount:  e.Table.Len(),
		Skipped:   skipped,
		CreatedAt: e.CreatedAt,
	}
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, tabular.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", "error", err.Error())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"failed to encode response"}`))
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Warn("failed to write response", "error", err.Error())
	}
}
