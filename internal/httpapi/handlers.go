package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/input"
	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/logging"
	"github.com/roach88/basicio/internal/store"
)

// ErrorResponse is the JSON body of every non-report error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ValidateResponse is the dry-run result.
type ValidateResponse struct {
	Records     int        `json:"records"`
	CommitWaves [][]string `json:"commit_waves"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport runs one batch. Query parameters: resource_type, mode,
// on_missing, on_ambiguous, format (json|csv, default from Content-Type).
// The body is the batch. The response is always the report.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.readBatch(w, r)
	if !ok {
		return
	}

	log := logging.WithFields(r.Context(), "resource_type", batch.ResourceType, "entries", len(batch.Entries))
	report, err := s.engine.Import(r.Context(), batch)
	status := StatusFor(report, err)
	if err != nil {
		log.Warn("import failed", "status", status, "error", err)
	} else {
		log.Info("import finished", "batch_id", report.BatchID, "outcome", report.Outcome)
	}
	writeJSON(w, status, report)
}

// handleValidate compiles the batch without lookups or writes.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.readBatch(w, r)
	if !ok {
		return
	}

	plan, err := s.engine.Plan(batch)
	if err != nil {
		var ie *ir.ImportError
		if errors.As(err, &ie) {
			status := http.StatusBadRequest
			if ie.Code == ir.ErrCodeBatchTooLarge {
				status = http.StatusRequestEntityTooLarge
			}
			writeJSON(w, status, ie)
			return
		}
		s.respondError(w, r, err, http.StatusBadRequest, "INVALID_BATCH")
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Records: len(plan.Records), CommitWaves: plan.WaveIDs()})
}

// handleExport lists resources as import entries. Query parameters:
// enrich (bool), format (json|csv).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.respondError(w, r, fmt.Errorf("export is not configured"), http.StatusNotFound, "NOT_FOUND")
		return
	}
	resourceType := chi.URLParam(r, "resourceType")
	enrich, _ := strconv.ParseBool(r.URL.Query().Get("enrich"))
	format := input.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		var err error
		if format, err = input.ParseFormat(f); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest, "INVALID_FORMAT")
			return
		}
	}

	entries, err := s.exporter.Export(r.Context(), resourceType, s.opts.Profile, enrich)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "EXPORT_FAILED")
		return
	}

	if format == input.FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resourceType+".csv"))
		if err := input.EncodeCSV(w, entries); err != nil {
			logging.FromContext(r.Context()).Error("encode csv export", "error", err)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := input.EncodeJSON(w, entries); err != nil {
		logging.FromContext(r.Context()).Error("encode json export", "error", err)
	}
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		s.respondError(w, r, fmt.Errorf("report log is not configured"), http.StatusNotFound, "NOT_FOUND")
		return
	}
	report, err := s.opts.Runs.LoadReport(r.Context(), chi.URLParam(r, "batchID"))
	if errors.Is(err, store.ErrRunNotFound) {
		s.respondError(w, r, err, http.StatusNotFound, "NOT_FOUND")
		return
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "REPORT_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		s.respondError(w, r, fmt.Errorf("report log is not configured"), http.StatusNotFound, "NOT_FOUND")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, r, fmt.Errorf("invalid limit %q", v), http.StatusBadRequest, "INVALID_LIMIT")
			return
		}
		limit = n
	}
	runs, err := s.opts.Runs.ListReports(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "REPORT_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// readBatch decodes the request body and query into a Batch. On failure it
// has already written the response.
func (s *Server) readBatch(w http.ResponseWriter, r *http.Request) (engine.Batch, bool) {
	q := r.URL.Query()

	cfg := s.opts.Defaults
	if v := q.Get("mode"); v != "" {
		cfg.Mode = ir.Mode(v)
	}
	if v := q.Get("on_missing"); v != "" {
		cfg.OnMissing = ir.Policy(v)
	}
	if v := q.Get("on_ambiguous"); v != "" {
		cfg.OnAmbiguous = ir.Policy(v)
	}

	treeField := s.opts.TreeField
	if q.Has("tree_field") {
		treeField = q.Get("tree_field")
	}

	format := input.FormatFromName(r.Header.Get("Content-Type"))
	if v := q.Get("format"); v != "" {
		f, err := input.ParseFormat(v)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest, "INVALID_FORMAT")
			return engine.Batch{}, false
		}
		format = f
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	entries, err := input.Decode(body, format)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge, string(ir.ErrCodeBatchTooLarge))
			return engine.Batch{}, false
		}
		s.respondError(w, r, err, http.StatusBadRequest, string(ir.ErrCodeValidation))
		return engine.Batch{}, false
	}

	return engine.Batch{
		Entries:      entries,
		ResourceType: q.Get("resource_type"),
		Config:       cfg,
		Profile:      s.opts.Profile,
		TreeField:    treeField,
	}, true
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int, code string) {
	requestID := middleware.GetReqID(r.Context())
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
