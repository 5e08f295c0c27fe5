package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/tdist/pkg/model"
)

// handleRunStatus returns the current run with its nodes.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.session.Status())
}

// handleRunResults returns the per-item results recorded so far for the
// current run.
func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	results, err := s.store.ListResults(r.Context(), s.session.RunID())
	if err != nil {
		s.logger.Error("list results", "error", err)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "list results failed"})
		return
	}
	respondOK(w, reqID, results)
}

// handleListRuns returns run history, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts := listOptions(r)

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "list runs failed"})
		return
	}
	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(runs) < total,
	})
}

// handleGetRun returns one stored run with its results.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.logger.Error("get run", "run_id", runID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "get run failed"})
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", runID))
		return
	}

	results, err := s.store.ListResults(r.Context(), runID)
	if err != nil {
		s.logger.Error("list results", "run_id", runID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "list results failed"})
		return
	}

	summary := model.RunSummary{Run: *run}
	for _, res := range results {
		summary.Results = append(summary.Results, *res)
	}
	respondOK(w, reqID, summary)
}

func listOptions(r *http.Request) model.ListOptions {
	opts := model.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts.Clamp()
	return opts
}
