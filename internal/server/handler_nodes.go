package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/tdist/pkg/model"
)

// handleRegister joins a worker to the run and returns its node handle.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("name is required"))
		return
	}

	remote, err := s.session.Register(req.Name, req.Hostname)
	if err != nil {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError(err.Error()))
		return
	}
	s.logger.Info("node registered", "node", remote.ID(), "name", req.Name, "hostname", req.Hostname)
	respondCreated(w, reqID, remote.Info())
}

// handleListNodes returns all registered nodes.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.session.Status().Nodes)
}

// handleCollection accepts a node's discovered test collection.
// Fire-and-forget: agreement checking happens on the session goroutine.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeID")

	var report model.CollectionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}

	if err := s.session.ReportCollection(nodeID, report.TestIDs); err != nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("node", nodeID))
		return
	}
	respondAccepted(w, reqID)
}

// handlePoll drains the node's mailbox. Returns 204 when there is neither
// work nor a shutdown signal, so idle workers keep polling cheaply.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeID")

	order, err := s.session.Poll(nodeID)
	if err != nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("node", nodeID))
		return
	}
	if len(order.Indices) == 0 && !order.Shutdown {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.metrics.ItemsDelivered(nodeID, len(order.Indices))
	respondOK(w, reqID, order)
}

// handleComplete accepts one item's result from a node.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeID")

	var report model.CompletionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}
	switch report.Outcome {
	case model.OutcomePassed, model.OutcomeFailed, model.OutcomeErrored:
	default:
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("unknown outcome"))
		return
	}

	if err := s.session.ReportCompletion(nodeID, report); err != nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("node", nodeID))
		return
	}
	s.metrics.ItemCompleted(report)
	respondAccepted(w, reqID)
}
