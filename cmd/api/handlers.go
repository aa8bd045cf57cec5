package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"outcomes/outcome"
)

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	scope, bad, ok := routeScope(r)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", bad))
		return
	}

	list, err := s.outcomeService.List(r.Context(), scope)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetOutcome(w http.ResponseWriter, r *http.Request) {
	scope, bad, ok := routeScope(r)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", bad))
		return
	}
	outcomeID := r.PathValue("outcomeId")
	if _, err := uuid.Parse(outcomeID); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", outcomeID))
		return
	}

	o, err := s.outcomeService.Get(r.Context(), scope, outcomeID)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCreateOutcome(w http.ResponseWriter, r *http.Request) {
	scope, bad, ok := routeScope(r)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", bad))
		return
	}

	var body outcome.Outcome
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unable to parse outcome from request body")
		return
	}

	baseURL := strings.TrimSpace(r.Header.Get(headerAPIMURL))
	if baseURL == "" {
		baseURL = r.URL.Path
	}

	created, err := s.outcomeService.Create(r.Context(), outcome.CreateRequest{
		Scope:        scope,
		TouchpointID: touchpointFromContext(r.Context()),
		BaseURL:      baseURL,
		Outcome:      body,
	})
	if err != nil {
		s.writeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePatchOutcome(w http.ResponseWriter, r *http.Request) {
	scope, bad, ok := routeScope(r)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", bad))
		return
	}
	outcomeID := r.PathValue("outcomeId")
	if _, err := uuid.Parse(outcomeID); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", outcomeID))
		return
	}

	var patch outcome.OutcomePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unable to parse outcome patch from request body")
		return
	}

	resourceURL := r.URL.Path
	if base := strings.TrimSpace(r.Header.Get(headerAPIMURL)); base != "" {
		resourceURL = strings.TrimRight(base, "/") + "/" + outcomeID
	}

	updated, err := s.outcomeService.Patch(r.Context(), outcome.PatchRequest{
		Scope:        scope,
		OutcomeID:    outcomeID,
		TouchpointID: touchpointFromContext(r.Context()),
		ResourceURL:  resourceURL,
		Patch:        patch,
	})
	if err != nil {
		s.writeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) readFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, outcome.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.requestLogger(r.Context()).Error("read outcomes", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeFailed(w http.ResponseWriter, r *http.Request, err error) {
	var verrs *outcome.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, verrs.Fields)
	case errors.Is(err, outcome.ErrMalformedDocument):
		s.requestLogger(r.Context()).Error("stored outcome unreadable", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "stored outcome could not be parsed")
	case errors.Is(err, outcome.ErrNotFound):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, outcome.ErrCustomerReadOnly):
		writeError(w, http.StatusForbidden, "customer is read only")
	default:
		s.requestLogger(r.Context()).Error("write outcome", "error", err)
		writeError(w, http.StatusBadRequest, "unable to save outcome")
	}
}
