package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/amonks/issues/api"
	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/issue"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.auth.SignUp)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.auth.SignIn)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, start func(ctx context.Context, email, password string) (auth.Session, error)) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.CredentialsRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	session, err := start(r.Context(), payload.Email, payload.Password)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SessionResponse(session))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.EmptyRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated)
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EmptyResponse{})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.EmptyRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	email, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.WhoAmIResponse{Email: email})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.ListRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if _, err := s.identify(r); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	filter, err := normalizeFilter(payload.Filter)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	snapshot, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ListResponse{Seq: snapshot.Seq, Issues: issue.Visible(snapshot.Issues, filter)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.CreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	actor, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	created, similar, err := s.store.CreateWithSimilar(r.Context(), actor, payload)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CreateResponse{Issue: created, Similar: similar})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.UpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	actor, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if payload.Patch.IsEmpty() {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: patch changes nothing", issue.ErrValidation))
		return
	}
	id, err := s.resolveID(r.Context(), payload.ID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	updated, err := s.store.Update(r.Context(), actor, id, payload.Patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.IssueResponse{Issue: updated})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.DeleteRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	actor, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	id, err := s.resolveID(r.Context(), payload.ID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), actor, id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EmptyResponse{})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.SimilarRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if _, err := s.identify(r); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	snapshot, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SimilarResponse{Issues: issue.FindSimilar(payload.Title, snapshot.Issues)})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.ImportRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	actor, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	count, err := s.store.Import(r.Context(), actor, payload.Issues)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ImportResponse{Count: count})
}

// handleSubscribe streams a full snapshot as one NDJSON line per committed
// write, starting with the current one.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload api.EmptyRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	actor, err := s.identify(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("response does not support streaming"))
		return
	}
	snapshots, err := s.store.Subscribe(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Debug("subscriber connected", "actor", actor)
	defer s.logger.Debug("subscriber disconnected", "actor", actor)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	if err := streamSnapshots(w, flusher, snapshots); err != nil && !isDisconnect(err) {
		s.logger.Warn("subscription stream failed", "actor", actor, "err", err)
	}
}

func streamSnapshots(w http.ResponseWriter, flusher http.Flusher, snapshots <-chan issue.Snapshot) error {
	encoder := json.NewEncoder(w)
	for snapshot := range snapshots {
		if err := encoder.Encode(snapshot); err != nil {
			return err
		}
		flusher.Flush()
	}
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "broken pipe")
}

func (s *Server) resolveID(ctx context.Context, id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("%w: issue id is required", issue.ErrValidation)
	}
	return s.store.Resolve(ctx, trimmed)
}

func normalizeFilter(filter issue.Filter) (issue.Filter, error) {
	status, err := issue.ParseStatusFilter(string(filter.Status))
	if err != nil {
		return issue.Filter{}, err
	}
	priority, err := issue.ParsePriorityFilter(string(filter.Priority))
	if err != nil {
		return issue.Filter{}, err
	}
	return issue.Filter{Status: status, Priority: priority}, nil
}
