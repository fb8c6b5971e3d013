package server

import (
	"encoding/json"
	"net/http"

	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	errs "botinsta/pkg/errors"
)

// errorResponse is the JSON shape of every error reply
type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"server_id": s.hub.ServerID(),
		"jobs":      len(s.registry.Active()),
		"clients":   s.hub.ClientCount(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req bot.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Newf(errs.ErrorTypeInvalidInput, "invalid request body: %v", err))
		return
	}

	snapshot, err := s.registry.Start(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.InfoWithFields("job started via API", map[string]interface{}{
		"account": req.Account,
		"mode":    string(req.Mode),
		"target":  req.Target,
	})
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Newf(errs.ErrorTypeInvalidInput, "invalid request body: %v", err))
		return
	}

	snapshot, err := s.registry.Stop(req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.InfoWithFields("job stopped via API", map[string]interface{}{
		"account": req.Account,
	})
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		s.writeError(w, errs.New(errs.ErrorTypeInvalidInput, "account query parameter is required"))
		return
	}

	snapshot, err := s.registry.Status(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": s.registry.Active(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Never leak session tokens to the dashboard
	sanitized := make([]*auth.Account, 0, len(accounts))
	for _, account := range accounts {
		sanitized = append(sanitized, auth.SanitizeAccount(account))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": sanitized,
	})
}

func (s *Server) handleAccountRemove(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	// A job cannot act without credentials; stop it first
	if _, err := s.registry.Status(username); err == nil {
		s.registry.Stop(username)
		s.logger.WithField("account", username).Info("stopped job for removed account")
	}

	if err := s.accounts.Delete(username); err != nil {
		s.writeError(w, errs.Newf(errs.ErrorTypeInvalidInput, "failed to remove account: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHashtagList(w http.ResponseWriter, r *http.Request) {
	tags, err := s.hashtags.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"hashtags": tags,
	})
}

func (s *Server) handleHashtagAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hashtag string `json:"hashtag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Newf(errs.ErrorTypeInvalidInput, "invalid request body: %v", err))
		return
	}

	normalized, err := s.hashtags.Add(req.Hashtag)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"hashtag": normalized,
	})
}

func (s *Server) handleHashtagRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.hashtags.Remove(r.PathValue("tag")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("failed to encode response")
	}
}

// writeError maps classified errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.TypeOf(err) {
	case errs.ErrorTypeInvalidInput:
		status = http.StatusBadRequest
	case errs.ErrorTypeNotAuthenticated:
		status = http.StatusUnauthorized
	case errs.ErrorTypeRateLimited:
		status = http.StatusTooManyRequests
	}

	s.writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  string(errs.TypeOf(err)),
	})
}
