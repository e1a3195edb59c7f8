package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-cloud/internal/particle"
)

// credentialsResponse is the GET /credentials payload. The access token is
// never returned in full.
type credentialsResponse struct {
	Configured  bool   `json:"configured"`
	DeviceID    string `json:"device_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// setCredentialsRequest is the PUT /credentials payload.
type setCredentialsRequest struct {
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// handleGetCredentials returns the stored credential record with the token
// masked.
func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.Load(r.Context())
	if errors.Is(err, particle.ErrNotConfigured) {
		writeJSON(w, http.StatusOK, credentialsResponse{Configured: false})
		return
	}
	if err != nil {
		s.logger.Error("loading credentials", "error", err)
		writeInternalError(w, "failed to load credentials")
		return
	}

	writeJSON(w, http.StatusOK, credentialsResponse{
		Configured:  true,
		DeviceID:    creds.DeviceID,
		AccessToken: creds.MaskedToken(),
	})
}

// handleSetCredentials validates a credential pair against the cloud API,
// persists it, and installs it on the dispatcher.
func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var req setCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	creds := particle.Credentials{
		AccessToken: req.AccessToken,
		DeviceID:    req.DeviceID,
	}
	if err := creds.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	online, err := s.dispatcher.ValidateCredentials(r.Context(), creds)
	if err != nil {
		s.logger.Warn("credential validation failed",
			"device_id", creds.DeviceID,
			"token", creds.MaskedToken(),
			"error", err,
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "cloud API rejected the credentials")
		return
	}

	if err := s.store.Save(r.Context(), creds); err != nil {
		s.logger.Error("saving credentials", "error", err)
		writeInternalError(w, "failed to save credentials")
		return
	}
	s.dispatcher.SetCredentials(creds)

	s.logger.Info("cloud credentials updated",
		"device_id", creds.DeviceID,
		"token", creds.MaskedToken(),
		"online", online,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"device_id":  creds.DeviceID,
		"online":     online,
	})
}

// handleDeleteCredentials erases the stored record and clears the dispatcher.
func (s *Server) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Erase(r.Context()); err != nil {
		s.logger.Error("erasing credentials", "error", err)
		writeInternalError(w, "failed to erase credentials")
		return
	}
	s.dispatcher.ClearCredentials()

	s.logger.Info("cloud credentials erased")
	w.WriteHeader(http.StatusNoContent)
}
