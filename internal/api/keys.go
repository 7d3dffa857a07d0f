package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/insight-back/pkg/models"
)

// SetKeyRequest carries new credential material for one vendor slot
type SetKeyRequest struct {
	Key    string `json:"key"`
	Secret string `json:"secret,omitempty"`
	// Validate asks for a cheap vendor call before accepting the key.
	// Only supported for the predictions vendor.
	Validate bool `json:"validate,omitempty"`
}

// handleListKeys reports every vendor slot with keys masked
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"vendors": s.creds.Status(),
	})
}

// handleSetKey overwrites the credential for one vendor slot
func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	vendor := models.Vendor(mux.Vars(r)["vendor"])
	if !vendor.Valid() {
		s.respondJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "unknown vendor"})
		return
	}

	var req SetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Key == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "key is required"})
		return
	}

	if req.Validate && vendor == models.VendorPredictions {
		if err := s.agg.ValidateKey(r.Context(), req.Key); err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{
				Error:   "vendor rejected the key",
				Message: err.Error(),
			})
			return
		}
	}

	cred := models.Credential{Key: req.Key, Secret: req.Secret}
	if err := s.creds.Set(r.Context(), vendor, cred); err != nil {
		s.logger.WithError(err).WithField("vendor", vendor).Error("Failed to store credential")
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to store credential"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleClearKey removes the credential for one vendor slot; Get falls
// back to the configured default where one exists
func (s *Server) handleClearKey(w http.ResponseWriter, r *http.Request) {
	vendor := models.Vendor(mux.Vars(r)["vendor"])
	if !vendor.Valid() {
		s.respondJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "unknown vendor"})
		return
	}

	if err := s.creds.Clear(r.Context(), vendor); err != nil {
		s.logger.WithError(err).WithField("vendor", vendor).Error("Failed to clear credential")
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to clear credential"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
