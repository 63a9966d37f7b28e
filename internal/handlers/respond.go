package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/fitting"
	"github.com/jrgparkinson/tracksplits/internal/races"
	"github.com/jrgparkinson/tracksplits/internal/splits"
	"github.com/jrgparkinson/tracksplits/internal/utils"
	"github.com/jrgparkinson/tracksplits/internal/view"
)

const maxBodySize = 1 << 20

// APIError is the body of every failed API response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]APIError{"error": {Code: code, Message: message}})
}

// writeErr maps err onto a status code and error body.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *fitting.AuthorizationError
	var svcErr *fitting.ServiceError

	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, map[string]APIError{"error": {
			Code:         "authorization_required",
			Message:      "Authorize Strava to continue",
			AuthorizeURL: authErr.URL,
		}})
		return
	case errors.As(err, &svcErr):
		writeError(w, http.StatusBadGateway, "fitting_failed", svcErr.Message)
	case errors.Is(err, splits.ErrInvalidArgument),
		errors.Is(err, utils.ErrUnsupportedFormat),
		errors.Is(err, utils.ErrInvalidUpload),
		errors.Is(err, utils.ErrNoTrackPoints):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, races.ErrUnknownRace):
		writeError(w, http.StatusNotFound, "unknown_race", err.Error())
	case errors.Is(err, view.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "busy", "a request for this session is already in progress")
	case errors.Is(err, view.ErrNoActivity),
		errors.Is(err, view.ErrNoRaceSelected),
		errors.Is(err, view.ErrNotStravaActivity):
		writeError(w, http.StatusConflict, "no_activity", err.Error())
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal Server Error")
		return
	}
	log.WithError(err).WithField("path", r.URL.Path).Debug("Request rejected")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}
