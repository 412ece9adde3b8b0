package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/scribo/internal/models"
)

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps service errors to HTTP status codes
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnknownRun), errors.Is(err, models.ErrUnknownEntry):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrAlreadyStarted):
		return WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		return WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrRateLimited):
		return WriteError(w, http.StatusTooManyRequests, err.Error())
	}
	return WriteError(w, http.StatusInternalServerError, err.Error())
}
