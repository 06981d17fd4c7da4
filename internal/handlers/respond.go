package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gigbook/backend/internal/services"
	"go.uber.org/zap"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors to status codes. Anything that is not
// a classified service error is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	if services.IsValidationFailure(err) {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrTransientProvider):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	}

	msg := services.ClientMessage(err)
	if status == http.StatusInternalServerError || msg == "" {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		status = http.StatusInternalServerError
		msg = services.MsgInternal
	} else if status == http.StatusServiceUnavailable && log != nil {
		log.Warn("provider unavailable", zap.Error(err))
	}
	services.SendErrorResponse(w, msg, status, nil)
}
