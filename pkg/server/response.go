package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"wabridge/pkg/logger"
)

type successResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// httpError carries the status and caller-facing message for a failed
// handler. It is mapped to JSON exactly once at the boundary.
type httpError struct {
	status  int
	message string
	cause   error
}

func (e *httpError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *httpError) Unwrap() error {
	return e.cause
}

// validationError marks a client-caused request problem (HTTP 400).
func validationError(message string) error {
	return &httpError{status: http.StatusBadRequest, message: message}
}

// adapterError marks an underlying engine failure (HTTP 500).
func adapterError(message string, cause error) error {
	return &httpError{status: http.StatusInternalServerError, message: message, cause: cause}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("server", "Failed to encode response", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	var herr *httpError
	if errors.As(err, &herr) {
		resp := errorResponse{Success: false, Message: herr.message}
		if herr.cause != nil {
			resp.Error = herr.cause.Error()
		}
		writeJSON(w, herr.status, resp)
		return
	}

	// Anything uncategorized: surface the message text, never a stack trace.
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Success: false,
		Message: "Internal server error",
		Error:   err.Error(),
	})
}
