package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"evcentral/internal/ocpp"
	"evcentral/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service and protocol errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrChargerNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyExists),
		errors.Is(err, service.ErrNoActiveTransaction),
		errors.Is(err, service.ErrConflictingTransaction),
		errors.Is(err, service.ErrAlreadyStopped),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, ocpp.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrCommandRejected),
		errors.As(err, new(*ocpp.CallError)):
		return http.StatusBadGateway
	case errors.Is(err, ocpp.ErrConnectionClosed),
		errors.Is(err, ocpp.ErrSuperseded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
