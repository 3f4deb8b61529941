package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/profilehub/apiserver/internal/auth"
	"github.com/profilehub/apiserver/internal/services"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// identityFromContext extracts the verified identity the route gate
// attached to the request. Absence means the gate never ran.
func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(auth.Identity)
	return identity, ok
}

// MessageResponse is the standard body for non-payload outcomes. Errors
// carries field-level validation messages when present.
type MessageResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeServiceError maps workflow errors onto the wire contract. Anything
// unanticipated becomes a generic 500; detail stays in the server log.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, MessageResponse{
			Message: "Validation failed",
			Errors:  validation.Fields,
		})
	case errors.Is(err, services.ErrUserExists):
		writeMessage(w, http.StatusConflict, "User already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrStaleProfile):
		writeMessage(w, http.StatusConflict, "Profile was updated by a newer session")
	case errors.Is(err, services.ErrImageProcessing):
		writeMessage(w, http.StatusBadRequest, "Failed to process image")
	default:
		logger.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
