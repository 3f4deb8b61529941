package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUserExists is returned when a signup targets an email that already has
// identity history, regardless of the supplied password.
var ErrUserExists = errors.New("user already exists")

// ErrInvalidCredentials covers both an unknown email and a wrong password.
// Callers must not be able to tell which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrStaleProfile is returned when a profile update targets a version stamp
// that no longer names the caller's record.
var ErrStaleProfile = errors.New("profile record is stale")

// ErrImageProcessing wraps ingestion failures: malformed payloads and
// object-store errors alike.
var ErrImageProcessing = errors.New("failed to process image")

// ValidationError carries field-level messages for bad input shape.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
