package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/profilehub/apiserver/internal/auth"
	"github.com/profilehub/apiserver/internal/services"
	"github.com/profilehub/apiserver/internal/store"
	"github.com/profilehub/apiserver/types"
)

// AuthHandler provides the identity endpoints: signup, login, profile, and
// the profile-image operations behind the route gate.
type AuthHandler struct {
	users  *services.UserService
	codec  *auth.Codec
	logger *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, codec *auth.Codec, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{users: users, codec: codec, logger: logger}
}

// AuthRouter registers the identity routes. Signup and login are never
// gated; they establish identity rather than consume it. The gated group
// is the fixed protected operation set.
func AuthRouter(r chi.Router, users *services.UserService, codec *auth.Codec, logger *slog.Logger) {
	handler := NewAuthHandler(users, codec, logger)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/authorize", handler.Authorize)

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Get("/profile", handler.Profile)
		r.Put("/profile-image", handler.UpdateProfileImage)
		r.Get("/upload-url", handler.CreateUploadGrant)
		r.Put("/profile-url", handler.CommitProfileURL)
	})
}

// RequireAuth is the route gate: it evaluates the presented credential and
// either attaches the verified identity to the request context or
// short-circuits with 401 before any handler logic runs.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := h.codec.Decide(r.Header.Get("Authorization"))
		if !decision.Allowed() {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), contextIdentityKey, decision.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

type SignupResponse struct {
	Message string           `json:"message"`
	User    types.PublicUser `json:"user"`
}

type UpdateImageRequest struct {
	ProfileImage string `json:"profile_image"`
}

type CommitURLRequest struct {
	ObjectKey string `json:"object_key"`
}

type ImageResponse struct {
	Message      string `json:"message"`
	ProfileImage string `json:"profile_image"`
}

type AuthorizeRequest struct {
	Token    string `json:"token"`
	Resource string `json:"resource"`
}

// Signup registers a new identity record.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.Signup(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name), req.ProfileImage)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{
		Message: "User created successfully",
		User:    user,
	})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, user, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// Profile returns the caller's current public identity.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.users.Profile(r.Context(), identity.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfileImage ingests an inline base64 image for the caller.
func (h *AuthHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req UpdateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	imageURL, err := h.users.UpdateProfileImage(r.Context(), identity, req.ProfileImage)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ImageResponse{
		Message:      "Profile image updated successfully",
		ProfileImage: imageURL,
	})
}

// CreateUploadGrant returns a presigned direct-upload URL for the caller.
func (h *AuthHandler) CreateUploadGrant(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	mimeType := r.URL.Query().Get("content_type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	grant, err := h.users.CreateUploadGrant(r.Context(), identity, mimeType)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// CommitProfileURL persists a previously granted upload as the caller's
// profile image.
func (h *AuthHandler) CommitProfileURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CommitURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	imageURL, err := h.users.CommitProfileURL(r.Context(), identity, req.ObjectKey)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ImageResponse{
		Message:      "Profile image updated successfully",
		ProfileImage: imageURL,
	})
}

// Authorize is the gateway authorizer boundary: it converts a presented
// token into a policy for the named resource. The response is always 200;
// the gateway acts on the policy's effect.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, h.codec.Authorize(req.Token, req.Resource))
}

// Healthz is a liveness probe.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
