// Package api provides HTTP handlers for the chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/pairchat/internal/auth"
	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/registry"
	"github.com/ashureev/pairchat/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

// Sender persists and relays a message. Implemented by relay.Relay.
type Sender interface {
	Send(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error)
}

// Handler serves the REST surface next to the websocket channel.
type Handler struct {
	auth     *auth.Service
	users    store.UserDirectory
	messages store.MessageStore
	sender   Sender
	registry *registry.Registry
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(authSvc *auth.Service, users store.UserDirectory, messages store.MessageStore, sender Sender, reg *registry.Registry) *Handler {
	return &Handler{
		auth:     authSvc,
		users:    users,
		messages: messages,
		sender:   sender,
		registry: reg,
	}
}

// RegisterRoutes mounts every /api route. requireUser guards the routes that
// need an authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router, requireUser func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/auth/me", h.Me)
			r.Post("/auth/refresh", h.Refresh)
			r.Get("/users", h.ListUsers)
			r.Get("/messages/{userID}", h.Conversation)
			r.Post("/messages/send", h.SendMessage)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders err with its mapped status. Server-side failures are logged
// and replaced by a generic message.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
	case http.StatusServiceUnavailable:
		slog.Warn("Storage unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, domain.ErrStorage.Error())
	default:
		Error(w, status, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
