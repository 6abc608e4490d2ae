package api

import (
	"net/http"

	"github.com/ashureev/pairchat/internal/auth"
	"github.com/ashureev/pairchat/internal/identity"
)

// Register creates an account and returns its first session.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	sess, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// Login exchanges email and password for a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	sess, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	summary := user.Summary()
	summary.Online = h.registry.IsOnline(user.ID)
	JSON(w, http.StatusOK, map[string]interface{}{"user": summary})
}

// Refresh issues a new token for the authenticated user.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.Refresh(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}
