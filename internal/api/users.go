package api

import (
	"net/http"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/identity"
	"github.com/samber/lo"
)

// ListUsers returns every other user with a live presence flag.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	me := identity.UserIDFromContext(r.Context())

	users, err := h.users.ListOthers(r.Context(), me)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	JSON(w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) domain.UserSummary {
		s := u.Summary()
		s.Online = h.registry.IsOnline(u.ID)
		return s
	}))
}
