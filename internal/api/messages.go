package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/identity"
	"github.com/go-chi/chi/v5"
)

type sendMessageRequest struct {
	ReceiverID  domain.UserID `json:"receiver_id"`
	MessageText string        `json:"message_text"`
}

// Conversation returns the caller's conversation with the user in the path.
// ?after=<id> limits the result to newer messages, for catch-up after a reconnect.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	me := identity.UserIDFromContext(r.Context())

	peer, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var afterID int64
	if v := r.URL.Query().Get("after"); v != "" {
		afterID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || afterID < 0 {
			writeErr(w, r, fmt.Errorf("%w: invalid after cursor %q", domain.ErrValidation, v))
			return
		}
	}

	messages, err := h.messages.ReadConversation(r.Context(), me, peer, afterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	JSON(w, http.StatusOK, messages)
}

// SendMessage stores a message and pushes it to the receiver's live channels.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	msg, err := h.sender.Send(r.Context(), identity.UserIDFromContext(r.Context()), req.ReceiverID, req.MessageText)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}
