// Package gateway admits authenticated websocket connections and serves the
// live channel protocol on top of them.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/identity"
	"github.com/ashureev/pairchat/internal/registry"
	"github.com/ashureev/pairchat/internal/session"
	"github.com/coder/websocket"
)

// Inbound frame types.
const (
	frameSendMessage = "send_message"
	framePing        = "ping"
)

// Sender persists and relays a message. Implemented by relay.Relay.
type Sender interface {
	Send(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error)
}

// Options tunes admitted connections.
type Options struct {
	AllowedOrigin string
	IsDev         bool
	OutboxSize    int
	WriteTimeout  time.Duration
	// SendTimeout bounds one send_message request, including persistence.
	SendTimeout time.Duration
}

// Admission upgrades verified requests into registered live channels.
//
// A request is verified before the upgrade; a rejected request gets a plain
// HTTP 401 and never touches the registry. An admitted connection keeps the
// identity it was admitted with until it closes.
type Admission struct {
	verifier session.Verifier
	registry *registry.Registry
	sender   Sender
	opts     Options
	logger   *slog.Logger
}

// NewAdmission creates the websocket admission handler.
func NewAdmission(verifier session.Verifier, reg *registry.Registry, sender Sender, opts Options, logger *slog.Logger) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Admission{
		verifier: verifier,
		registry: reg,
		sender:   sender,
		opts:     opts,
		logger:   logger,
	}
}

// inboundFrame is a client request on an admitted connection.
type inboundFrame struct {
	Type       string        `json:"type"`
	ReceiverID domain.UserID `json:"receiver_id,omitempty"`
	Text       string        `json:"text,omitempty"`
}

type readyPayload struct {
	UserID domain.UserID `json:"user_id"`
	ConnID string        `json:"conn_id"`
}

// ServeHTTP implements http.Handler for the websocket endpoint.
func (a *Admission) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := a.verifier.Verify(r.Context(), session.CredentialFromRequest(r))
	if err != nil {
		a.logger.Info("WebSocket admission rejected", "ip", identity.IPFromRequest(r), "error", err)
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if !a.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		a.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	conn := newConn(ws, userID, a.opts.OutboxSize, a.opts.WriteTimeout, a.logger, func(c *Conn) {
		a.registry.Deregister(c.UserID(), c)
	})

	// ready is queued before the writer starts, so it is always the first frame
	// and the client only sees it once the channel is registered.
	_ = conn.Push(domain.Event{Type: domain.EventReady, Payload: readyPayload{UserID: userID, ConnID: conn.ID()}})
	a.registry.Register(userID, conn)
	conn.startWriter()

	a.readLoop(r.Context(), conn)
	conn.Close("connection ended")
	conn.wait()
}

func (a *Admission) checkOrigin(r *http.Request) bool {
	if a.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || a.opts.AllowedOrigin == "" || a.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == a.opts.AllowedOrigin {
		return true
	}
	a.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", a.opts.AllowedOrigin)
	return false
}

func (a *Admission) readLoop(ctx context.Context, conn *Conn) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				conn.logger.Debug("WebSocket closed by client", "status", websocket.CloseStatus(err))
			} else if conn.ctx.Err() == nil {
				conn.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			a.reply(conn, domain.Event{Type: domain.EventError, Error: "malformed frame"})
			continue
		}

		switch frame.Type {
		case framePing:
			a.reply(conn, domain.Event{Type: domain.EventPong})
		case frameSendMessage:
			a.handleSend(ctx, conn, frame)
		default:
			a.reply(conn, domain.Event{Type: domain.EventError, Error: "unknown frame type"})
		}
	}
}

func (a *Admission) handleSend(ctx context.Context, conn *Conn, frame inboundFrame) {
	sendCtx, cancel := context.WithTimeout(ctx, a.opts.SendTimeout)
	defer cancel()

	msg, err := a.sender.Send(sendCtx, conn.UserID(), frame.ReceiverID, frame.Text)
	if err != nil {
		a.reply(conn, domain.Event{Type: domain.EventError, Error: publicError(err)})
		return
	}
	a.reply(conn, domain.Event{Type: domain.EventMessageSent, Payload: msg})
}

func (a *Admission) reply(conn *Conn, ev domain.Event) {
	if err := conn.Push(ev); err != nil {
		conn.logger.Debug("Failed to queue reply", "event", ev.Type, "error", err)
		conn.Close("reply failed")
	}
}

// publicError renders an error for the client without leaking storage details.
func publicError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	case errors.Is(err, domain.ErrStorage):
		return "message could not be stored, try again"
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
