// Package relay persists a private message and pushes it to the receiver's live channels.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/registry"
	"github.com/ashureev/pairchat/internal/shared"
	"github.com/ashureev/pairchat/internal/store"
)

// DefaultAppendTimeout bounds a single store append.
const DefaultAppendTimeout = 5 * time.Second

// Directory is the subset of the user directory the relay needs.
type Directory interface {
	Exists(ctx context.Context, id domain.UserID) (bool, error)
}

// Relay sends messages: store first, then best-effort push.
type Relay struct {
	store         store.MessageStore
	directory     Directory
	registry      *registry.Registry
	appendTimeout time.Duration
	logger        *slog.Logger
	maxLen        int
}

// Option configures a Relay.
type Option func(*Relay)

// WithAppendTimeout overrides DefaultAppendTimeout.
func WithAppendTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.appendTimeout = d
		}
	}
}

// WithMaxMessageLength sets the text limit checked before the directory lookup.
func WithMaxMessageLength(n int) Option {
	return func(r *Relay) { r.maxLen = n }
}

// WithLogger sets the relay logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a relay.
func New(s store.MessageStore, dir Directory, reg *registry.Registry, opts ...Option) *Relay {
	r := &Relay{
		store:         s,
		directory:     dir,
		registry:      reg,
		appendTimeout: DefaultAppendTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send persists one message from sender to receiver and delivers it to every
// live channel of the receiver. The returned message is durable; delivery
// failures never fail the call.
func (r *Relay) Send(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error) {
	if _, err := domain.ValidateMessage(sender, receiver, text, r.maxLen); err != nil {
		return nil, err
	}

	ok, err := r.directory.Exists(ctx, receiver)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup receiver: %w", domain.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown receiver %s", domain.ErrValidation, receiver)
	}

	appendCtx, cancel := context.WithTimeout(ctx, r.appendTimeout)
	msg, err := r.store.Append(appendCtx, sender, receiver, text)
	cancel()
	if err != nil {
		if shared.IsContextError(err) {
			r.logger.Warn("Message append timed out", "sender_id", sender, "receiver_id", receiver, "timeout", r.appendTimeout)
		} else {
			r.logger.Warn("Message append failed", "sender_id", sender, "receiver_id", receiver, "error", err)
		}
		return nil, err
	}

	r.deliver(msg)
	return msg, nil
}

func (r *Relay) deliver(msg *domain.Message) {
	channels := r.registry.Lookup(msg.ReceiverID)
	if len(channels) == 0 {
		r.logger.Debug("Receiver offline, message stored only", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
		return
	}

	ev := domain.NewMessageEvent(msg)
	for _, ch := range channels {
		if err := ch.Push(ev); err != nil {
			r.logger.Warn("Push failed, dropping channel",
				"message_id", msg.ID,
				"receiver_id", msg.ReceiverID,
				"conn_id", ch.ID(),
				"error", fmt.Errorf("%w: %w", domain.ErrDelivery, err))
			ch.Close("delivery failed")
			r.registry.Deregister(msg.ReceiverID, ch)
		}
	}
}
