// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/pairchat/internal/domain"
)

// MessageStore is the durable, ordered record of private messages.
type MessageStore interface {
	// Append validates and persists one message, assigning its id and
	// created_at atomically with the write. A failed append leaves no row behind.
	Append(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error)

	// ReadConversation returns the messages exchanged between a and b in either
	// direction, ordered by created_at then id. When afterID > 0 only messages
	// with a greater id are returned. An empty conversation is not an error.
	ReadConversation(ctx context.Context, a, b domain.UserID, afterID int64) ([]domain.Message, error)

	// Ping verifies the durability layer is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// UserDirectory stores registered users and answers peer queries.
type UserDirectory interface {
	// CreateUser inserts a user. Returns domain.ErrConflict if the username or email is taken.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error)

	// GetUser retrieves a user by id. Returns domain.ErrNotFound if absent.
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetUserByEmail retrieves a user by email. Returns domain.ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// ListOthers returns every user except the given one, ordered by username.
	ListOthers(ctx context.Context, excluding domain.UserID) ([]domain.User, error)

	// Exists reports whether a user with the given id is registered.
	Exists(ctx context.Context, id domain.UserID) (bool, error)
}

var (
	_ MessageStore  = (*SQLiteStore)(nil)
	_ UserDirectory = (*SQLiteStore)(nil)
	_ MessageStore  = (*BadgerMessageStore)(nil)
)
