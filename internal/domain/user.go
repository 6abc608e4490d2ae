// Package domain contains core domain types for the chat backend.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserID is the canonical user identity. Every boundary (registry keys,
// credential claims, SQL columns, JSON) uses this representation.
type UserID int64

// String renders the id in base 10.
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Valid reports whether the id can refer to a stored user.
func (id UserID) Valid() bool {
	return id > 0
}

// ParseUserID normalizes a textual identity (path segment, query value) into a UserID.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", ErrValidation, s)
	}
	return UserID(n), nil
}

// User represents a registered user.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary is the peer-list projection of a user.
type UserSummary struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Online    bool      `json:"online"`
}

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
