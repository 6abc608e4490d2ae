// Package registry tracks which live channels are currently open for each user.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/pairchat/internal/domain"
)

const shardCount = 32

// Channel is one open, authenticated connection of a user.
type Channel interface {
	// ID is unique per connection, not per user.
	ID() string
	UserID() domain.UserID
	// Push enqueues an event without blocking. An error means the channel is dead.
	Push(ev domain.Event) error
	Ping(ctx context.Context) error
	Close(reason string)
}

type shard struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[string]Channel
}

// Registry maps users to their live channels.
// Users are spread across independently locked shards.
type Registry struct {
	shards [shardCount]*shard
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[domain.UserID]map[string]Channel)}
	}
	return r
}

func (r *Registry) shardFor(user domain.UserID) *shard {
	return r.shards[uint64(user)%shardCount]
}

// Register adds a channel for user. Registering the same channel twice keeps one entry.
func (r *Registry) Register(user domain.UserID, ch Channel) {
	s := r.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, ok := s.users[user]
	if !ok {
		channels = make(map[string]Channel)
		s.users[user] = channels
	}
	channels[ch.ID()] = ch
	slog.Info("Channel registered", "user_id", user, "conn_id", ch.ID(), "user_channels", len(channels))
}

// Deregister removes a channel for user. Removing an absent channel is a no-op.
func (r *Registry) Deregister(user domain.UserID, ch Channel) {
	s := r.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, ok := s.users[user]
	if !ok {
		return
	}
	if current, exists := channels[ch.ID()]; !exists || current != ch {
		return
	}
	delete(channels, ch.ID())
	if len(channels) == 0 {
		delete(s.users, user)
	}
	slog.Info("Channel deregistered", "user_id", user, "conn_id", ch.ID())
}

// Lookup returns a snapshot of the user's channels. The slice is safe to use
// after concurrent registry changes.
func (r *Registry) Lookup(user domain.UserID) []Channel {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := s.users[user]
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch)
	}
	return out
}

// IsOnline reports whether the user has at least one live channel.
func (r *Registry) IsOnline(user domain.UserID) bool {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[user]) > 0
}

// Count returns the number of online users and open channels.
func (r *Registry) Count() (users, channels int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, chs := range s.users {
			channels += len(chs)
		}
		s.mu.RUnlock()
	}
	return users, channels
}

// Snapshot returns every registered channel.
func (r *Registry) Snapshot() []Channel {
	var out []Channel
	for _, s := range r.shards {
		s.mu.RLock()
		for _, chs := range s.users {
			for _, ch := range chs {
				out = append(out, ch)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// CloseAll closes and removes every channel.
func (r *Registry) CloseAll(reason string) {
	for _, s := range r.shards {
		s.mu.Lock()
		users := s.users
		s.users = make(map[domain.UserID]map[string]Channel)
		s.mu.Unlock()

		// Close outside the lock; a closing channel deregisters itself.
		for user, chs := range users {
			for id, ch := range chs {
				ch.Close(reason)
				slog.Info("Channel closed", "user_id", user, "conn_id", id, "reason", reason)
			}
		}
	}
}
