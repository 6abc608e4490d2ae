package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "chat.db"), domain.DefaultMaxMessageLength)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := s.CreateUser(context.Background(), name, name+"@example.com", "hash")
		require.NoError(t, err)
	}
	return s
}

func newTestBadger(t *testing.T) *BadgerMessageStore {
	t.Helper()
	s, err := NewBadgerMessageStore(t.TempDir(), domain.DefaultMaxMessageLength, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// backends runs the same behavioral checks against every MessageStore.
func backends(t *testing.T, fn func(t *testing.T, s MessageStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLite(t)) })
	t.Run("badger", func(t *testing.T) { fn(t, newTestBadger(t)) })
}

func TestAppendAndReadConversation(t *testing.T) {
	backends(t, func(t *testing.T, s MessageStore) {
		req := require.New(t)
		ctx := context.Background()

		first, err := s.Append(ctx, 1, 2, "hi")
		req.NoError(err)
		req.Positive(first.ID)
		req.Equal(domain.UserID(1), first.SenderID)
		req.Equal(domain.UserID(2), first.ReceiverID)
		req.Equal("hi", first.Text)
		req.False(first.CreatedAt.IsZero())

		other, err := s.Append(ctx, 1, 3, "not for bob")
		req.NoError(err)

		reply, err := s.Append(ctx, 2, 1, "  hello back  ")
		req.NoError(err)
		req.Equal("hello back", reply.Text)
		req.Greater(reply.ID, other.ID)
		req.Greater(other.ID, first.ID)

		conv, err := s.ReadConversation(ctx, 1, 2, 0)
		req.NoError(err)
		req.Len(conv, 2)
		req.Equal(first.ID, conv[0].ID)
		req.Equal(reply.ID, conv[1].ID)
		req.True(conv[0].Before(&conv[1]))
		for i := range conv {
			req.True(conv[i].Involves(1, 2))
		}
		req.True(conv[0].CreatedAt.Equal(first.CreatedAt))

		reversed, err := s.ReadConversation(ctx, 2, 1, 0)
		req.NoError(err)
		req.Equal(conv, reversed)

		after, err := s.ReadConversation(ctx, 1, 2, first.ID)
		req.NoError(err)
		req.Len(after, 1)
		req.Equal(reply.ID, after[0].ID)
	})
}

func TestReadConversationEmpty(t *testing.T) {
	backends(t, func(t *testing.T, s MessageStore) {
		req := require.New(t)
		conv, err := s.ReadConversation(context.Background(), 2, 3, 0)
		req.NoError(err)
		req.NotNil(conv)
		req.Empty(conv)
	})
}

func TestAppendRejectsInvalidMessages(t *testing.T) {
	backends(t, func(t *testing.T, s MessageStore) {
		req := require.New(t)
		ctx := context.Background()

		_, err := s.Append(ctx, 1, 1, "talking to myself")
		req.ErrorIs(err, domain.ErrValidation)

		_, err = s.Append(ctx, 1, 2, "   ")
		req.ErrorIs(err, domain.ErrValidation)

		tooLong := make([]byte, domain.DefaultMaxMessageLength+1)
		for i := range tooLong {
			tooLong[i] = 'x'
		}
		_, err = s.Append(ctx, 1, 2, string(tooLong))
		req.ErrorIs(err, domain.ErrValidation)

		conv, err := s.ReadConversation(ctx, 1, 2, 0)
		req.NoError(err)
		req.Empty(conv)

		self, err := s.ReadConversation(ctx, 1, 1, 0)
		req.NoError(err)
		req.Empty(self)
	})
}

func TestAppendCancelledContextWritesNothing(t *testing.T) {
	backends(t, func(t *testing.T, s MessageStore) {
		req := require.New(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Append(ctx, 1, 2, "never stored")
		req.ErrorIs(err, domain.ErrStorage)

		conv, err := s.ReadConversation(context.Background(), 1, 2, 0)
		req.NoError(err)
		req.Empty(conv)
	})
}

func TestAppendGivesUpWhileWaitingForWriter(t *testing.T) {
	for name, open := range map[string]func(*testing.T) (MessageStore, *semaphore.Weighted){
		"sqlite": func(t *testing.T) (MessageStore, *semaphore.Weighted) {
			s := newTestSQLite(t)
			return s, s.writeSem
		},
		"badger": func(t *testing.T) (MessageStore, *semaphore.Weighted) {
			s := newTestBadger(t)
			return s, s.writeSem
		},
	} {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			s, sem := open(t)

			// Another append is holding the writer.
			req.NoError(sem.Acquire(context.Background(), 1))
			released := false
			defer func() {
				if !released {
					sem.Release(1)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := s.Append(ctx, 1, 2, "queued too long")
			elapsed := time.Since(start)

			req.ErrorIs(err, domain.ErrStorage)
			req.ErrorIs(err, context.DeadlineExceeded)
			req.Less(elapsed, time.Second)

			sem.Release(1)
			released = true

			conv, err := s.ReadConversation(context.Background(), 1, 2, 0)
			req.NoError(err)
			req.Empty(conv)
		})
	}
}

func TestBadgerAppendCancelledDuringWriteCommitsNothing(t *testing.T) {
	req := require.New(t)
	s := newTestBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The clock is read after the writer is acquired and before the transaction.
	s.now = func() time.Time {
		cancel()
		return time.Now()
	}

	_, err := s.Append(ctx, 1, 2, "too late")
	req.ErrorIs(err, domain.ErrStorage)
	req.ErrorIs(err, context.Canceled)
	req.Zero(s.lastCreatedAt)

	conv, err := s.ReadConversation(context.Background(), 1, 2, 0)
	req.NoError(err)
	req.Empty(conv)
}

func TestConcurrentAppendsGetUniqueOrderedIDs(t *testing.T) {
	backends(t, func(t *testing.T, s MessageStore) {
		req := require.New(t)
		ctx := context.Background()
		const writers, perWriter = 8, 10

		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				sender, receiver := domain.UserID(1), domain.UserID(2)
				if w%2 == 1 {
					sender, receiver = receiver, sender
				}
				for i := 0; i < perWriter; i++ {
					if _, err := s.Append(ctx, sender, receiver, fmt.Sprintf("w%d-%d", w, i)); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}

		conv, err := s.ReadConversation(ctx, 1, 2, 0)
		req.NoError(err)
		req.Len(conv, writers*perWriter)

		seen := make(map[int64]struct{}, len(conv))
		for i := range conv {
			_, dup := seen[conv[i].ID]
			req.False(dup, "duplicate id %d", conv[i].ID)
			seen[conv[i].ID] = struct{}{}
			if i > 0 {
				req.True(conv[i-1].Before(&conv[i]), "messages out of order at %d", i)
			}
		}
		req.True(sort.SliceIsSorted(conv, func(i, j int) bool { return conv[i].ID < conv[j].ID }))
	})
}

func TestCreatedAtNeverMovesBackwards(t *testing.T) {
	req := require.New(t)
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	first, err := s.Append(ctx, 1, 2, "first")
	req.NoError(err)

	s.now = func() time.Time { return base.Add(-time.Minute) }
	second, err := s.Append(ctx, 1, 2, "second")
	req.NoError(err)

	req.True(second.CreatedAt.Equal(first.CreatedAt))
	req.Greater(second.ID, first.ID)

	conv, err := s.ReadConversation(ctx, 1, 2, 0)
	req.NoError(err)
	req.Equal([]int64{first.ID, second.ID}, []int64{conv[0].ID, conv[1].ID})
}

func TestSQLiteUnknownParticipant(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Append(context.Background(), 1, 99, "hello?")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSQLiteUserDirectory(t *testing.T) {
	req := require.New(t)
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "other@example.com", "hash")
	req.ErrorIs(err, domain.ErrConflict)
	_, err = s.CreateUser(ctx, "alice2", "ALICE@example.com", "hash")
	req.ErrorIs(err, domain.ErrConflict)

	user, err := s.GetUserByEmail(ctx, " Bob@Example.com ")
	req.NoError(err)
	req.Equal("bob", user.Username)
	req.Equal("hash", user.PasswordHash)

	byID, err := s.GetUser(ctx, user.ID)
	req.NoError(err)
	req.Equal(user, byID)

	_, err = s.GetUser(ctx, 404)
	req.ErrorIs(err, domain.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	req.ErrorIs(err, domain.ErrNotFound)

	others, err := s.ListOthers(ctx, user.ID)
	req.NoError(err)
	req.Len(others, 2)
	req.Equal("alice", others[0].Username)
	req.Equal("carol", others[1].Username)

	ok, err := s.Exists(ctx, user.ID)
	req.NoError(err)
	req.True(ok)
	ok, err = s.Exists(ctx, 404)
	req.NoError(err)
	req.False(ok)
}

func TestSQLiteReopenKeepsOrdering(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	s, err := NewSQLite(path, 0)
	req.NoError(err)
	_, err = s.CreateUser(ctx, "alice", "alice@example.com", "hash")
	req.NoError(err)
	_, err = s.CreateUser(ctx, "bob", "bob@example.com", "hash")
	req.NoError(err)
	future := time.Now().Add(time.Hour)
	s.now = func() time.Time { return future }
	first, err := s.Append(ctx, 1, 2, "from the future")
	req.NoError(err)
	req.NoError(s.Close())

	s, err = NewSQLite(path, 0)
	req.NoError(err)
	defer s.Close()

	second, err := s.Append(ctx, 2, 1, "now")
	req.NoError(err)
	req.Greater(second.ID, first.ID)
	req.False(second.CreatedAt.Before(first.CreatedAt))
}

func TestBadgerReopenContinuesIDs(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadgerMessageStore(dir, 0, nil)
	req.NoError(err)
	first, err := s.Append(ctx, 1, 2, "before restart")
	req.NoError(err)
	req.NoError(s.Close())

	s, err = NewBadgerMessageStore(dir, 0, nil)
	req.NoError(err)
	defer s.Close()

	second, err := s.Append(ctx, 2, 1, "after restart")
	req.NoError(err)
	req.Greater(second.ID, first.ID)

	conv, err := s.ReadConversation(ctx, 1, 2, 0)
	req.NoError(err)
	req.Len(conv, 2)
	req.Equal("before restart", conv[0].Text)
	req.Equal("after restart", conv[1].Text)
	req.NoError(s.Ping(ctx))
}
