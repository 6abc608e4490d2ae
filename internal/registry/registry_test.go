package registry

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id     string
	user   domain.UserID
	mu     sync.Mutex
	closed string
}

func newFakeChannel(user domain.UserID) *fakeChannel {
	return &fakeChannel{id: uuid.NewString(), user: user}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) UserID() domain.UserID { return c.user }

func (c *fakeChannel) Push(domain.Event) error { return nil }

func (c *fakeChannel) Ping(context.Context) error { return nil }

func (c *fakeChannel) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

func (c *fakeChannel) closedWith() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistry_RegisterLookup(t *testing.T) {
	req := require.New(t)
	r := New()
	ch := newFakeChannel(7)

	req.Empty(r.Lookup(7))
	req.False(r.IsOnline(7))

	r.Register(7, ch)

	req.Equal([]Channel{ch}, r.Lookup(7))
	req.True(r.IsOnline(7))
	req.Empty(r.Lookup(8))
}

func TestRegistry_RegisterDeregisterLeavesEmpty(t *testing.T) {
	req := require.New(t)
	r := New()
	ch := newFakeChannel(7)

	r.Register(7, ch)
	r.Deregister(7, ch)

	req.Empty(r.Lookup(7))
	req.False(r.IsOnline(7))
	users, channels := r.Count()
	req.Zero(users)
	req.Zero(channels)
}

func TestRegistry_DuplicateRegisterSingleEntry(t *testing.T) {
	req := require.New(t)
	r := New()
	ch := newFakeChannel(7)

	r.Register(7, ch)
	r.Register(7, ch)

	req.Len(r.Lookup(7), 1)
}

func TestRegistry_DeregisterAbsentIsNoop(t *testing.T) {
	req := require.New(t)
	r := New()
	kept := newFakeChannel(7)
	r.Register(7, kept)

	r.Deregister(7, newFakeChannel(7))
	r.Deregister(9, newFakeChannel(9))

	req.Equal([]Channel{kept}, r.Lookup(7))
}

func TestRegistry_MultipleTabs(t *testing.T) {
	req := require.New(t)
	r := New()
	tab1 := newFakeChannel(7)
	tab2 := newFakeChannel(7)

	r.Register(7, tab1)
	r.Register(7, tab2)
	req.ElementsMatch([]Channel{tab1, tab2}, r.Lookup(7))

	// Closing one tab leaves the other reachable.
	r.Deregister(7, tab1)
	req.Equal([]Channel{tab2}, r.Lookup(7))

	users, channels := r.Count()
	req.Equal(1, users)
	req.Equal(1, channels)
}

func TestRegistry_LookupIsSnapshot(t *testing.T) {
	req := require.New(t)
	r := New()
	ch := newFakeChannel(7)
	r.Register(7, ch)

	snapshot := r.Lookup(7)
	r.Deregister(7, ch)

	req.Len(snapshot, 1)
	req.Empty(r.Lookup(7))
}

func TestRegistry_CloseAll(t *testing.T) {
	req := require.New(t)
	r := New()
	a := newFakeChannel(1)
	b := newFakeChannel(2)
	c := newFakeChannel(33) // same shard as 1
	r.Register(1, a)
	r.Register(2, b)
	r.Register(33, c)
	req.Len(r.Snapshot(), 3)

	r.CloseAll("server shutting down")

	for _, ch := range []*fakeChannel{a, b, c} {
		req.Equal("server shutting down", ch.closedWith())
	}
	req.Empty(r.Snapshot())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	r := New()
	const users, tabs = 64, 20

	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(user domain.UserID) {
			defer wg.Done()
			for i := 0; i < tabs; i++ {
				ch := newFakeChannel(user)
				r.Register(user, ch)
				_ = r.Lookup(user)
				_ = r.IsOnline(user + 1)
				if i%2 == 0 {
					r.Deregister(user, ch)
				}
			}
		}(domain.UserID(u))
	}
	wg.Wait()

	total, channels := r.Count()
	req.Equal(users, total)
	req.Equal(users*tabs/2, channels)
	for u := 1; u <= users; u++ {
		req.Len(r.Lookup(domain.UserID(u)), tabs/2, "user "+strconv.Itoa(u))
	}
}
