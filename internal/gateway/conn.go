package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Errors returned by Conn.Push.
var (
	ErrConnClosed = errors.New("connection closed")
	ErrOutboxFull = errors.New("outbox full")
)

const (
	defaultOutboxSize   = 64
	defaultWriteTimeout = 10 * time.Second
)

// Conn is an admitted websocket bound to one user for its whole lifetime.
// Events are queued on a bounded outbox and written by a single goroutine.
type Conn struct {
	id           string
	user         domain.UserID
	ws           *websocket.Conn
	outbox       chan domain.Event
	writeTimeout time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	onClose   func(*Conn)
}

func newConn(ws *websocket.Conn, user domain.UserID, outboxSize int, writeTimeout time.Duration, logger *slog.Logger, onClose func(*Conn)) *Conn {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Conn{
		id:           id,
		user:         user,
		ws:           ws,
		outbox:       make(chan domain.Event, outboxSize),
		writeTimeout: writeTimeout,
		logger:       logger.With("user_id", user, "conn_id", id),
		ctx:          ctx,
		cancel:       cancel,
		onClose:      onClose,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the identity bound at admission.
func (c *Conn) UserID() domain.UserID { return c.user }

// Push queues an event for the writer without blocking.
// A full outbox means the client is not keeping up; the caller drops the channel
// and the client catches up from the message history after reconnecting.
func (c *Conn) Push(ev domain.Event) error {
	if c.ctx.Err() != nil {
		return ErrConnClosed
	}

	select {
	case c.outbox <- ev:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
		c.logger.Warn("Outbox full", "queue_len", len(c.outbox), "event", ev.Type)
		return ErrOutboxFull
	}
}

// Ping sends a websocket ping and waits for the pong.
func (c *Conn) Ping(ctx context.Context) error {
	return c.ws.Ping(ctx)
}

// Close shuts the connection down once. It is safe to call from any goroutine,
// including the writer itself.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.onClose != nil {
			c.onClose(c)
		}
		c.logger.Info("Connection closed", "reason", reason, "queue_remaining", len(c.outbox))

		// The close handshake can wait on the peer; never block the caller on it.
		go func() {
			if err := c.ws.Close(websocket.StatusNormalClosure, reason); err != nil {
				c.logger.Debug("Failed to close websocket", "error", err)
			}
		}()
	})
}

func (c *Conn) startWriter() {
	c.wg.Add(1)
	go c.writeLoop()
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.outbox:
			start := time.Now()
			if err := c.write(ev); err != nil {
				if c.ctx.Err() == nil {
					c.logger.Warn("WebSocket write failed", "event", ev.Type, "error", err)
				}
				c.Close("write failed")
				return
			}
			if d := time.Since(start); d > time.Second {
				c.logger.Warn("Slow websocket write", "event", ev.Type, "duration_ms", d.Milliseconds())
			}
		}
	}
}

func (c *Conn) write(ev domain.Event) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, ev)
}

// wait blocks until the writer goroutine exits.
func (c *Conn) wait() {
	c.wg.Wait()
}
