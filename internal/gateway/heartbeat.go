package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ashureev/pairchat/internal/registry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	maxConcurrentPings       = 256
)

// StartHeartbeat runs a background goroutine that pings every registered
// channel and drops the ones that do not answer within interval/2.
func StartHeartbeat(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Heartbeat worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweepDeadChannels(ctx, reg, interval/2)
			case <-ctx.Done():
				slog.Info("Heartbeat worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// sweepDeadChannels pings every channel concurrently and returns how many
// were dropped. A sweep takes about one timeout no matter how many channels hang.
func sweepDeadChannels(ctx context.Context, reg *registry.Registry, timeout time.Duration) int {
	channels := reg.Snapshot()
	if len(channels) == 0 {
		return 0
	}

	var dropped atomic.Int64
	var g errgroup.Group
	g.SetLimit(maxConcurrentPings)

	for _, ch := range channels {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := ch.Ping(pingCtx)
			cancel()
			if err == nil || ctx.Err() != nil {
				return nil
			}

			slog.Info("Heartbeat failed, dropping channel",
				"user_id", ch.UserID(),
				"conn_id", ch.ID(),
				"error", err)
			ch.Close("heartbeat timeout")
			reg.Deregister(ch.UserID(), ch)
			dropped.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(dropped.Load())
	if n > 0 {
		slog.Info("Heartbeat sweep completed", "checked", len(channels), "dropped", n)
	}
	return n
}
