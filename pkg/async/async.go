package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// Func is a unit of best-effort work.
type Func func(ctx context.Context) error

// BestEffort runs fn synchronously and discards its error after logging it.
// Panics are recovered and logged the same way. The return value reports
// whether fn succeeded so callers can count drops without handling errors.
func BestEffort(ctx context.Context, log *slog.Logger, name string, fn Func) (ok bool) {
	if log == nil {
		log = slog.Default()
	}

	defer func() {
		if r := recover(); r != nil {
			log.LogAttrs(ctx, slog.LevelError, "best-effort operation panicked",
				logger.Component(name),
				logger.Error(fmt.Errorf("%w: %v", ErrPanic, r)),
			)
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		log.LogAttrs(ctx, slog.LevelWarn, "best-effort operation failed",
			logger.Component(name),
			logger.Error(err),
		)
		return false
	}
	return true
}

// Group runs best-effort work in the background and lets owners wait for it
// during shutdown. Work started by Go is detached from the caller's
// cancellation, since it usually outlives the request that triggered it.
type Group struct {
	wg      sync.WaitGroup
	logger  *slog.Logger
	timeout time.Duration
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithLogger sets the logger used for failures.
func WithLogger(l *slog.Logger) GroupOption {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithTimeout bounds every unit of work started by Go. Zero disables the bound.
func WithTimeout(d time.Duration) GroupOption {
	return func(g *Group) {
		if d >= 0 {
			g.timeout = d
		}
	}
}

// NewGroup creates a Group with a 30 second per-task timeout.
func NewGroup(opts ...GroupOption) *Group {
	g := &Group{
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Go starts fn in a new goroutine. It never blocks the caller and never
// reports an error back; failures are logged.
func (g *Group) Go(ctx context.Context, name string, fn Func) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		taskCtx := context.WithoutCancel(ctx)
		if g.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(taskCtx, g.timeout)
			defer cancel()
		}

		BestEffort(taskCtx, g.logger, name, fn)
	}()
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitWithTimeout waits like Wait but gives up after d and returns ErrTimeout.
func (g *Group) WaitWithTimeout(d time.Duration) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(d):
		return ErrTimeout
	}
}
