// Package shutdown provides the process-wide cooperative stop flag shared by
// the poll loop and its consumers.
package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Controller is a set-once flag. The zero value is not usable; call New.
// A Controller never resets, so a new one is needed per process lifetime.
type Controller struct {
	set  atomic.Bool
	done chan struct{}
	once sync.Once
}

func New() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Set raises the flag and wakes every waiter. Safe to call repeatedly and
// from a signal handling goroutine.
func (c *Controller) Set() {
	c.once.Do(func() {
		c.set.Store(true)
		close(c.done)
	})
}

// IsSet reports the flag without blocking.
func (c *Controller) IsSet() bool {
	return c.set.Load()
}

// Wait sleeps for up to timeout and returns true as soon as the flag is set.
// It returns false if the timeout elapsed first.
func (c *Controller) Wait(timeout time.Duration) bool {
	if c.IsSet() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return true
	case <-timer.C:
		return c.IsSet()
	}
}

// Done returns a channel closed when the flag is set.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Context returns a context derived from parent that is cancelled when the
// flag is set.
func (c *Controller) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
