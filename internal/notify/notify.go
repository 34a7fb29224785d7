// Package notify implements an unbuffered, payload-less broadcast signal. A
// notification means only "state changed, re-check"; it is delivered to the
// observers waiting at the moment Notify is called and is otherwise lost.
package notify

import (
	"context"
	"sync"
	"time"
)

type Notifier struct {
	mu      sync.Mutex
	waiters chan struct{}
	sent    uint64
}

func New() *Notifier {
	return &Notifier{waiters: make(chan struct{})}
}

// Notify wakes every observer currently blocked in Wait.
func (n *Notifier) Notify() {
	n.mu.Lock()
	close(n.waiters)
	n.waiters = make(chan struct{})
	n.sent++
	n.mu.Unlock()
}

// Wait blocks until the next Notify, the timeout, or the end of ctx. It
// returns true only when woken by a notification.
func (n *Notifier) Wait(ctx context.Context, timeout time.Duration) bool {
	n.mu.Lock()
	ch := n.waiters
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Sent returns the number of notifications issued so far.
func (n *Notifier) Sent() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}
