// internal/browser/netidle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// networkTracker counts in-flight requests from CDP network events so the
// page can report when the network has gone quiet.
type networkTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

// attach registers the tracker on a chromedp context. The network domain
// must be enabled separately.
func (t *networkTracker) attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.mu.Lock()
			t.inflight[e.RequestID] = struct{}{}
			t.lastActivity = time.Now()
			t.mu.Unlock()
		case *network.EventLoadingFinished:
			t.finish(e.RequestID)
		case *network.EventLoadingFailed:
			t.finish(e.RequestID)
		}
	})
}

func (t *networkTracker) finish(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// reset forgets requests from a previous document, called on navigation.
func (t *networkTracker) reset() {
	t.mu.Lock()
	t.inflight = make(map[network.RequestID]struct{})
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

func (t *networkTracker) quietFor(quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && time.Since(t.lastActivity) >= quiet
}

// waitIdle blocks until no request has been in flight for quietPeriod, the
// timeout elapses, or ctx is canceled. A timeout is reported as an error;
// the page may legitimately never go idle (e.g. long-polling).
func (t *networkTracker) waitIdle(ctx context.Context, quietPeriod, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if t.quietFor(quietPeriod) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return context.DeadlineExceeded
		case <-ticker.C:
		}
	}
}
