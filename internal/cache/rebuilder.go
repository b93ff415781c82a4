package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// Rebuilder coalesces index rebuild requests. Persist batches arrive in
// bursts; running one rebuild for a burst is enough, and a rebuild that
// fails (store outage, bad data) retries with exponential backoff. Uses
// the dirty-while-processing pattern: a request landing mid-rebuild
// re-queues one more run instead of being lost.
type Rebuilder struct {
	store  *Store
	logger *zap.Logger

	mu       sync.Mutex
	dirty    bool // request arrived since the current/last run started
	attempts int  // consecutive failures, drives backoff
	closed   bool

	notify chan struct{}
	done   chan struct{}
}

// NewRebuilder creates a rebuilder for the given cache store. Call
// Start to begin processing and attach it to the store with
// Store.AttachRebuilder.
func NewRebuilder(s *Store, logger *zap.Logger) *Rebuilder {
	return &Rebuilder{
		store:  s,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Request schedules a rebuild. Multiple requests before the worker picks
// one up collapse into a single run.
func (r *Rebuilder) Request() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.dirty = true

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (r *Rebuilder) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Rebuilder) loop(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-r.notify:
			if !ok {
				return
			}
		}

		for r.takeDirty() {
			if err := r.store.RebuildIndex(ctx); err != nil {
				backoff := r.nextBackoff()
				r.logger.Error("index rebuild failed, backing off",
					zap.Duration("backoff", backoff),
					zap.Error(err),
				)
				// Re-mark dirty so the retry actually runs.
				r.Request()

				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			r.resetBackoff()
		}
	}
}

// takeDirty consumes the dirty flag, reporting whether a run is owed.
func (r *Rebuilder) takeDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return false
	}
	r.dirty = false
	return true
}

func (r *Rebuilder) nextBackoff() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	// Clamp the shift: 1s<<6 already exceeds the cap, and larger shifts
	// would eventually overflow to a zero backoff.
	shift := r.attempts - 1
	if shift > 6 {
		shift = 6
	}
	backoff := initialBackoff * (1 << shift)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (r *Rebuilder) resetBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
}

// Stop shuts the worker down and waits for it to finish. Only valid
// after Start.
func (r *Rebuilder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.notify)
	r.mu.Unlock()

	<-r.done
}
