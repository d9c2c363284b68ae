package replay

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/internal/broadcast"
	"github.com/xiaot623/replay/internal/timeline"
	"github.com/xiaot623/replay/store"
)

// RegistryOptions tune session lifecycle and playback scheduling.
type RegistryOptions struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	MinDwell        time.Duration
	MaxDwell        time.Duration
}

func (o *RegistryOptions) defaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Minute
	}
	if o.MinDwell <= 0 {
		o.MinDwell = 50 * time.Millisecond
	}
	if o.MaxDwell <= 0 {
		o.MaxDwell = 5 * time.Second
	}
}

// Registry owns every live replay session. It is the only process-wide
// state: constructed at startup, passed into handlers, drained at
// shutdown. Closed replay ids are tombstoned for the process lifetime so
// a late command never silently lands on released state.
type Registry struct {
	st   store.Store
	bc   *broadcast.Broadcaster
	opts RegistryOptions
	clk  clock

	mu         sync.RWMutex
	sessions   map[string]*Session
	tombstones map[string]bool
}

// NewRegistry creates a registry over the given session store and
// broadcaster.
func NewRegistry(st store.Store, bc *broadcast.Broadcaster, opts RegistryOptions) *Registry {
	opts.defaults()
	return &Registry{
		st:         st,
		bc:         bc,
		opts:       opts,
		clk:        realClock{},
		sessions:   make(map[string]*Session),
		tombstones: make(map[string]bool),
	}
}

// PrepareOptions configure a prepare call.
type PrepareOptions struct {
	Build timeline.BuildOptions
	Owner string
}

// Prepare builds the session's timeline and wraps it in a fresh replay
// session.
func (r *Registry) Prepare(ctx context.Context, sessionID string, opts PrepareOptions) (*Session, error) {
	tl, err := timeline.Build(ctx, r.st, sessionID, opts.Build)
	if err != nil {
		return nil, err
	}
	return r.register(tl, opts.Owner), nil
}

// Compare builds each session's timeline, merges them by absolute
// wall-clock timestamp, and wraps the merged timeline in a replay
// session for side-by-side scrubbing.
func (r *Registry) Compare(ctx context.Context, sessionIDs []string, opts PrepareOptions) (*Session, error) {
	if len(sessionIDs) == 0 {
		return nil, fmt.Errorf("compare needs at least one session: %w", domain.ErrInvalidRange)
	}
	tl, err := timeline.BuildComparison(ctx, r.st, sessionIDs, opts.Build)
	if err != nil {
		return nil, err
	}
	return r.register(tl, opts.Owner), nil
}

func (r *Registry) register(tl *domain.Timeline, owner string) *Session {
	replayID := "rp_" + uuid.New().String()[:8]
	sess := newSession(replayID, tl, r.bc, r.clk, r.opts.MinDwell, r.opts.MaxDwell, owner)

	r.mu.Lock()
	r.sessions[replayID] = sess
	r.mu.Unlock()
	return sess
}

// Get returns a live session, ErrTombstoned for a closed one, or
// ErrNotFound for an unknown id.
func (r *Registry) Get(replayID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sess, ok := r.sessions[replayID]; ok {
		return sess, nil
	}
	if r.tombstones[replayID] {
		return nil, fmt.Errorf("replay %s: %w", replayID, domain.ErrTombstoned)
	}
	return nil, fmt.Errorf("replay %s: %w", replayID, domain.ErrNotFound)
}

// Close tombstones a session, notifying subscribers before releasing it.
// Idempotent: closing an already-closed id succeeds; an unknown id is
// ErrNotFound.
func (r *Registry) Close(replayID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[replayID]
	if !ok {
		tombstoned := r.tombstones[replayID]
		r.mu.Unlock()
		if tombstoned {
			return nil
		}
		return fmt.Errorf("replay %s: %w", replayID, domain.ErrNotFound)
	}
	delete(r.sessions, replayID)
	r.tombstones[replayID] = true
	r.mu.Unlock()

	sess.close()
	return nil
}

// Status returns the active session count and ids, sorted for stable
// output.
func (r *Registry) Status() (int, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return len(ids), ids
}

// Run sweeps idle sessions on a fixed period until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

// sweepIdle retires sessions idle past the threshold, bounding memory
// growth from abandoned replays.
func (r *Registry) sweepIdle() {
	cutoff := r.clk.Now().Add(-r.opts.IdleTimeout)

	r.mu.RLock()
	var stale []string
	for id, sess := range r.sessions {
		if sess.LastAccessed().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		log.Printf("Retiring idle replay session %s", id)
		if err := r.Close(id); err != nil {
			log.Printf("WARN: failed to retire replay %s: %v", id, err)
		}
	}
}

// Shutdown closes every live session.
func (r *Registry) Shutdown() {
	_, ids := r.Status()
	for _, id := range ids {
		if err := r.Close(id); err != nil {
			log.Printf("WARN: failed to close replay %s on shutdown: %v", id, err)
		}
	}
}
