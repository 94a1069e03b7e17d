package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoomContext is the per-login state resolved from the online-session
// registry. The CRUD layer only reads it; the registry owns its lifecycle.
type RoomContext struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	IsChef    bool   `json:"isCheff"`
	Name      string `json:"name"`
	Lastname  string `json:"lastname"`

	// Token is the identity-service bearer token issued at login.
	Token string `json:"-"`
}

type entry struct {
	ctx     *RoomContext
	touched time.Time
}

// Registry tracks online sessions keyed by session id. One entry per user:
// logging in again replaces the user's previous session.
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*entry
	maxIdle time.Duration
	log     *zap.Logger
	now     func() time.Time

	ticker *time.Ticker
	done   chan struct{}
}

func NewRegistry(maxIdle time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		byID:    make(map[string]*entry),
		maxIdle: maxIdle,
		log:     log,
		now:     time.Now,
	}
}

// Put registers a session, replacing any existing session of the same user.
// It returns the displaced session id, or empty if none.
func (r *Registry) Put(ctx *RoomContext) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced := ""
	for id, e := range r.byID {
		if e.ctx.UserID == ctx.UserID && id != ctx.SessionID {
			displaced = id
			delete(r.byID, id)
			break
		}
	}
	r.byID[ctx.SessionID] = &entry{ctx: ctx, touched: r.now()}
	return displaced
}

// Lookup resolves a session id to its RoomContext, refreshing the idle
// timestamp. Returns nil for unknown sessions.
func (r *Registry) Lookup(sessionID string) *RoomContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[sessionID]
	if !ok {
		return nil
	}
	e.touched = r.now()
	return e.ctx
}

// Remove drops a session, if present.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, sessionID)
}

// Sweep removes sessions idle for longer than the max idle window and
// returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxIdle)
	removed := 0
	for id, e := range r.byID {
		if e.touched.Before(cutoff) {
			r.log.Info("removing idle session",
				zap.String("sessionId", id),
				zap.String("userId", e.ctx.UserID))
			delete(r.byID, id)
			removed++
		}
	}
	return removed
}

// StartSweeper begins the periodic idle-session sweep.
func (r *Registry) StartSweeper(interval time.Duration) {
	r.done = make(chan struct{})
	r.ticker = time.NewTicker(interval)
	go r.run()
	r.log.Info("session sweeper started", zap.Duration("interval", interval))
}

// Stop halts the periodic sweep.
func (r *Registry) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	if r.done != nil {
		close(r.done)
	}
}

func (r *Registry) run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			r.Sweep()
		}
	}
}
