// Package session keeps the UI state of each browser session: one chat
// panel and one image uploader, torn down when the session goes idle.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/chat"
	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/book-expert/voicechat-web/internal/uploader"
	"github.com/google/uuid"
)

// Session is the in-memory UI state of one browser session.
type Session struct {
	ID       string
	Panel    *chat.Panel
	Uploader *uploader.Uploader

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return now.Sub(s.lastSeen)
}

// close cancels the panel's request and releases the uploader's preview.
func (s *Session) close(ctx context.Context) {
	s.Panel.Close()
	s.Uploader.Close(ctx)
}

// Factory builds the components of a new session.
type Factory struct {
	Backend          chat.Backend
	Store            core.ObjectStore
	PreviewMaxHeight int
	Log              *logger.Logger
}

func (f Factory) build(id string, now time.Time) *Session {
	panel := chat.NewPanel(f.Backend, f.Log)

	return &Session{
		ID:       id,
		Panel:    panel,
		Uploader: uploader.New(f.Store, f.PreviewMaxHeight, panel.SetFace, f.Log),
		lastSeen: now,
	}
}

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewRegistry creates an empty registry whose sessions expire after ttl of
// inactivity.
func NewRegistry(factory Factory, ttl time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// Get returns the live session with id, marking it as seen. The touch
// happens under the registry lock so a concurrent Sweep either removes the
// session first or sees it fresh.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if ok {
		sess.touch(r.now())
	}

	return sess, ok
}

// GetOrCreate returns the session with id, creating a fresh one (with a new
// id) when id is empty or unknown.
func (r *Registry) GetOrCreate(id string) *Session {
	if id != "" {
		sess, ok := r.Get(id)
		if ok {
			return sess
		}
	}

	sess := r.factory.build(uuid.NewString(), r.currentTime())

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	r.log.Info("Created session %s (%d active)", sess.ID, count)

	return sess
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep tears down sessions idle for longer than the ttl and returns how
// many were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	var expired []*Session

	r.mu.Lock()
	now := r.now()

	for id, sess := range r.sessions {
		if sess.idleSince(now) > r.ttl {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}

	r.mu.Unlock()

	for _, sess := range expired {
		sess.close(ctx)
		r.log.Info("Expired idle session %s", sess.ID)
	}

	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll(context.WithoutCancel(ctx))

			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll tears down every session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range all {
		sess.close(ctx)
	}
}

// SetClock replaces the registry's time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.now = now
}

func (r *Registry) currentTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.now()
}
