package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/storefront-discount-service/internal/discountstate"
	"github.com/fairyhunter13/storefront-discount-service/internal/urldiscount"
)

// Session is the discount flow of one browser session.
type Session struct {
	ID       string
	Store    *discountstate.Store
	Detector *urldiscount.Detector

	mu       sync.Mutex
	lastSeen time.Time
	pageURL  string
	attempt  uint64
	cancel   context.CancelFunc
}

// begin starts an attempt, cancelling the one still in flight.
func (s *Session) begin(parent context.Context, timeout time.Duration) (context.Context, func()) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.attempt++
	id := s.attempt
	s.cancel = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if s.attempt == id {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}
}

// reset cancels any attempt in flight and returns the flow to its initial state.
func (s *Session) reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pageURL = ""
	s.mu.Unlock()

	s.Store.Reset()
	s.Detector.Forget()
}

func (s *Session) setPageURL(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageURL = raw
}

func (s *Session) getPageURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageURL
}

// Registry owns the live sessions. Idle sessions are dropped by Sweep.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

// NewRegistry creates a Registry that forgets sessions idle for longer than idle.
func NewRegistry(idle time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Get returns the session for id, creating it on first use.
// An empty or malformed id gets a fresh session ID.
func (r *Registry) Get(id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	sess, ok := r.sessions[id]
	if !ok {
		sess = &Session{
			ID:       id,
			Store:    discountstate.NewStore(),
			Detector: &urldiscount.Detector{},
		}
		r.sessions[id] = sess
	}
	sess.mu.Lock()
	sess.lastSeen = now
	sess.mu.Unlock()
	return sess
}

// Release resets the session and forgets it.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		sess.reset()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep releases every session idle for longer than the idle timeout.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.sessions {
		sess.mu.Lock()
		stale := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range expired {
		sess.reset()
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Msg("swept idle discount sessions")
	}
	return len(expired)
}

// Start schedules Sweep on the cron spec.
func (r *Registry) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() { r.Sweep() }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	r.cron.Start()
	return nil
}

// Stop stops the sweeper and waits for a running sweep to finish.
func (r *Registry) Stop() {
	<-r.cron.Stop().Done()
}
