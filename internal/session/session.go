// Package session keeps per-session conversational state in memory.
//
// State is deliberately ephemeral: a bounded FIFO window of recent turns per
// session, evicted after inactivity. Sessions are strictly isolated and
// created lazily on first use. A janitor goroutine sweeps idle sessions;
// Close stops it.
//
// Store is safe for concurrent use by multiple goroutines.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/orchestrator"
	"github.com/folio0/folio/internal/synthesis"
)

// TurnRecord is one completed turn as remembered by the session window.
type TurnRecord struct {
	Query    string
	Intent   orchestrator.Intent
	Action   orchestrator.Action
	Answer   synthesis.Answer
	Evidence []evidence.Chunk
	At       time.Time
}

// state is one session's window plus its activity clock. turnMu serializes
// whole turns within the session and is held across Append, so the data is
// guarded by its own mutex.
type state struct {
	turnMu sync.Mutex

	mu         sync.Mutex
	turns      []TurnRecord
	lastActive time.Time
}

// Store manages all in-memory sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*state

	window int
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	done      chan struct{}
	swept     sync.WaitGroup
	closeOnce sync.Once
}

// New creates a store and starts its eviction janitor. window bounds the
// turns kept per session; ttl is the inactivity horizon after which a
// session is evicted.
func New(window int, ttl time.Duration, logger *slog.Logger) *Store {
	s := newStore(window, ttl, logger, time.Now)
	s.swept.Add(1)
	go s.janitor()
	return s
}

// newStore builds a store without the janitor. Tests drive sweeps directly
// through an injected clock.
func newStore(window int, ttl time.Duration, logger *slog.Logger, now func() time.Time) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if window < 1 {
		window = 1
	}
	return &Store{
		sessions: make(map[string]*state),
		window:   window,
		ttl:      ttl,
		now:      now,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Close stops the janitor. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.swept.Wait()
}

// Window returns a copy of the session's recorded turns, oldest first.
// An unknown session yields an empty window; it is not created.
func (s *Store) Window(sessionID string) []TurnRecord {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]TurnRecord, len(st.turns))
	copy(out, st.turns)
	return out
}

// Append records a completed turn, creating the session on first use and
// dropping the oldest turn once the window is full.
func (s *Store) Append(sessionID string, rec TurnRecord) {
	st := s.get(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.turns = append(st.turns, rec)
	if len(st.turns) > s.window {
		st.turns = st.turns[len(st.turns)-s.window:]
	}
	st.lastActive = s.now()
}

// Evict removes a session outright. Unknown ids are a no-op.
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// BeginTurn acquires the session's turn lock, creating the session if
// needed, and returns the release function. Concurrent turns on the same
// session serialize here; turns on other sessions are unaffected.
func (s *Store) BeginTurn(sessionID string) func() {
	for {
		st := s.get(sessionID)
		st.turnMu.Lock()

		// The janitor may have evicted the session between get and the
		// lock; a lock on an evicted state would let a second turn run
		// on the freshly recreated one. Verify the map still holds this
		// state, otherwise retry against the live entry.
		s.mu.Lock()
		live := s.sessions[sessionID] == st
		s.mu.Unlock()
		if !live {
			st.turnMu.Unlock()
			continue
		}

		st.mu.Lock()
		st.lastActive = s.now()
		st.mu.Unlock()
		return st.turnMu.Unlock
	}
}

// get returns the session state, creating it lazily.
func (s *Store) get(sessionID string) *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &state{lastActive: s.now()}
		s.sessions[sessionID] = st
		s.logger.Debug("session created", "session", sessionID)
	}
	return st
}

// janitor sweeps idle sessions until Close.
func (s *Store) janitor() {
	defer s.swept.Done()

	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts sessions idle longer than the ttl. Sessions with a turn in
// flight hold their turn lock and are skipped until the next pass.
func (s *Store) sweep() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.sessions {
		if !st.turnMu.TryLock() {
			continue
		}
		st.mu.Lock()
		idle := st.lastActive.Before(cutoff)
		st.mu.Unlock()
		st.turnMu.Unlock()
		if idle {
			delete(s.sessions, id)
			s.logger.Debug("session evicted", "session", id)
		}
	}
}
