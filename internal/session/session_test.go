package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/folio0/folio/internal/log"
	"github.com/folio0/folio/internal/orchestrator"
	"github.com/folio0/folio/internal/synthesis"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func record(query string) TurnRecord {
	return TurnRecord{
		Query:  query,
		Intent: orchestrator.IntentProfessional,
		Action: orchestrator.ActionInvoke,
		Answer: synthesis.Answer{Text: "answer to " + query},
		At:     time.Now(),
	}
}

// testStore returns a janitor-less store with a controllable clock.
func testStore(window int, ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s := newStore(window, ttl, log.NewNop(), func() time.Time { return now })
	return s, &now
}

func TestWindow_UnknownSessionIsEmptyAndNotCreated(t *testing.T) {
	s, _ := testStore(5, time.Minute)

	assert.Empty(t, s.Window("nope"))
	assert.Zero(t, s.Len(), "reads must not create sessions")
}

func TestAppend_LazyCreationAndOrder(t *testing.T) {
	s, _ := testStore(5, time.Minute)

	s.Append("a", record("first"))
	s.Append("a", record("second"))

	w := s.Window("a")
	require.Len(t, w, 2)
	assert.Equal(t, "first", w[0].Query)
	assert.Equal(t, "second", w[1].Query)
}

func TestAppend_FIFOBound(t *testing.T) {
	s, _ := testStore(3, time.Minute)

	for i := range 5 {
		s.Append("a", record(fmt.Sprintf("q%d", i)))
	}

	w := s.Window("a")
	require.Len(t, w, 3)
	assert.Equal(t, "q2", w[0].Query, "oldest turns are dropped first")
	assert.Equal(t, "q4", w[2].Query)
}

func TestIsolationBetweenSessions(t *testing.T) {
	s, _ := testStore(5, time.Minute)

	s.Append("a", record("for a"))
	s.Append("b", record("for b"))

	require.Len(t, s.Window("a"), 1)
	assert.Equal(t, "for a", s.Window("a")[0].Query)
	assert.Equal(t, "for b", s.Window("b")[0].Query)
}

func TestWindow_ReturnsCopy(t *testing.T) {
	s, _ := testStore(5, time.Minute)
	s.Append("a", record("orig"))

	w := s.Window("a")
	w[0].Query = "mutated"

	assert.Equal(t, "orig", s.Window("a")[0].Query)
}

func TestEvict(t *testing.T) {
	s, _ := testStore(5, time.Minute)
	s.Append("a", record("q"))

	s.Evict("a")

	assert.Empty(t, s.Window("a"))
	assert.Zero(t, s.Len())
	s.Evict("a") // idempotent
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	s, now := testStore(5, time.Minute)
	s.Append("idle", record("q"))

	*now = now.Add(2 * time.Minute)
	s.Append("fresh", record("q"))
	s.sweep()

	assert.Empty(t, s.Window("idle"))
	require.Len(t, s.Window("fresh"), 1)
}

func TestSweep_SkipsSessionWithTurnInFlight(t *testing.T) {
	s, now := testStore(5, time.Minute)
	s.Append("busy", record("q"))

	release := s.BeginTurn("busy")
	*now = now.Add(2 * time.Minute)
	s.sweep()
	release()

	assert.Equal(t, 1, s.Len(), "a session mid-turn must survive the sweep")
}

func TestBeginTurn_SerializesPerSession(t *testing.T) {
	s, _ := testStore(10, time.Minute)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := s.BeginTurn("a")
			defer release()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Append("a", record(fmt.Sprintf("q%d", i)))
		}()
	}
	wg.Wait()

	assert.Len(t, order, 8)
	assert.Len(t, s.Window("a"), 8)
}

func TestBeginTurn_SerializesAcrossSweepEviction(t *testing.T) {
	s, now := testStore(5, time.Minute)
	s.Append("a", record("q"))

	// A caller resolves the state, then the janitor evicts the session
	// before the turn lock is taken.
	stale := s.get("a")
	*now = now.Add(2 * time.Minute)
	s.sweep()
	require.Zero(t, s.Len())

	// Another turn starts on the recreated session.
	release := s.BeginTurn("a")

	// Locking the stale state must not grant a turn: the map no longer
	// holds it, so the interrupted caller has to retry.
	stale.turnMu.Lock()
	s.mu.Lock()
	liveAgain := s.sessions["a"] == stale
	s.mu.Unlock()
	stale.turnMu.Unlock()
	assert.False(t, liveAgain, "an evicted state must never become the live entry")

	// A full BeginTurn serializes behind the in-flight turn even though
	// the session was evicted and recreated in between.
	acquired := make(chan struct{})
	go func() {
		r := s.BeginTurn("a")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("two turns of one session held the turn lock concurrently")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiting turn never acquired the lock after release")
	}
}

func TestBeginTurn_NoCrossSessionContention(t *testing.T) {
	s, _ := testStore(5, time.Minute)

	releaseA := s.BeginTurn("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := s.BeginTurn("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn on session b blocked behind session a")
	}
}

func TestClose_StopsJanitor(t *testing.T) {
	s := New(5, time.Minute, log.NewNop())
	s.Append("a", record("q"))
	s.Close()
	s.Close() // safe twice
}
