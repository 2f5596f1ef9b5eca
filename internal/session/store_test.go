package session

import (
	"fmt"
	"testing"
	"time"
)

// newTestStore creates a store with the default 15m TTL and a manually
// advanced clock. The background sweep still starts but its ticker fires far
// too rarely to interfere with tests; Close is registered via t.Cleanup.
func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(DefaultConfig())
	s.now = clock.Now
	t.Cleanup(s.Close)
	return s, clock
}

// fakeClock is a settable clock for driving expiry deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCreateThenGet(t *testing.T) {
	s, _ := newTestStore(t)

	created := s.Create("sess-1")
	if created.ID != "sess-1" {
		t.Errorf("expected id sess-1, got %q", created.ID)
	}
	if created.CurrentStep != StepWelcome {
		t.Errorf("expected starting step %q, got %q", StepWelcome, created.CurrentStep)
	}
	if got := created.ExpiresAt.Sub(created.LastAccessedAt); got != DefaultTTL {
		t.Errorf("expected expiresAt = lastAccessedAt + %v, got +%v", DefaultTTL, got)
	}

	rec, ok := s.Get("sess-1")
	if !ok {
		t.Fatal("expected session to be present after create")
	}
	if len(rec.Preferences) != 0 || len(rec.Values) != 0 {
		t.Errorf("expected empty mappings, got prefs=%v values=%v", rec.Preferences, rec.Values)
	}
	if len(rec.QuestionnaireAnswers) != 0 || len(rec.ChatHistory) != 0 {
		t.Errorf("expected empty sequences, got answers=%d chat=%d",
			len(rec.QuestionnaireAnswers), len(rec.ChatHistory))
	}
}

func TestGetUnknownSession(t *testing.T) {
	s, _ := newTestStore(t)

	if _, ok := s.Get("nope"); ok {
		t.Error("expected absent for unknown id")
	}
}

func TestExpiryMonotonicity(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	// Just inside the window: present.
	clock.Advance(DefaultTTL - time.Second)
	if _, ok := s.Get("sess-1"); !ok {
		t.Fatal("expected session present just before expiry")
	}

	// Get does not renew the TTL, so one more second crosses the boundary.
	clock.Advance(time.Second)
	if _, ok := s.Get("sess-1"); ok {
		t.Fatal("expected session absent at exactly createdAt+TTL")
	}

	// Lazy eviction physically removed it.
	if n := s.ActiveCount(); n != 0 {
		t.Errorf("expected 0 records after lazy eviction, got %d", n)
	}
}

func TestGetDoesNotRenewTTL(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	// Read repeatedly inside the window; reads must not extend expiry.
	clock.Advance(10 * time.Minute)
	if _, ok := s.Get("sess-1"); !ok {
		t.Fatal("expected session present at 10m")
	}
	clock.Advance(5 * time.Minute)
	if _, ok := s.Get("sess-1"); ok {
		t.Error("expected session expired at 15m despite intervening Get")
	}
}

func TestTouchRenewsExpiry(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	clock.Advance(10 * time.Minute)
	if !s.Touch("sess-1") {
		t.Fatal("expected touch to succeed inside the window")
	}

	// The original window would have ended at 15m; touch moved it to 25m.
	clock.Advance(10 * time.Minute)
	rec, ok := s.Get("sess-1")
	if !ok {
		t.Fatal("expected session still present after touch renewed the window")
	}
	if got := rec.ExpiresAt.Sub(rec.LastAccessedAt); got != DefaultTTL {
		t.Errorf("expected expiresAt = lastAccessedAt + %v, got +%v", DefaultTTL, got)
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, ok := s.Get("sess-1"); ok {
		t.Error("expected session expired after renewed window elapsed")
	}
}

func TestTouchExpiredSession(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	clock.Advance(DefaultTTL)
	if s.Touch("sess-1") {
		t.Error("expected touch to fail on an expired session")
	}
	if n := s.ActiveCount(); n != 0 {
		t.Errorf("expected expired session evicted by touch, got %d records", n)
	}
}

func TestApplyMergesPreferences(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("sess-1")

	if _, ok := s.Apply("sess-1", Update{
		Preferences: map[string]string{"language": "en", "textSize": "large"},
	}); !ok {
		t.Fatal("first update failed")
	}

	rec, ok := s.Apply("sess-1", Update{
		Preferences: map[string]string{"language": "hi"},
	})
	if !ok {
		t.Fatal("second update failed")
	}

	if rec.Preferences["language"] != "hi" {
		t.Errorf("expected language overwritten to hi, got %q", rec.Preferences["language"])
	}
	if rec.Preferences["textSize"] != "large" {
		t.Errorf("expected textSize preserved, got %q", rec.Preferences["textSize"])
	}
}

func TestApplyMergesValues(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("sess-1")

	s.Apply("sess-1", Update{Values: map[string]string{"priority": "independence"}})
	rec, _ := s.Apply("sess-1", Update{Values: map[string]string{"concern": "travel"}})

	if rec.Values["priority"] != "independence" || rec.Values["concern"] != "travel" {
		t.Errorf("expected both keys present, got %v", rec.Values)
	}
}

func TestApplyReplacesSequencesWholesale(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	s.Apply("sess-1", Update{ChatHistory: []ChatMessage{
		{ID: "m1", Role: RoleUser, Content: "hello", Timestamp: clock.Now()},
		{ID: "m2", Role: RoleAssistant, Content: "hi there", Timestamp: clock.Now()},
	}})

	rec, ok := s.Apply("sess-1", Update{ChatHistory: []ChatMessage{
		{ID: "m3", Role: RoleUser, Content: "starting over", Timestamp: clock.Now()},
	}})
	if !ok {
		t.Fatal("update failed")
	}
	if len(rec.ChatHistory) != 1 || rec.ChatHistory[0].ID != "m3" {
		t.Errorf("expected chat history replaced with single entry m3, got %v", rec.ChatHistory)
	}

	// An empty (non-nil) slice clears; a nil slice preserves.
	rec, _ = s.Apply("sess-1", Update{ChatHistory: []ChatMessage{}})
	if len(rec.ChatHistory) != 0 {
		t.Errorf("expected empty slice to clear chat history, got %d entries", len(rec.ChatHistory))
	}
	rec, _ = s.Apply("sess-1", Update{Preferences: map[string]string{"language": "en"}})
	if rec.ChatHistory == nil || len(rec.ChatHistory) != 0 {
		t.Errorf("expected omitted chat history untouched, got %v", rec.ChatHistory)
	}
}

func TestApplyPreservesOmittedAnswers(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	s.Apply("sess-1", Update{QuestionnaireAnswers: []Answer{
		{QuestionID: "q1", Answer: "yes", AnsweredAt: clock.Now()},
	}})

	rec, _ := s.Apply("sess-1", Update{CurrentStep: "compare"})
	if len(rec.QuestionnaireAnswers) != 1 || rec.QuestionnaireAnswers[0].QuestionID != "q1" {
		t.Errorf("expected answers preserved across unrelated update, got %v", rec.QuestionnaireAnswers)
	}
	if rec.CurrentStep != "compare" {
		t.Errorf("expected step replaced, got %q", rec.CurrentStep)
	}
}

func TestApplyRenewsTTL(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	clock.Advance(10 * time.Minute)
	if _, ok := s.Apply("sess-1", Update{CurrentStep: "learn"}); !ok {
		t.Fatal("update failed")
	}

	// Original window ended at 15m; the update pushed it to 25m.
	clock.Advance(10 * time.Minute)
	if _, ok := s.Get("sess-1"); !ok {
		t.Error("expected update to have renewed the expiry window")
	}
}

func TestDeleteIsFinal(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("sess-1")

	if !s.Delete("sess-1") {
		t.Fatal("expected first delete to report removal")
	}
	if _, ok := s.Get("sess-1"); ok {
		t.Error("expected get to miss after delete")
	}
	if s.Touch("sess-1") {
		t.Error("expected touch to fail after delete")
	}
	if s.Delete("sess-1") {
		t.Error("expected second delete to return false")
	}
}

func TestDeleteExpiredUnsweptRecord(t *testing.T) {
	s, clock := newTestStore(t)
	s.Create("sess-1")

	clock.Advance(DefaultTTL + time.Minute)
	// No access since expiry, so the record is still physically present.
	if !s.Delete("sess-1") {
		t.Error("expected delete of expired-but-unswept record to succeed")
	}
}

func TestCreateOverwritesExistingID(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("sess-1")
	s.Apply("sess-1", Update{Values: map[string]string{"priority": "family"}})

	fresh := s.Create("sess-1")
	if len(fresh.Values) != 0 {
		t.Errorf("expected overwrite to reset values, got %v", fresh.Values)
	}
	if n := s.ActiveCount(); n != 1 {
		t.Errorf("expected exactly one record after overwrite, got %d", n)
	}
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	s, clock := newTestStore(t)

	// Three sessions created now, two more created 10 minutes later.
	for i := 0; i < 3; i++ {
		s.Create(fmt.Sprintf("old-%d", i))
	}
	clock.Advance(10 * time.Minute)
	for i := 0; i < 2; i++ {
		s.Create(fmt.Sprintf("new-%d", i))
	}

	// At +16m the old three are past expiry, the new two are not.
	clock.Advance(6 * time.Minute)
	if removed := s.Cleanup(); removed != 3 {
		t.Errorf("expected cleanup to remove 3, got %d", removed)
	}
	if n := s.ActiveCount(); n != 2 {
		t.Errorf("expected 2 surviving records, got %d", n)
	}
	for i := 0; i < 2; i++ {
		if _, ok := s.Get(fmt.Sprintf("new-%d", i)); !ok {
			t.Errorf("expected new-%d to survive cleanup", i)
		}
	}

	// A second cleanup with nothing expired is a no-op.
	if removed := s.Cleanup(); removed != 0 {
		t.Errorf("expected idempotent cleanup, removed %d", removed)
	}
}

func TestNoCrossSessionLeakage(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("a")
	s.Create("b")

	s.Apply("a", Update{Preferences: map[string]string{"language": "hi"}})

	recB, _ := s.Get("b")
	if _, ok := recB.Preferences["language"]; ok {
		t.Error("update to session a leaked into session b")
	}

	s.Delete("a")
	if _, ok := s.Get("b"); !ok {
		t.Error("delete of session a removed session b")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("sess-1")

	rec, _ := s.Get("sess-1")
	rec.Preferences["language"] = "sneaky"
	rec.CurrentStep = "hacked"

	fresh, _ := s.Get("sess-1")
	if _, ok := fresh.Preferences["language"]; ok {
		t.Error("mutating a returned record leaked into the store")
	}
	if fresh.CurrentStep != StepWelcome {
		t.Errorf("expected step unchanged, got %q", fresh.CurrentStep)
	}
}

func TestSweepLoopEvictsAbandonedSessions(t *testing.T) {
	// Real-time test of the ticker wiring: short TTL and sweep interval.
	s := NewStore(Config{TTL: 20 * time.Millisecond, SweepInterval: 20 * time.Millisecond})
	defer s.Close()

	s.Create("abandoned")

	// Never accessed again; only the sweep can reclaim it.
	deadline := time.After(2 * time.Second)
	for s.ActiveCount() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweep did not evict the abandoned session within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCloseStopsSweep(t *testing.T) {
	s := NewStore(Config{TTL: time.Hour, SweepInterval: 10 * time.Millisecond})
	s.Close()
	// Double close must not panic.
	s.Close()
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create("shared")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			key := fmt.Sprintf("k%d", n)
			for j := 0; j < 100; j++ {
				s.Apply("shared", Update{Values: map[string]string{key: "v"}})
				s.Get("shared")
				s.Touch("shared")
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	rec, ok := s.Get("shared")
	if !ok {
		t.Fatal("expected session to survive concurrent access")
	}
	// Every goroutine's key must have survived the interleaved merges.
	for i := 0; i < 8; i++ {
		if rec.Values[fmt.Sprintf("k%d", i)] != "v" {
			t.Errorf("lost key k%d under concurrent updates", i)
		}
	}
}
