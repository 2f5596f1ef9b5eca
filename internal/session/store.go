package session

import (
	"log"
	"sync"
	"time"

	"github.com/renalpath/decision-app/internal/metrics"
)

const (
	// DefaultTTL is how long a session stays alive after its last access.
	DefaultTTL = 15 * time.Minute

	// DefaultSweepInterval is how often the background sweep scans for
	// expired sessions. The sweep is a memory backstop for abandoned
	// sessions; correctness never depends on it because every access
	// checks expiry itself.
	DefaultSweepInterval = 5 * time.Minute
)

// Config holds session store tuning parameters.
type Config struct {
	TTL           time.Duration // session lifetime after last access
	SweepInterval time.Duration // how often the expiry sweep runs
}

// DefaultConfig returns the standard TTL and sweep settings.
func DefaultConfig() Config {
	return Config{
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// Store is the authoritative in-memory owner of all session records. It is
// safe for concurrent use; every operation runs under the store mutex so
// read-modify-write sequences like Apply's merge are atomic. Sessions are
// process-local: there is no persistence and no cross-instance sharing.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Record

	ttl           time.Duration
	sweepInterval time.Duration

	// now is the store's clock, replaceable in tests.
	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a session store and starts its background expiry sweep.
// Call Close to stop the sweep when tearing the store down.
func NewStore(config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		sessions:      make(map[string]*Record),
		ttl:           config.TTL,
		sweepInterval: config.SweepInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}

	go s.sweepLoop()
	return s
}

// Close stops the background sweep. The store remains usable afterwards, but
// abandoned sessions are then only reclaimed lazily on access.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Create initializes a fresh record under the given identifier and returns a
// copy of it. Identifiers come from a collision-free generator; if a caller
// does hand in an existing identifier the old record is overwritten rather
// than duplicated, so the result is deterministic either way.
func (s *Store) Create(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &Record{
		ID:                   id,
		CreatedAt:            now,
		LastAccessedAt:       now,
		ExpiresAt:            now.Add(s.ttl),
		Preferences:          make(map[string]string),
		Values:               make(map[string]string),
		QuestionnaireAnswers: []Answer{},
		ChatHistory:          []ChatMessage{},
		CurrentStep:          StepWelcome,
	}
	s.sessions[id] = rec

	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return rec.clone()
}

// Get returns a copy of the record if it exists and has not expired. An
// expired record is evicted on the spot and reported as absent; callers can
// never distinguish "expired" from "never existed". Get does not renew the
// TTL (that is Touch's job).
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Touch renews the session's expiry without changing its content. Returns
// false if the session does not exist or has expired.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return false
	}
	s.renew(rec)
	return true
}

// Apply merges a partial update into the session and returns a copy of the
// resulting record. Maps merge key-by-key; previously set keys survive unless
// the update overwrites them. Sequences replace wholesale when supplied. An
// update counts as access, so the TTL is renewed. Returns false if the
// session does not exist or has expired.
func (s *Store) Apply(id string, u Update) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return nil, false
	}

	for k, v := range u.Preferences {
		rec.Preferences[k] = v
	}
	for k, v := range u.Values {
		rec.Values[k] = v
	}
	if u.QuestionnaireAnswers != nil {
		rec.QuestionnaireAnswers = append([]Answer{}, u.QuestionnaireAnswers...)
	}
	if u.ChatHistory != nil {
		rec.ChatHistory = append([]ChatMessage{}, u.ChatHistory...)
	}
	if u.CurrentStep != "" {
		rec.CurrentStep = u.CurrentStep
	}

	s.renew(rec)
	return rec.clone(), true
}

// Delete removes the session unconditionally and reports whether a record was
// actually present. No expiry check: deleting an already-expired-but-unswept
// record is a valid success.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return true
}

// Cleanup removes every expired record and returns the number removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.sessions {
		if !now.Before(rec.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		metrics.SessionsExpired.WithLabelValues("sweep").Add(float64(removed))
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return removed
}

// ActiveCount returns the number of records currently held, including any
// expired ones the sweep has not reached yet. Operational visibility only.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup returns the live record for id, lazily evicting it if expired.
// Callers must hold s.mu.
func (s *Store) lookup(id string) (*Record, bool) {
	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(rec.ExpiresAt) {
		delete(s.sessions, id)
		metrics.SessionsExpired.WithLabelValues("lazy").Inc()
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		return nil, false
	}
	return rec, true
}

// renew marks the record as accessed now and pushes its expiry out by the
// configured TTL. Callers must hold s.mu.
func (s *Store) renew(rec *Record) {
	now := s.now()
	rec.LastAccessedAt = now
	rec.ExpiresAt = now.Add(s.ttl)
}

// sweepLoop runs Cleanup on a fixed interval until Close is called.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if removed := s.Cleanup(); removed > 0 {
				log.Printf("[session] sweep removed %d expired sessions", removed)
			}
		}
	}
}
