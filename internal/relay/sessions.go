package relay

import (
	"sync"
	"time"
)

// SessionState tracks what the relay knows about one live session: the
// last observed lap count per kart plus bookkeeping timestamps. It
// holds no history beyond the latest lap count.
type SessionState struct {
	SessionName   string
	KartLapCounts map[int]int

	LastSeenAt    time.Time
	LastPersistAt time.Time
}

// TotalLaps returns the sum of observed lap counts across all karts.
func (s *SessionState) TotalLaps() int {
	total := 0

	for _, laps := range s.KartLapCounts {
		total += laps
	}

	return total
}

// SessionSummary is the coarse per-session record flushed by the backup
// scheduler.
type SessionSummary struct {
	SessionName string    `json:"session_name"`
	ActiveKarts int       `json:"active_karts"`
	TotalLaps   int       `json:"total_laps"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// SessionStore is the single source of truth for which sessions are
// currently live. All access goes through its methods; the mutex scope
// is kept trivial so the frame pipeline stays effectively serial.
type SessionStore struct {
	mutex    sync.Mutex
	sessions map[string]*SessionState

	ttl    time.Duration
	logger Logger
}

func NewSessionStore(ttl time.Duration, logger Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*SessionState),
		ttl:      ttl,
		logger:   logger,
	}
}

func (s *SessionStore) GetOrCreate(sessionName string, now time.Time) *SessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.getOrCreate(sessionName, now)
}

func (s *SessionStore) getOrCreate(sessionName string, now time.Time) *SessionState {
	if session, ok := s.sessions[sessionName]; ok {
		return session
	}

	s.logger.Infof("Tracking new session: '%s'", sessionName)

	session := &SessionState{
		SessionName:   sessionName,
		KartLapCounts: make(map[int]int),
		LastSeenAt:    now,
		LastPersistAt: now,
	}

	s.sessions[sessionName] = session

	return session
}

func (s *SessionStore) Touch(sessionName string, now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, ok := s.sessions[sessionName]; ok {
		session.LastSeenAt = now
	}
}

// Sweep evicts every session which has not seen a frame within the
// store's TTL and returns the number of sessions removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0

	for name, session := range s.sessions {
		if now.Sub(session.LastSeenAt) > s.ttl {
			s.logger.Infof("Evicting idle session: '%s' (last seen: %s)", name, session.LastSeenAt.Format(time.RFC3339))
			delete(s.sessions, name)
			removed++
		}
	}

	return removed
}

func (s *SessionStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.sessions)
}

// Snapshot returns a summary of every live session, for the debug
// endpoint and the backup scheduler.
func (s *SessionStore) Snapshot() []SessionSummary {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	summaries := make([]SessionSummary, 0, len(s.sessions))

	for _, session := range s.sessions {
		summaries = append(summaries, SessionSummary{
			SessionName: session.SessionName,
			ActiveKarts: len(session.KartLapCounts),
			TotalLaps:   session.TotalLaps(),
			LastSeenAt:  session.LastSeenAt,
		})
	}

	return summaries
}

// SessionsDueForBackup returns summaries for sessions whose last flush
// is older than interval, marking each as persisted at now.
func (s *SessionStore) SessionsDueForBackup(now time.Time, interval time.Duration) []SessionSummary {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var due []SessionSummary

	for _, session := range s.sessions {
		if now.Sub(session.LastPersistAt) < interval {
			continue
		}

		due = append(due, SessionSummary{
			SessionName: session.SessionName,
			ActiveKarts: len(session.KartLapCounts),
			TotalLaps:   session.TotalLaps(),
			LastSeenAt:  session.LastSeenAt,
		})

		session.LastPersistAt = now
	}

	return due
}
