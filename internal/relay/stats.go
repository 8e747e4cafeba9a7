package relay

import (
	"strings"
	"sync"
	"time"
)

// StatsRecorder throttles the billing/session-summary calls so that a
// billable session is recorded at most once per window per calendar
// day. Identity is (session name, local day): the same session name on
// a different day is a new session.
type StatsRecorder struct {
	mutex        sync.Mutex
	lastRecorded map[string]time.Time

	billing BillingConfig
	logger  Logger

	now func() time.Time
}

func NewStatsRecorder(billing BillingConfig, logger Logger) *StatsRecorder {
	return &StatsRecorder{
		lastRecorded: make(map[string]time.Time),
		billing:      billing,
		logger:       logger,
		now:          time.Now,
	}
}

// IsBillable applies the name-based session classification. The boolean
// shape below is deliberately left exactly as the billing desk depends
// on it today; do not simplify it without sign-off from whoever owns
// the invoicing reports.
func (r *StatsRecorder) IsBillable(sessionName string) bool {
	name := strings.ToLower(sessionName)

	if !strings.Contains(name, strings.ToLower(r.billing.HeatMarker)) ||
		strings.Contains(name, strings.ToLower(r.billing.RaceMarker)) ||
		!strings.Contains(name, strings.ToLower(r.billing.ClassificationMarker)) {
		return false
	}

	return true
}

func (r *StatsRecorder) sessionIdentity(sessionName string, now time.Time) string {
	return sessionName + "@" + now.Local().Format("2006-01-02")
}

// ShouldRecord reports whether the frame ought to trigger a session
// stats call. The caller is responsible for invoking the bridge and
// then calling MarkRecorded.
func (r *StatsRecorder) ShouldRecord(frame *TimingFrame) bool {
	if !r.IsBillable(frame.SessionName) {
		return false
	}

	if len(frame.DriverNames()) == 0 {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	identity := r.sessionIdentity(frame.SessionName, now)

	if lastRecorded, ok := r.lastRecorded[identity]; ok {
		if now.Sub(lastRecorded) < r.billing.RecordWindow {
			r.logger.Debugf("Suppressing stats for '%s': recorded %s ago", identity, now.Sub(lastRecorded))
			return false
		}
	}

	return true
}

func (r *StatsRecorder) MarkRecorded(frame *TimingFrame) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	r.lastRecorded[r.sessionIdentity(frame.SessionName, now)] = now
}
