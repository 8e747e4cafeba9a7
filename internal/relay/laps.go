package relay

import "time"

// LapEvent is the derived fact that a kart advanced its lap counter
// since the previous frame. Events are handed to the bridge and then
// discarded; the relay never stores them.
type LapEvent struct {
	KartNumber int           `json:"kart_number"`
	DriverName string        `json:"driver_name"`
	LapNumber  int           `json:"lap_number"`
	LapTime    time.Duration `json:"lap_time"`
	BestLap    time.Duration `json:"best_lap"`
	Position   int           `json:"position"`
	Gap        time.Duration `json:"gap"`
}

// DetectCompletedLaps diffs the frame against the stored lap counts for
// its session and emits one event per kart whose count increased, with
// a missing prior count treated as zero. The observed count is written
// back even when no event fires, so equal and decreasing observations
// are tracked. Entries without a kart identity are skipped. A count
// jumping by more than one lap still emits a single event carrying the
// new lap number.
func (s *SessionStore) DetectCompletedLaps(frame *TimingFrame, now time.Time) []LapEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.getOrCreate(frame.SessionName, now)
	session.LastSeenAt = now

	var events []LapEvent

	for _, driver := range frame.Drivers {
		if !driver.HasKart() {
			continue
		}

		kart := *driver.KartNumber
		previous := session.KartLapCounts[kart]

		if driver.LapCount > previous {
			events = append(events, LapEvent{
				KartNumber: kart,
				DriverName: driver.DriverName,
				LapNumber:  driver.LapCount,
				LapTime:    driver.LastLap(),
				BestLap:    driver.BestLap(),
				Position:   driver.Position,
				Gap:        driver.Gap(),
			})
		}

		session.KartLapCounts[kart] = driver.LapCount
	}

	return events
}
