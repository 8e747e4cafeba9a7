package relay

import (
	"bytes"
	"encoding/json"
	"time"
)

// TimingFrame is one decoded snapshot from the upstream timing feed.
// Frames are ephemeral: they are diffed against the session store and
// fanned out, never kept beyond the single most recent raw payload.
type TimingFrame struct {
	SessionName string
	Drivers     []DriverEntry

	// Raw is the verbatim upstream payload, broadcast unchanged to
	// downstream clients and attached to persistence calls.
	Raw json.RawMessage
}

// DriverEntry carries one kart's telemetry within a frame. The upstream
// provider uses short field codes on the wire; times are milliseconds.
type DriverEntry struct {
	KartNumber  *int   `json:"K"`
	DriverName  string `json:"N"`
	LapCount    int    `json:"L"`
	LastLapTime int64  `json:"T"`
	BestLapTime int64  `json:"B"`
	Position    int    `json:"P"`
	GapToLeader int64  `json:"G"`
}

// HasKart reports whether the entry carries a resolvable kart identity.
// Driver names are informational only and never used as identity.
func (d DriverEntry) HasKart() bool {
	return d.KartNumber != nil
}

func (d DriverEntry) LastLap() time.Duration {
	return time.Duration(d.LastLapTime) * time.Millisecond
}

func (d DriverEntry) BestLap() time.Duration {
	return time.Duration(d.BestLapTime) * time.Millisecond
}

func (d DriverEntry) Gap() time.Duration {
	return time.Duration(d.GapToLeader) * time.Millisecond
}

type frameEnvelope struct {
	SessionName *string        `json:"S"`
	Drivers     *[]DriverEntry `json:"D"`
}

var emptyObject = []byte("{}")

// ParseFrame decodes a raw upstream message. It returns (nil, false)
// for empty payloads, the bare keepalive object, undecodable JSON, or
// objects carrying neither a session name nor a drivers array. These
// are expected on a live feed and must not be treated as errors.
func ParseFrame(raw []byte) (*TimingFrame, bool) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) == 0 || bytes.Equal(trimmed, emptyObject) {
		return nil, false
	}

	var envelope frameEnvelope

	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, false
	}

	if envelope.SessionName == nil && envelope.Drivers == nil {
		return nil, false
	}

	frame := &TimingFrame{
		Drivers: []DriverEntry{},
		Raw:     raw,
	}

	if envelope.SessionName != nil {
		frame.SessionName = *envelope.SessionName
	}

	if envelope.Drivers != nil {
		frame.Drivers = *envelope.Drivers
	}

	return frame, true
}

// DriverNames returns the non-empty driver names in the frame, in
// frame order.
func (f *TimingFrame) DriverNames() []string {
	var names []string

	for _, driver := range f.Drivers {
		if driver.DriverName != "" {
			names = append(names, driver.DriverName)
		}
	}

	return names
}
