package relay

import (
	"context"
	"testing"
	"time"
)

func testConfig() *Config {
	config := DefaultConfig()
	config.Upstream.Address = "ws://127.0.0.1:0"

	return config
}

func newTestRelay(t *testing.T) (*Relay, *fakeBridge) {
	t.Helper()

	bridge := &fakeBridge{}
	relay := NewRelay(context.Background(), testConfig(), testLogger(), bridge)

	return relay, bridge
}

type malformedFrameTest struct {
	name string
	raw  string
}

func TestMalformedFramesDoNotCreateSessions(t *testing.T) {
	malformedFrameTests := []malformedFrameTest{
		{name: "Empty payload", raw: ""},
		{name: "Keepalive object", raw: "{}"},
		{name: "Truncated JSON", raw: `{"S": "Heat 19:`},
		{name: "Wrong shape", raw: `[1, 2, 3]`},
	}

	for _, test := range malformedFrameTests {
		t.Run(test.name, func(t *testing.T) {
			relay, _ := newTestRelay(t)

			relay.HandleRawFrame([]byte(test.raw))

			if relay.store.Len() != 0 {
				t.Errorf("Expected no session state for malformed input %q", test.raw)
			}
		})
	}
}

func TestHandleRawFrameRecordsCompletedLaps(t *testing.T) {
	relay, bridge := newTestRelay(t)

	relay.HandleRawFrame([]byte(`{"S": "Heat 19:00", "D": [{"K": 4, "N": "Jan", "L": 1, "T": 52340}]}`))

	waitFor(t, "lap events to reach the bridge", func() bool {
		return bridge.numLapCalls() == 1
	})

	// same lap count again: no further events
	relay.HandleRawFrame([]byte(`{"S": "Heat 19:00", "D": [{"K": 4, "N": "Jan", "L": 1, "T": 52340}]}`))

	time.Sleep(time.Millisecond * 50)

	if bridge.numLapCalls() != 1 {
		t.Errorf("Expected no lap call for an unchanged lap count, got: %d", bridge.numLapCalls())
	}
}

func TestHandleRawFrameCachesLastFrameForClients(t *testing.T) {
	relay, _ := newTestRelay(t)

	payload := `{"S": "Heat 19:00", "D": []}`
	relay.HandleRawFrame([]byte(payload))

	if got := relay.hub.LastFrame(); string(got) != payload {
		t.Errorf("Expected last frame cache %q, got: %q", payload, got)
	}
}

func TestHandleRawFrameRecordsBillableSessionStatsOnce(t *testing.T) {
	relay, bridge := newTestRelay(t)

	frame := `{"S": "Heat 19:00 Classification", "D": [{"K": 4, "N": "Jan", "L": 1}]}`

	relay.HandleRawFrame([]byte(frame))
	relay.HandleRawFrame([]byte(frame))

	waitFor(t, "session stats to reach the bridge", func() bool {
		return bridge.numStats() == 1
	})

	time.Sleep(time.Millisecond * 50)

	if bridge.numStats() != 1 {
		t.Errorf("Expected a single stats call within the window, got: %d", bridge.numStats())
	}
}

func TestHandleRawFrameIgnoresNonBillableSessions(t *testing.T) {
	relay, bridge := newTestRelay(t)

	relay.HandleRawFrame([]byte(`{"S": "Heat 19:00 Race Classification", "D": [{"K": 4, "N": "Jan", "L": 1}]}`))

	waitFor(t, "lap events to reach the bridge", func() bool {
		return bridge.numLapCalls() == 1
	})

	if bridge.numStats() != 0 {
		t.Errorf("Expected no stats call for a race session, got: %d", bridge.numStats())
	}
}

func TestBackupSchedulerFlushesAndSweeps(t *testing.T) {
	bridge := &fakeBridge{}
	store := NewSessionStore(time.Hour, testLogger())
	scheduler := NewBackupScheduler(store, bridge, time.Minute*2, testLogger())

	now := time.Now()

	active := store.GetOrCreate("Heat Active", now)
	active.LastPersistAt = now.Add(-time.Minute * 3)
	active.KartLapCounts[4] = 6

	store.GetOrCreate("Heat Idle", now.Add(-time.Hour*2))

	scheduler.flush(now)

	// both sessions are due for a flush; the idle one is then evicted
	waitFor(t, "summaries to reach the bridge", func() bool {
		bridge.mutex.Lock()
		defer bridge.mutex.Unlock()

		return len(bridge.summaries) == 2
	})

	bridge.mutex.Lock()
	summaries := append([]SessionSummary(nil), bridge.summaries...)
	bridge.mutex.Unlock()

	foundActive := false

	for _, summary := range summaries {
		if summary.SessionName == "Heat Active" {
			foundActive = true

			if summary.TotalLaps != 6 || summary.ActiveKarts != 1 {
				t.Errorf("Unexpected summary: %+v", summary)
			}
		}
	}

	if !foundActive {
		t.Errorf("Expected a summary for 'Heat Active', got: %+v", summaries)
	}

	if store.Len() != 1 {
		t.Errorf("Expected idle session to be swept, %d sessions remain", store.Len())
	}
}
