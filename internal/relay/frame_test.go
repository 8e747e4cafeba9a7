package relay

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func intPtr(i int) *int {
	return &i
}

type parseFrameTest struct {
	name       string
	raw        string
	ok         bool
	session    string
	numDrivers int
}

func TestParseFrame(t *testing.T) {
	parseFrameTests := []parseFrameTest{
		{
			name: "Empty payload is rejected",
			raw:  "",
			ok:   false,
		},
		{
			name: "Whitespace payload is rejected",
			raw:  "   \n",
			ok:   false,
		},
		{
			name: "Keepalive object is rejected",
			raw:  "{}",
			ok:   false,
		},
		{
			name: "Truncated JSON is rejected",
			raw:  `{"S": "Heat 1", "D": [{"K": 4`,
			ok:   false,
		},
		{
			name: "Non-JSON is rejected",
			raw:  "PONG",
			ok:   false,
		},
		{
			name: "Object without session name or drivers is rejected",
			raw:  `{"X": 12}`,
			ok:   false,
		},
		{
			name:       "Frame with session name and drivers",
			raw:        `{"S": "Heat 19:00", "D": [{"K": 4, "N": "Jan", "L": 3, "T": 52340, "B": 51200, "P": 1, "G": 0}, {"K": 7, "N": "Piet", "L": 3, "T": 53000, "B": 52100, "P": 2, "G": 660}]}`,
			ok:         true,
			session:    "Heat 19:00",
			numDrivers: 2,
		},
		{
			name:       "Frame without drivers defaults to empty list",
			raw:        `{"S": "Heat 19:00"}`,
			ok:         true,
			session:    "Heat 19:00",
			numDrivers: 0,
		},
		{
			name:       "Frame with drivers but no session name",
			raw:        `{"D": []}`,
			ok:         true,
			session:    "",
			numDrivers: 0,
		},
	}

	for _, test := range parseFrameTests {
		t.Run(test.name, func(t *testing.T) {
			frame, ok := ParseFrame([]byte(test.raw))

			if ok != test.ok {
				t.Fatalf("Expected ok: %t, got: %t", test.ok, ok)
			}

			if !ok {
				return
			}

			if frame.SessionName != test.session {
				t.Errorf("Expected session: %s, got: %s", test.session, frame.SessionName)
			}

			if len(frame.Drivers) != test.numDrivers {
				t.Errorf("Expected %d drivers, got: %d", test.numDrivers, len(frame.Drivers))
			}

			if string(frame.Raw) != test.raw {
				t.Errorf("Expected raw payload to be retained verbatim")
			}
		})
	}
}

func TestDriverEntryTimes(t *testing.T) {
	frame, ok := ParseFrame([]byte(`{"S": "Heat", "D": [{"K": 4, "N": "Jan", "L": 3, "T": 52340, "B": 51200, "P": 1, "G": 150}]}`))

	if !ok {
		t.Fatal("Expected frame to parse")
	}

	driver := frame.Drivers[0]

	if driver.LastLap() != 52340*time.Millisecond {
		t.Errorf("Expected last lap of 52.34s, got: %s", driver.LastLap())
	}

	if driver.BestLap() != 51200*time.Millisecond {
		t.Errorf("Expected best lap of 51.2s, got: %s", driver.BestLap())
	}

	if driver.Gap() != 150*time.Millisecond {
		t.Errorf("Expected gap of 150ms, got: %s", driver.Gap())
	}

	if !driver.HasKart() {
		t.Errorf("Expected driver to have a kart identity")
	}
}

func TestDriverNames(t *testing.T) {
	frame, ok := ParseFrame([]byte(`{"S": "Heat", "D": [{"K": 1, "N": "Jan"}, {"K": 2, "N": ""}, {"K": 3, "N": "Piet"}]}`))

	if !ok {
		t.Fatal("Expected frame to parse")
	}

	names := frame.DriverNames()

	if len(names) != 2 || names[0] != "Jan" || names[1] != "Piet" {
		t.Errorf("Expected named drivers [Jan Piet], got: %v", names)
	}
}
