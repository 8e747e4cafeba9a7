package relay

import (
	"testing"
	"time"
)

func testBillingConfig() BillingConfig {
	return BillingConfig{
		HeatMarker:           "heat",
		RaceMarker:           "race",
		ClassificationMarker: "classification",
		RecordWindow:         time.Minute * 5,
	}
}

type billableTest struct {
	name        string
	sessionName string
	billable    bool
}

func TestIsBillable(t *testing.T) {
	billableTests := []billableTest{
		{
			name:        "Heat classification session is billable",
			sessionName: "Heat 19:00 Classification",
			billable:    true,
		},
		{
			name:        "Plain heat without classification marker is not billable",
			sessionName: "Heat 19:00",
			billable:    false,
		},
		{
			name:        "Race session is not billable",
			sessionName: "Heat Race Classification",
			billable:    false,
		},
		{
			name:        "Classification without heat marker is not billable",
			sessionName: "Classification 19:00",
			billable:    false,
		},
		{
			name:        "Markers compare case-insensitively",
			sessionName: "HEAT 19:00 CLASSIFICATION",
			billable:    true,
		},
		{
			name:        "Empty name is not billable",
			sessionName: "",
			billable:    false,
		},
	}

	recorder := NewStatsRecorder(testBillingConfig(), testLogger())

	for _, test := range billableTests {
		t.Run(test.name, func(t *testing.T) {
			if got := recorder.IsBillable(test.sessionName); got != test.billable {
				t.Errorf("Expected billable: %t for '%s', got: %t", test.billable, test.sessionName, got)
			}
		})
	}
}

func billableFrame() *TimingFrame {
	return &TimingFrame{
		SessionName: "Heat 19:00 Classification",
		Drivers:     []DriverEntry{{KartNumber: intPtr(4), DriverName: "Jan"}},
	}
}

func TestShouldRecordThrottlesWithinWindow(t *testing.T) {
	recorder := NewStatsRecorder(testBillingConfig(), testLogger())

	current := time.Date(2024, 6, 1, 19, 0, 0, 0, time.Local)
	recorder.now = func() time.Time { return current }

	frame := billableFrame()

	if !recorder.ShouldRecord(frame) {
		t.Fatal("Expected first frame to trigger a recording")
	}

	recorder.MarkRecorded(frame)

	current = current.Add(time.Minute)

	if recorder.ShouldRecord(frame) {
		t.Fatal("Expected recording to be suppressed within the window")
	}

	current = current.Add(time.Minute*4 + time.Second)

	if !recorder.ShouldRecord(frame) {
		t.Fatal("Expected recording to be allowed once the window elapsed")
	}
}

func TestShouldRecordTreatsNewDayAsNewSession(t *testing.T) {
	recorder := NewStatsRecorder(testBillingConfig(), testLogger())

	current := time.Date(2024, 6, 1, 23, 59, 0, 0, time.Local)
	recorder.now = func() time.Time { return current }

	frame := billableFrame()

	if !recorder.ShouldRecord(frame) {
		t.Fatal("Expected first frame to trigger a recording")
	}

	recorder.MarkRecorded(frame)

	// same session name two minutes later, but across midnight
	current = current.Add(time.Minute * 2)

	if !recorder.ShouldRecord(frame) {
		t.Fatal("Expected same-named session on a new calendar day to record again")
	}
}

func TestShouldRecordRequiresNamedDrivers(t *testing.T) {
	recorder := NewStatsRecorder(testBillingConfig(), testLogger())

	frame := &TimingFrame{
		SessionName: "Heat 19:00 Classification",
		Drivers:     []DriverEntry{{KartNumber: intPtr(4)}},
	}

	if recorder.ShouldRecord(frame) {
		t.Error("Expected frame with zero named drivers not to record")
	}
}
