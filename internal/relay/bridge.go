package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Bridge receives the relay's derived output. Implementations must not
// assume delivery: callers run bridge methods on detached goroutines
// and log returned errors, so a failing backend never blocks the feed.
type Bridge interface {
	RecordSessionStats(sessionName string, drivers []string, smsData json.RawMessage) error
	RecordLapEvents(frame *TimingFrame, completed []LapEvent) error
	RecordSessionSummary(summary SessionSummary) error
}

const (
	actionRecordSession  = "record_session"
	actionProcessLapData = "process_lap_data"

	// How long a call waits for the HTTP client to be initialised
	// before its single retry.
	clientInitRetryDelay = time.Second * 2
)

// HTTPBridge posts session stats and lap data to the two external
// persistence endpoints. Calls made before Init has supplied an HTTP
// client are deferred once and then attempted exactly once more.
type HTTPBridge struct {
	config PersistenceConfig
	logger Logger

	mutex  sync.Mutex
	client *http.Client
}

func NewHTTPBridge(config PersistenceConfig, logger Logger) *HTTPBridge {
	return &HTTPBridge{
		config: config,
		logger: logger,
	}
}

func (b *HTTPBridge) Init(client *http.Client) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.client = client
}

func (b *HTTPBridge) httpClient() *http.Client {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.client
}

type sessionStatsPayload struct {
	Action      string          `json:"action"`
	SessionName string          `json:"sessionName"`
	Drivers     []string        `json:"drivers"`
	SMSData     json.RawMessage `json:"smsData"`
}

type lapDataPayload struct {
	Action        string          `json:"action"`
	SessionData   json.RawMessage `json:"sessionData"`
	CompletedLaps []lapEventJSON  `json:"completedLaps"`
}

type lapEventJSON struct {
	KartNumber int    `json:"kartNumber"`
	DriverName string `json:"driverName"`
	LapNumber  int    `json:"lapNumber"`
	LapTime    int64  `json:"lapTime"`
	BestLap    int64  `json:"bestLap"`
	Position   int    `json:"position"`
	Gap        int64  `json:"gap"`
}

func lapEventsToJSON(completed []LapEvent) []lapEventJSON {
	out := make([]lapEventJSON, 0, len(completed))

	for _, event := range completed {
		out = append(out, lapEventJSON{
			KartNumber: event.KartNumber,
			DriverName: event.DriverName,
			LapNumber:  event.LapNumber,
			LapTime:    event.LapTime.Milliseconds(),
			BestLap:    event.BestLap.Milliseconds(),
			Position:   event.Position,
			Gap:        event.Gap.Milliseconds(),
		})
	}

	return out
}

func (b *HTTPBridge) RecordSessionStats(sessionName string, drivers []string, smsData json.RawMessage) error {
	return b.post(b.config.SessionStatsURL, sessionStatsPayload{
		Action:      actionRecordSession,
		SessionName: sessionName,
		Drivers:     drivers,
		SMSData:     smsData,
	})
}

func (b *HTTPBridge) RecordLapEvents(frame *TimingFrame, completed []LapEvent) error {
	return b.post(b.config.LapDataURL, lapDataPayload{
		Action:        actionProcessLapData,
		SessionData:   frame.Raw,
		CompletedLaps: lapEventsToJSON(completed),
	})
}

func (b *HTTPBridge) RecordSessionSummary(summary SessionSummary) error {
	sessionData, err := json.Marshal(summary)

	if err != nil {
		return errors.Wrap(err, "could not encode session summary")
	}

	return b.post(b.config.LapDataURL, lapDataPayload{
		Action:        actionProcessLapData,
		SessionData:   sessionData,
		CompletedLaps: []lapEventJSON{},
	})
}

func (b *HTTPBridge) post(endpoint string, payload interface{}) error {
	if endpoint == "" {
		return nil
	}

	client := b.httpClient()

	if client == nil {
		// one deferred attempt while the client finishes initialising
		time.Sleep(clientInitRetryDelay)

		if client = b.httpClient(); client == nil {
			return errors.Errorf("persistence client not initialised, dropping call to: %s", endpoint)
		}
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return errors.Wrapf(err, "could not encode payload for: %s", endpoint)
	}

	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))

	if err != nil {
		return errors.Wrapf(err, "could not post to: %s", endpoint)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return errors.Errorf("persistence endpoint %s returned status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	return nil
}

type nilBridge struct{}

func (nilBridge) RecordSessionStats(_ string, _ []string, _ json.RawMessage) error {
	return nil
}

func (nilBridge) RecordLapEvents(_ *TimingFrame, _ []LapEvent) error {
	return nil
}

func (nilBridge) RecordSessionSummary(_ SessionSummary) error {
	return nil
}

type multiBridge struct {
	bridges []Bridge
}

// MultiBridge fans every record call out to all given bridges in
// parallel, returning the first error.
func MultiBridge(bridges ...Bridge) Bridge {
	return &multiBridge{bridges: bridges}
}

func (mb *multiBridge) RecordSessionStats(sessionName string, drivers []string, smsData json.RawMessage) error {
	g, _ := errgroup.WithContext(context.Background())

	for _, bridge := range mb.bridges {
		bridge := bridge
		g.Go(func() error {
			return bridge.RecordSessionStats(sessionName, drivers, smsData)
		})
	}

	return g.Wait()
}

func (mb *multiBridge) RecordLapEvents(frame *TimingFrame, completed []LapEvent) error {
	g, _ := errgroup.WithContext(context.Background())

	for _, bridge := range mb.bridges {
		bridge := bridge
		g.Go(func() error {
			return bridge.RecordLapEvents(frame, completed)
		})
	}

	return g.Wait()
}

func (mb *multiBridge) RecordSessionSummary(summary SessionSummary) error {
	g, _ := errgroup.WithContext(context.Background())

	for _, bridge := range mb.bridges {
		bridge := bridge
		g.Go(func() error {
			return bridge.RecordSessionSummary(summary)
		})
	}

	return g.Wait()
}

// LogBridge writes every record call to the logger. It is wired next to
// the HTTP bridge in debug deployments.
type LogBridge struct {
	logger Logger
}

func NewLogBridge(logger Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

func (l *LogBridge) RecordSessionStats(sessionName string, drivers []string, _ json.RawMessage) error {
	l.logger.Infof("Session stats: '%s' with %d drivers", sessionName, len(drivers))
	return nil
}

func (l *LogBridge) RecordLapEvents(frame *TimingFrame, completed []LapEvent) error {
	for _, lap := range completed {
		l.logger.Infof("Lap completed in '%s': kart %d (%s) lap %d in %s", frame.SessionName, lap.KartNumber, lap.DriverName, lap.LapNumber, lap.LapTime)
	}

	return nil
}

func (l *LogBridge) RecordSessionSummary(summary SessionSummary) error {
	l.logger.Infof("Session summary: '%s' karts: %d laps: %d", summary.SessionName, summary.ActiveKarts, summary.TotalLaps)
	return nil
}
