package relay

import (
	"context"
	"time"
)

// Relay is the live-timing relay service: it owns the upstream
// connector, the session store, the client hub and the persistence
// scheduling, and is constructed exactly once at process start.
type Relay struct {
	config   *Config
	logger   Logger
	bridge   Bridge
	store    *SessionStore
	recorder *StatsRecorder

	hub       *ClientHub
	upstream  *UpstreamConnector
	scheduler *BackupScheduler
	http      *HTTP

	ctx context.Context
	cfn context.CancelFunc

	stopped chan error
}

func NewRelay(ctx context.Context, config *Config, logger Logger, bridge Bridge) *Relay {
	if bridge == nil {
		bridge = nilBridge{}
	}

	config.Validate(logger)

	ctx, cfn := context.WithCancel(ctx)

	relay := &Relay{
		config:   config,
		logger:   logger,
		bridge:   bridge,
		store:    NewSessionStore(config.SessionTTL, logger),
		recorder: NewStatsRecorder(config.Billing, logger),
		hub:      NewClientHub(config.HeartbeatInterval, logger),
		ctx:      ctx,
		cfn:      cfn,
		stopped:  make(chan error, 1),
	}

	relay.upstream = NewUpstreamConnector(config.Upstream, relay.HandleRawFrame, logger)
	relay.scheduler = NewBackupScheduler(relay.store, bridge, config.BackupInterval, logger)
	relay.http = NewHTTP(config.HTTPPort, relay.hub, relay.store, logger)

	return relay
}

// HandleRawFrame runs one upstream message through the relay pipeline:
// parse, fan out, derive lap completions, throttle stats recording.
// Persistence happens on detached goroutines and never blocks the path
// that forwards frames to clients.
func (r *Relay) HandleRawFrame(raw []byte) {
	metricFramesReceived.Inc()

	frame, ok := ParseFrame(raw)

	if !ok {
		metricFramesRejected.Inc()
		return
	}

	r.hub.Broadcast(frame.Raw)
	metricFramesBroadcast.Inc()

	events := r.store.DetectCompletedLaps(frame, time.Now())

	if len(events) > 0 {
		metricLapsDetected.Add(float64(len(events)))

		r.recordAsync("record lap events", func() error {
			return r.bridge.RecordLapEvents(frame, events)
		})
	}

	if r.recorder.ShouldRecord(frame) {
		r.logger.Infof("Recording session stats for: '%s'", frame.SessionName)
		metricStatsRecorded.Inc()

		r.recordAsync("record session stats", func() error {
			return r.bridge.RecordSessionStats(frame.SessionName, frame.DriverNames(), frame.Raw)
		})

		r.recorder.MarkRecorded(frame)
	}
}

func (r *Relay) recordAsync(description string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			metricPersistFailures.Inc()
			r.logger.WithError(err).Errorf("Could not %s", description)
		}
	}()
}

func (r *Relay) Start() error {
	r.logger.Infof("Starting kart live-timing relay")

	if err := r.http.Listen(); err != nil {
		return err
	}

	go r.hub.RunHeartbeat(r.ctx)
	go r.scheduler.Run(r.ctx)
	go r.upstream.Run(r.ctx)

	return nil
}

func (r *Relay) Stop() (err error) {
	defer func() {
		r.stopped <- err
	}()

	r.logger.Infof("Shutting down kart relay")

	r.cfn()

	if err = r.http.Close(); err != nil {
		return err
	}

	return nil
}

func (r *Relay) Run() error {
	if err := r.Start(); err != nil {
		return err
	}

	return <-r.stopped
}
