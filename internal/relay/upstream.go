package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type connectionState int

const (
	stateDisconnected connectionState = iota
	stateConnecting
	stateSubscribed
)

func (s connectionState) String() string {
	switch s {
	case stateConnecting:
		return "Connecting"
	case stateSubscribed:
		return "Subscribed"
	default:
		return "Disconnected"
	}
}

// UpstreamConnector owns the single outbound connection to the timing
// provider. All state transitions happen under one mutex so that a
// reconnect can only be scheduled while no connection is open or
// opening.
type UpstreamConnector struct {
	config  UpstreamConfig
	logger  Logger
	handler func(raw []byte)

	mutex sync.Mutex
	state connectionState
	conn  *websocket.Conn
}

func NewUpstreamConnector(config UpstreamConfig, handler func(raw []byte), logger Logger) *UpstreamConnector {
	return &UpstreamConnector{
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

func (u *UpstreamConnector) State() connectionState {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	return u.state
}

// Run connects to the timing provider and keeps the connection alive
// until ctx is cancelled, reconnecting on every close or error.
func (u *UpstreamConnector) Run(ctx context.Context) {
	u.connect(ctx)

	<-ctx.Done()

	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}

	u.state = stateDisconnected
	u.logger.Debugf("Stopping upstream connector")
}

func (u *UpstreamConnector) connect(ctx context.Context) {
	u.mutex.Lock()

	if u.state != stateDisconnected {
		u.mutex.Unlock()
		u.logger.Debugf("Upstream connection already %s, not opening another", u.state)
		return
	}

	u.state = stateConnecting
	u.mutex.Unlock()

	u.logger.Infof("Connecting to timing provider at: %s", u.config.Address)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.config.Address, nil)

	if err != nil {
		u.logger.WithError(err).Errorf("Could not connect to timing provider")

		u.mutex.Lock()
		u.state = stateDisconnected
		u.mutex.Unlock()

		u.scheduleReconnect(ctx)
		return
	}

	u.mutex.Lock()
	u.conn = conn
	u.mutex.Unlock()

	time.AfterFunc(u.config.SubscribeDelay, func() {
		u.subscribe()
	})

	go u.readLoop(ctx, conn)
}

func (u *UpstreamConnector) subscribe() {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.conn == nil || u.state != stateConnecting {
		return
	}

	command := fmt.Sprintf("START %s@%s", u.config.SessionCode, u.config.VenueCode)

	if err := u.conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		u.logger.WithError(err).Errorf("Could not subscribe to timing feed")
		return
	}

	u.state = stateSubscribed
	u.logger.Infof("Subscribed to timing feed: %s", command)
}

func (u *UpstreamConnector) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()

		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}

			u.logger.WithError(err).Warnf("Lost connection to timing provider")
			u.onDisconnect(ctx, conn)
			return
		}

		u.handler(message)
	}
}

func (u *UpstreamConnector) onDisconnect(ctx context.Context, conn *websocket.Conn) {
	u.mutex.Lock()

	// a stale read loop for an already-replaced connection must not
	// tear down the current one
	if u.conn != conn {
		u.mutex.Unlock()
		return
	}

	_ = conn.Close()
	u.conn = nil
	u.state = stateDisconnected
	u.mutex.Unlock()

	u.scheduleReconnect(ctx)
}

func (u *UpstreamConnector) scheduleReconnect(ctx context.Context) {
	u.logger.Infof("Reconnecting to timing provider in %s", u.config.ReconnectInterval)
	metricUpstreamReconnects.Inc()

	time.AfterFunc(u.config.ReconnectInterval, func() {
		select {
		case <-ctx.Done():
			return
		default:
			u.connect(ctx)
		}
	})
}
