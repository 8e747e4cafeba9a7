package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// control token a client sends to request a re-send of the last
	// known good frame
	replayCommand = "replay"

	clientSendBuffer = 64
	clientWriteWait  = time.Second * 10
	clientReadLimit  = 512
)

type hubClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ClientHub owns the set of downstream browser connections. Every valid
// upstream frame is fanned out verbatim; the most recent frame is
// cached so late joiners see current state without waiting for the
// next upstream tick.
type ClientHub struct {
	logger            Logger
	heartbeatInterval time.Duration
	upgrader          websocket.Upgrader

	mutex     sync.Mutex
	clients   map[uuid.UUID]*hubClient
	lastFrame []byte
}

func NewClientHub(heartbeatInterval time.Duration, logger Logger) *ClientHub {
	return &ClientHub{
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
		clients:           make(map[uuid.UUID]*hubClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the stream is public, clients are anonymous browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *ClientHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)

	if err != nil {
		h.logger.WithError(err).Warnf("Could not upgrade client connection")
		return
	}

	client := &hubClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}

	h.register(client)

	go client.writePump(h)
	go client.readPump(h)
}

func (h *ClientHub) register(client *hubClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client.id] = client
	metricConnectedClients.Set(float64(len(h.clients)))

	h.logger.Infof("Client connected: %s (%d active)", client.id, len(h.clients))

	if h.lastFrame != nil {
		select {
		case client.send <- h.lastFrame:
		default:
		}
	}
}

func (h *ClientHub) unregister(client *hubClient) {
	h.mutex.Lock()

	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		metricConnectedClients.Set(float64(len(h.clients)))
		h.logger.Infof("Client disconnected: %s (%d active)", client.id, len(h.clients))
	}

	h.mutex.Unlock()

	client.close()
}

// Broadcast caches raw as the last known good frame and sends the
// identical payload to every registered client. Clients whose send
// buffer is full are pruned during the attempt.
func (h *ClientHub) Broadcast(raw []byte) {
	h.mutex.Lock()
	h.lastFrame = raw

	var stale []*hubClient

	for _, client := range h.clients {
		select {
		case client.send <- raw:
		default:
			stale = append(stale, client)
		}
	}

	h.mutex.Unlock()

	for _, client := range stale {
		h.logger.Warnf("Client %s is not keeping up, dropping it", client.id)
		h.unregister(client)
	}
}

func (h *ClientHub) sendLastFrame(client *hubClient) {
	h.mutex.Lock()
	lastFrame := h.lastFrame
	h.mutex.Unlock()

	if lastFrame == nil {
		return
	}

	select {
	case client.send <- lastFrame:
	default:
	}
}

func (h *ClientHub) NumClients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.clients)
}

func (h *ClientHub) LastFrame() []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.lastFrame
}

// RunHeartbeat pings every registered client on a fixed interval and
// prunes any client whose connection no longer accepts the ping.
func (h *ClientHub) RunHeartbeat(ctx context.Context) {
	tick := time.NewTicker(h.heartbeatInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debugf("Stopping client heartbeat")
			return
		case <-tick.C:
			h.pingClients()
		}
	}
}

func (h *ClientHub) pingClients() {
	h.mutex.Lock()
	clients := make([]*hubClient, 0, len(h.clients))

	for _, client := range h.clients {
		clients = append(clients, client)
	}

	h.mutex.Unlock()

	for _, client := range clients {
		err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(clientWriteWait))

		if err != nil {
			h.logger.Debugf("Client %s did not accept ping, dropping it", client.id)
			h.unregister(client)
		}
	}
}

func (c *hubClient) writePump(h *ClientHub) {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.unregister(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *hubClient) readPump(h *ClientHub) {
	c.conn.SetReadLimit(clientReadLimit)

	for {
		_, message, err := c.conn.ReadMessage()

		if err != nil {
			h.unregister(c)
			return
		}

		if string(message) == replayCommand {
			h.sendLastFrame(c)
		}
	}
}
