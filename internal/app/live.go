package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"portfolio/api/internal/content"
	"portfolio/api/internal/metrics"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveSendBuffer = 8
	// Clients only send control frames.
	liveReadLimit = 512
)

type liveMessage struct {
	Type    string       `json:"type"`
	Content content.Tree `json:"content"`
}

// liveHub pushes every adopted document to connected WebSocket clients.
// broadcast runs on the document store's adopting goroutine, so it only
// ever does non-blocking sends; a client that falls behind is dropped.
type liveHub struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newLiveHub(logger *zap.Logger, m *metrics.Metrics) *liveHub {
	return &liveHub{
		logger:  logger,
		metrics: m,
		clients: make(map[*liveClient]struct{}),
	}
}

func encodeLive(doc content.Tree) ([]byte, error) {
	return json.Marshal(liveMessage{Type: "content", Content: doc})
}

func (h *liveHub) broadcast(doc content.Tree) {
	payload, err := encodeLive(doc)
	if err != nil {
		h.logger.Error("encode live update", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping slow live client", zap.String("remote", client.conn.RemoteAddr().String()))
			h.removeLocked(client)
		}
	}
}

// serve registers conn and pumps updates until the client goes away or the
// hub closes. The first message is the snapshot, taken under the hub lock
// so no adoption can slip in between it and registration.
func (h *liveHub) serve(conn *websocket.Conn, snapshot func() content.Tree) {
	client := &liveClient{conn: conn, send: make(chan []byte, liveSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	payload, err := encodeLive(snapshot())
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("encode live snapshot", zap.Error(err))
		_ = conn.Close()
		return
	}
	client.send <- payload
	h.clients[client] = struct{}{}
	h.setGauge(len(h.clients))
	h.mu.Unlock()

	go client.writePump()
	client.readPump()

	h.mu.Lock()
	h.removeLocked(client)
	h.mu.Unlock()
}

func (h *liveHub) removeLocked(client *liveClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.stop()
	h.setGauge(len(h.clients))
}

func (h *liveHub) setGauge(count int) {
	if h.metrics != nil {
		h.metrics.LiveClients.Set(float64(count))
	}
}

func (h *liveHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *liveHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (c *liveClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// readPump discards client messages and keeps the read deadline fresh on
// pongs. It returns when the connection fails.
func (c *liveClient) readPump() {
	c.conn.SetReadLimit(liveReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newUpgrader(corsOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return corsOrigin == "*" || origin == "" || origin == corsOrigin
		},
	}
}
