package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Logger is the narrow slice of structured logging the hub needs,
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{}) {}

type event struct {
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
}

// WSHub fans book events out to every connected websocket observer. A
// client whose send buffer is full is dropped rather than allowed to
// stall the others — delivery is best-effort by contract.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     Logger
}

// NewWSHub builds a hub. A nil logger installs a no-op.
func NewWSHub(log Logger) *WSHub {
	if log == nil {
		log = noopLogger{}
	}
	return &WSHub{clients: make(map[*wsClient]bool), log: log}
}

// Emit implements Sink: marshal payload and fan it out to every
// registered client, dropping any whose buffer is full.
func (h *WSHub) Emit(eventType string, payload interface{}) {
	data, err := json.Marshal(event{EventType: eventType, Payload: payload})
	if err != nil {
		h.log.Warnw("broadcast marshal failed", "event_type", eventType, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting client with the hub.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.Infow("observer connected", "peer", conn.RemoteAddr().String())

	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *WSHub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound traffic — this channel is push-only — but
// must still run so pong frames are processed and disconnects detected.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.mu.Lock()
		if _, ok := c.hub.clients[c]; ok {
			delete(c.hub.clients, c)
			close(c.send)
		}
		c.hub.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ Sink = (*WSHub)(nil)
