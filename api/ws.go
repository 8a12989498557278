package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quantex/internal/runs"
)

const (
	eventConnected runs.EventType = "connected"

	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
	wsClientBuf    = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware for browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan runs.Event
}

// hub fans run events out to websocket clients.
type hub struct {
	runs   *runs.Manager
	events chan runs.Event
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	done chan struct{}
	once sync.Once
}

func newHub(m *runs.Manager, logger *zap.Logger) *hub {
	return &hub{
		runs:    m,
		events:  m.Subscribe(),
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
	}
}

func (h *hub) run() {
	defer h.runs.Unsubscribe(h.events)
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.broadcast(ev)
		case <-h.done:
			return
		}
	}
}

func (h *hub) broadcast(ev runs.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("websocket client too slow, dropping event", zap.String("id", ev.ID))
		}
	}
}

func (h *hub) close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	})
}

func (h *hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// serve upgrades the request and streams run events until either side hangs up.
// The first message is always {"type":"connected"}.
func (h *hub) serve(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn, send: make(chan runs.Event, wsClientBuf)}
	if !h.register(client) {
		return
	}
	defer h.unregister(client)

	if err := h.write(conn, runs.Event{Type: eventConnected}); err != nil {
		return
	}

	// Reader only notices the peer going away; clients send nothing we use.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-client.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := h.write(conn, ev); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *hub) write(conn *websocket.Conn, ev runs.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}
