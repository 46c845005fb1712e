package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trolley/internal/api"
)

// changeEvent is the fanout unit behind a committed write: the wire
// event plus the accounts allowed to hear it. Origin names the server
// instance that produced it, so the AMQP relay can skip its own echo.
type changeEvent struct {
	api.ChangeEvent
	Audience []string `json:"audience"`
	Origin   string   `json:"origin,omitempty"`
}

func (ev changeEvent) audienceHas(accountID string) bool {
	for _, id := range ev.Audience {
		if id == accountID {
			return true
		}
	}
	return false
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	// Clients are terminal programs, not browsers; Origin is meaningless here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks connected feed clients and pushes each event to every
// connection whose account is in the audience.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

type wsClient struct {
	accountID string
	send      chan api.ChangeEvent
}

func newHub() *hub {
	return &hub{clients: map[*wsClient]bool{}}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// unregister removes the client and closes its send channel. Safe to
// call twice; only the first call closes.
func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// deliver pushes the event to every audience member's connection.
// Delivery must not block the mutating request; a reader that cannot
// keep up loses hints, not data.
func (h *hub) deliver(ev changeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !ev.audienceHas(c.accountID) {
			continue
		}
		select {
		case c.send <- ev.ChangeEvent:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleRealtime upgrades the request and streams change events until
// the peer hangs up. The feed is one-way; inbound frames are drained
// only to notice the close.
func (s *Server) handleRealtime(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := &wsClient{
		accountID: accountID(c),
		send:      make(chan api.ChangeEvent, 16),
	}
	s.hub.register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range client.send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				_ = conn.Close()
				return
			}
		}
		// Hub shut the channel; say goodbye before dropping the socket.
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.unregister(client)
	_ = conn.Close()
	<-done
}
