package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/fingergame/internal/app"
)

const (
	// writeWait bounds a single write to a WebSocket client.
	writeWait = time.Second
	// sendBuffer is how many views may queue for one client before it is
	// dropped as too slow.
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// client is one WebSocket connection. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	// bye is the close frame written once send is closed.
	bye  []byte
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// writePump writes queued views until send is closed, then says goodbye
// and closes the connection.
func (c *client) writePump() {
	defer close(c.done)
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
	if c.bye != nil {
		c.conn.WriteControl(websocket.CloseMessage, c.bye, time.Now().Add(writeWait))
	}
}

// clientMessage is what browsers send. The only action is "advance".
type clientMessage struct {
	Action string `json:"action"`
}

// hub pushes every presented view to connected WebSocket clients. Views are
// queued per client, so a slow browser never holds up the game loop.
type hub struct {
	latest  func() (app.View, bool)
	advance func() error

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub(latest func() (app.View, bool), advance func() error) *hub {
	return &hub{
		latest:  latest,
		advance: advance,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request, sends the current view and then reads
// client messages until the connection closes.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn)
	if v, ok := h.latest(); ok {
		if msg, err := json.Marshal(v); err == nil {
			c.send <- msg
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()
	defer h.drop(c, nil)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("ignoring malformed websocket message")
			continue
		}
		if msg.Action == "advance" {
			if err := h.advance(); err != nil {
				log.Debug().Err(err).Msg("advance from websocket")
			}
		}
	}
}

// drop unregisters c and stops its writer, which then sends bye if set.
// It reports whether c was still registered.
func (h *hub) drop(c *client, bye []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	c.bye = bye
	close(c.send)
	return true
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues v for every client without blocking. Clients whose queue
// is full are dropped.
func (h *hub) broadcast(v app.View) {
	if h.count() == 0 {
		return
	}

	msg, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal view")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		if h.drop(c, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow")) {
			log.Debug().Msg("dropping slow websocket client")
		}
	}
}

// closeAll sends a close frame to every client and waits briefly for the
// writers to finish.
func (h *hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "game stopped")
	var wait []*client
	for _, c := range clients {
		if h.drop(c, bye) {
			wait = append(wait, c)
		}
	}

	deadline := time.After(2 * writeWait)
	for _, c := range wait {
		select {
		case <-c.done:
		case <-deadline:
			return
		}
	}
}
