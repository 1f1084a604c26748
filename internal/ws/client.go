package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second

	// A client that answers no ping within idleTimeout is dropped.
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout / 2

	// Front ends only send control frames.
	readLimit = 512

	sendQueue = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // terminals run on the shop LAN; CORS covers the HTTP API
	},
}

// Client is one front end watching a terminal's session events.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	terminalID uuid.UUID
	send       chan []byte
}

// ServeWS upgrades the request and streams the terminal's events to it.
// Endpoint: WS /ws/terminals/{tid}, behind middleware.RequireTerminal.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	terminalID, ok := middleware.TerminalIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing terminal ID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := &Client{
		hub:        hub,
		conn:       conn,
		terminalID: terminalID,
		send:       make(chan []byte, sendQueue),
	}
	if !hub.join(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// readLoop discards inbound frames. Commands arrive over HTTP, so the read
// side exists to answer pings and notice the peer going away.
func (c *Client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error",
					zap.String("terminal_id", c.terminalID.String()), zap.Error(err))
			}
			return
		}
	}
}

// writeLoop sends each queued event as its own text frame and keeps the
// connection alive with pings. It exits when the hub closes send.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			err = c.write(websocket.TextMessage, msg)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			c.hub.logger.Debug("websocket write failed",
				zap.String("terminal_id", c.terminalID.String()), zap.Error(err))
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}
