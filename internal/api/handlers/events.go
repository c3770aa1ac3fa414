package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eargollo/taxsheet/internal/channel"
	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxCommandSize = 64 << 10
)

// EventsHandler serves GET /api/ws: engine events go out as JSON envelopes,
// commands come back in the same format.
type EventsHandler struct {
	Ctl    *engine.Controller
	Hub    *channel.Hub
	Router *channel.Router
	// PingInterval defaults to 30s; the read deadline is three intervals.
	PingInterval time.Duration

	upgrader websocket.Upgrader
}

// wsClient serialises writes to one connection.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) send(e protocol.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Emit implements protocol.Sink for replies to this client only.
func (c *wsClient) Emit(e protocol.Event) {
	if err := c.send(e); err != nil {
		slog.Debug("ws: reply failed", "event", e.Name, "error", err)
	}
}

func (c *wsClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ServeHTTP upgrades the connection, replays the current view and then
// streams events while reading commands.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	client := &wsClient{conn: conn}

	replay, sub := channel.Attach(h.Ctl, h.Hub)
	defer sub.Close()
	for _, e := range replay {
		if err := client.send(e); err != nil {
			return
		}
	}

	interval := h.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	defer close(done)
	go h.forward(client, sub, interval, done)

	conn.SetReadLimit(maxCommandSize)
	conn.SetReadDeadline(time.Now().Add(3 * interval))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(3 * interval))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("ws: read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(3 * interval))

		cmd, err := protocol.DecodeCommand(message)
		if err != nil {
			slog.Warn("ws: invalid command", "error", err)
			continue
		}
		if err := h.Router.Handle(r.Context(), cmd, client); err != nil {
			slog.Info("ws: command not applied", "command", cmd.Name, "error", err)
		}
	}
}

// forward writes hub events and keepalive pings until done is closed or the
// hub drops the subscription.
func (h *EventsHandler) forward(c *wsClient, sub *channel.Subscription, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case e, ok := <-sub.Events():
			if !ok {
				// Dropped for falling behind; the client reconnects and replays.
				c.conn.Close()
				return
			}
			if err := c.send(e); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
