package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/remote"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client is one websocket connection following a table's changefeed. Its
// queue is unbounded; a peer that stops reading is dropped by the write
// deadline, not by the hub.
type client struct {
	hub   *tableHub
	conn  *websocket.Conn
	queue *remote.Feed
}

func newClient(h *tableHub) *client {
	return &client{hub: h, queue: remote.NewFeed(nil)}
}

// tableHub relays one backend subscription to every websocket client of a
// table. All client bookkeeping happens on the run goroutine.
type tableHub struct {
	table      remote.Table
	sub        remote.Subscription
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        zerolog.Logger
}

func newTableHub(table remote.Table, sub remote.Subscription, log zerolog.Logger) *tableHub {
	return &tableHub{
		table:      table,
		sub:        sub,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log.With().Str("table", string(table)).Logger(),
	}
}

// run dispatches changes until ctx ends or the backend subscription closes.
// Remaining clients receive what is queued for them and are then closed.
func (h *tableHub) run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for c := range h.clients {
			delete(h.clients, c)
			c.queue.End()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug().Int("clients", len(h.clients)).Msg("changefeed client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				_ = c.queue.Close()
				h.log.Debug().Int("clients", len(h.clients)).Msg("changefeed client disconnected")
			}
		case change, ok := <-h.sub.Changes():
			if !ok {
				h.log.Warn().Msg("backend changefeed closed")
				return
			}
			for c := range h.clients {
				c.queue.Push(change)
			}
		}
	}
}

// join registers c. Returns false if the hub has stopped.
func (h *tableHub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *tableHub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// writePump writes queued changes to the connection. Changes already queued
// when a frame starts are appended to it, one JSON value per line.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.queue.Close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case change, ok := <-c.queue.Changes():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, ended, err := c.nextFrame(change)
			if err != nil {
				c.hub.log.Error().Err(err).Msg("encode change")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			if ended {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// nextFrame encodes first plus every change that is ready without waiting.
// ended reports that the queue closed while draining.
func (c *client) nextFrame(first remote.Change) (frame []byte, ended bool, err error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(first); err != nil {
		return nil, false, err
	}
	for {
		select {
		case change, ok := <-c.queue.Changes():
			if !ok {
				return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), true, nil
			}
			if err := enc.Encode(change); err != nil {
				return nil, false, err
			}
		default:
			return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), false, nil
		}
	}
}

// readPump only watches for the peer going away; clients never send data.
func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("changefeed client read")
			}
			return
		}
	}
}
