// Package cdp implements the tab driver over the Chrome DevTools protocol.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Config holds DevTools endpoint configuration.
type Config struct {
	// DebuggerURL is the browser's DevTools base, e.g. ws://127.0.0.1:9222.
	DebuggerURL string `yaml:"debugger_url"`
}

// command is one outgoing DevTools protocol message.
type command struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// message is one incoming DevTools protocol message.
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// conn is one page connection with request/response correlation.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan message
	log     *slog.Logger
}

// dial attaches to a page target's DevTools websocket.
func dial(ctx context.Context, debuggerURL, targetID string) (*conn, error) {
	url := fmt.Sprintf("%s/devtools/page/%s", debuggerURL, targetID)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial devtools %s: %w", url, err)
	}
	// Protocol payloads (evaluated scripts, DOM dumps) can be large.
	ws.SetReadLimit(8 << 20)

	c := &conn{
		ws:      ws,
		pending: make(map[int64]chan message),
		log:     slog.With("component", "cdp", "target", targetID),
	}
	go c.readLoop()
	return c, nil
}

// readLoop routes responses to their callers and drops protocol events.
func (c *conn) readLoop() {
	for {
		var msg message
		if err := wsjson.Read(context.Background(), c.ws, &msg); err != nil {
			c.failPending(err)
			return
		}
		if msg.ID == 0 {
			// Unsolicited protocol event; the recorder executor reports
			// through its own channel, so these are noise here.
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// failPending unblocks all waiters after the socket dies.
func (c *conn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Warn("DevTools connection lost", "error", err)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends one protocol command and waits for its response.
func (c *conn) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, c.ws, command{ID: id, Method: method, Params: params}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed during %s", method)
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("%s failed: %s (code %d)", method, msg.Error.Message, msg.Error.Code)
		}
		return msg.Result, nil
	}
}

func (c *conn) close() {
	_ = c.ws.Close(websocket.StatusNormalClosure, "driver closed")
}
