// internal/wsui/hub.go
package wsui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/params"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1 << 20
)

// Controller is the part of the orchestrator the bridge drives.
type Controller interface {
	Start(ctx context.Context, req batch.Request) (string, error)
	RequestStop() bool
	Parameters() params.Parameters
}

// Defaults fill in start fields a client leaves empty.
type Defaults struct {
	Build   coords.Build
	Browser browser.Kind
	// Preset resolves a named preset; nil disables named presets.
	Preset func(name string) (params.Parameters, error)
}

// Inbound is a command from a front end. Only "start" and "stop" exist.
type Inbound struct {
	Type           string             `json:"type"`
	Text           string             `json:"text,omitempty"`
	Build          string             `json:"build,omitempty"`
	Browser        string             `json:"browser,omitempty"`
	SkipValidation bool               `json:"skip_validation,omitempty"`
	Preset         string             `json:"preset,omitempty"`
	Parameters     *params.Parameters `json:"parameters,omitempty"`
}

// Event is a notification pushed to every connected front end.
type Event struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message,omitempty"`
	RunID   string                 `json:"run_id,omitempty"`
	Outcome string                 `json:"outcome,omitempty"`
	Stats   *batch.ProcessingStats `json:"stats,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub bridges orchestrator notifications to websocket clients and relays
// their start/stop commands back. It implements batch.Observer.
type Hub struct {
	ctx      context.Context
	ctrl     Controller
	defaults Defaults
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub. Batches started through it run under ctx, not
// under the lifetime of the connection that asked for them.
func NewHub(ctx context.Context, ctrl Controller, defaults Defaults, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		ctx:      ctx,
		ctrl:     ctrl,
		defaults: defaults,
		logger:   logger.With("comp", "wsui"),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHostOrigin,
		},
		clients: make(map[*client]struct{}),
	}
}

// SetController attaches the controller after construction, for callers
// that need the hub as the controller's observer first.
func (h *Hub) SetController(ctrl Controller) {
	h.mu.Lock()
	h.ctrl = ctrl
	h.mu.Unlock()
}

// sameHostOrigin accepts non-browser clients and pages served from the
// same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Handler returns the HTTP routes of the bridge.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Progress(msg string) {
	h.broadcast(Event{Type: "progress", Message: msg})
}

func (h *Hub) Stats(s batch.ProcessingStats) {
	h.broadcast(Event{Type: "stats", Stats: &s})
}

func (h *Hub) Terminal(o batch.Outcome) {
	s := o.Stats
	h.broadcast(Event{Type: "terminal", Outcome: string(o.Kind), RunID: o.RunID, Message: o.Message(), Stats: &s})
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "type", ev.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop it instead of stalling the worker.
			h.logger.Warn("dropping slow client")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		h.logger.Info("client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, Event{Type: "error", Message: "malformed message: " + err.Error()})
			continue
		}
		switch msg.Type {
		case "start":
			runID, err := h.start(msg)
			if err != nil {
				h.reply(c, Event{Type: "error", Message: err.Error()})
				continue
			}
			h.reply(c, Event{Type: "started", RunID: runID})
		case "stop":
			if !h.controller().RequestStop() {
				h.reply(c, Event{Type: "error", Message: "no active batch"})
			}
		default:
			h.reply(c, Event{Type: "error", Message: "unknown command " + quote(msg.Type)})
		}
	}
}

func (h *Hub) controller() Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl
}

func (h *Hub) start(msg Inbound) (string, error) {
	ctrl := h.controller()
	req := batch.Request{
		Text:           msg.Text,
		Build:          h.defaults.Build,
		Browser:        h.defaults.Browser,
		SkipValidation: msg.SkipValidation,
		Parameters:     ctrl.Parameters(),
	}
	if msg.Build != "" {
		b, err := coords.ParseBuild(msg.Build)
		if err != nil {
			return "", err
		}
		req.Build = b
	}
	if msg.Browser != "" {
		k, err := browser.ParseKind(msg.Browser)
		if err != nil {
			return "", err
		}
		req.Browser = k
	}
	switch {
	case msg.Parameters != nil:
		req.Parameters = *msg.Parameters
	case msg.Preset != "" && h.defaults.Preset != nil:
		p, err := h.defaults.Preset(msg.Preset)
		if err != nil {
			return "", err
		}
		req.Parameters = p
	}
	return ctrl.Start(h.ctx, req)
}

// reply queues ev for one client only.
func (h *Hub) reply(c *client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.removeLocked(c)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
