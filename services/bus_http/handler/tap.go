package handler

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/config"
	"executor-go/commonlib/log"
)

// =============================================================================
// WebSocket Upgrader
// =============================================================================

// createUpgrader creates a WebSocket upgrader with origin checking
func createUpgrader(cfg config.WebSocketConfig) websocket.Upgrader {
	allowedOrigins := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no origin
			if origin == "" || allowedOrigins["*"] || allowedOrigins[origin] {
				return true
			}
			for allowedOrigin := range allowedOrigins {
				if matchOrigin(origin, allowedOrigin) {
					return true
				}
			}
			return false
		},
	}
}

// matchOrigin checks if an origin matches a pattern; "*.example.com"
// matches "sub.example.com".
func matchOrigin(origin, pattern string) bool {
	if pattern == "*" || pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		domain := pattern[1:]
		return strings.HasSuffix(origin, domain)
	}
	return false
}

// =============================================================================
// Envelope Tap
// =============================================================================

// tapClient streams the envelopes one actor receives. Frames are the
// envelope wire encoding. A client that falls behind loses frames; it never
// slows the actor down.
type tapClient struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	dropped atomic.Int64
	wait    time.Duration
	logger  log.Logger
}

// Tap upgrades to a WebSocket streaming every envelope received by :name.
func (h *Handler) Tap(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.Directory.State(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown actor"})
		return
	}

	backlog := h.WebSocket.Backlog
	if backlog <= 0 {
		backlog = 256
	}
	wait := h.WebSocket.WriteWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	client := &tapClient{
		send:   make(chan []byte, backlog),
		done:   make(chan struct{}),
		wait:   wait,
		logger: h.logger.With(log.String("actor", name), log.String("request_id", c.GetString("request_id"))),
	}

	// subscribe first so nothing received after the handshake is missed
	unsubscribe := h.Directory.Subscribe(actor.ObserverFuncs{
		OnEnvelope: func(actorName string, env *actor.Envelope) {
			if actorName != name {
				return
			}
			b, err := h.Codec.Encode(env)
			if err != nil {
				return
			}
			client.push(b)
		},
	})

	upgrader := createUpgrader(h.WebSocket)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		h.logger.Error("Failed to upgrade WebSocket", log.Err(err))
		return
	}
	client.conn = conn

	client.logger.Info("Tap opened")
	go client.writePump()
	go func() {
		client.readPump()
		unsubscribe()
		close(client.done)
		client.logger.Info("Tap closed", log.Int64("dropped", client.dropped.Load()))
	}()
}

func (t *tapClient) push(b []byte) {
	select {
	case <-t.done:
	case t.send <- b:
	default:
		t.dropped.Add(1)
	}
}

// readPump discards client frames and returns when the connection closes.
func (t *tapClient) readPump() {
	defer t.conn.Close()
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("WebSocket read error", log.Err(err))
			}
			return
		}
	}
}

func (t *tapClient) writePump() {
	defer t.conn.Close()
	for {
		select {
		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(t.wait))
			t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(t.wait))
			if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
