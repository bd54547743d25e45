package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/tictactoe/events"
	"github.com/duelgrid/tictactoe/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow connections from any origin
}

type inbound struct {
	data []byte
	err  error
}

// Conn adapts a websocket connection to the session.Participant interface.
// A dedicated reader goroutine feeds the inbox so Receive can be interrupted
// by context cancellation while a read is pending.
type Conn struct {
	conn    *websocket.Conn
	inbox   chan inbound
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
}

func newConn(c *websocket.Conn) *Conn {
	wc := &Conn{
		conn:  c,
		inbox: make(chan inbound),
		done:  make(chan struct{}),
	}
	go wc.readLoop()
	return wc
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = session.ErrConnClosed
			}
			select {
			case c.inbox <- inbound{err: err}:
			case <-c.done:
			}
			return
		}
		select {
		case c.inbox <- inbound{data: data}:
		case <-c.done:
			return
		}
	}
}

// Receive returns the next inbound message. Cancellation takes priority over
// a message that became ready at the same instant.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-c.inbox:
		return m.data, m.err
	}
}

// Send writes v as JSON. Writes are serialized; gorilla connections allow
// only one concurrent writer.
func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close shuts the connection down and releases the reader goroutine.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.conn.Close()
}

// Handler is the connection dispatcher: it upgrades each request and routes
// the connection's first message to the coordinator.
type Handler struct {
	coordinator *session.Coordinator
}

func NewHandler(c *session.Coordinator) *Handler {
	return &Handler{coordinator: c}
}

// GameWebSocketHandler upgrades the request and dispatches the first
// message. A connection that opens or joins a session is owned by that
// session afterwards; anything else is answered and closed here.
func (h *Handler) GameWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	p := newConn(conn)
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("New client connected")
	h.dispatch(p)
}

func (h *Handler) dispatch(p *Conn) {
	data, err := p.Receive(context.Background())
	if err != nil {
		p.Close()
		return
	}

	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		h.reject(p, "Malformed request.")
		return
	}

	switch env.Type {
	case events.TypeNewGame:
		if _, err := h.coordinator.CreateSession(p); err != nil {
			log.Warn().Err(err).Msg("Failed to create session")
			p.Close()
		}
	case events.TypeJoinGame:
		token, errMsg := decodeToken(env.Content)
		if errMsg != "" {
			h.reject(p, errMsg)
			return
		}
		if err := h.coordinator.JoinSession(p, token); err != nil {
			// joiner already got its error notice
			p.Close()
		}
	default:
		h.reject(p, "Illegal request. Please start or join a game.")
	}
}

func (h *Handler) reject(p *Conn, msg string) {
	if err := p.Send(events.ErrorEvent(msg)); err != nil {
		log.Debug().Err(err).Msg("Failed to send rejection")
	}
	p.Close()
}

func decodeToken(content json.RawMessage) (string, string) {
	if len(content) == 0 {
		return "", "content"
	}
	var jc events.JoinContent
	if err := json.Unmarshal(content, &jc); err != nil {
		return "", "Malformed request."
	}
	if jc.Token == nil {
		return "", "token"
	}
	return *jc.Token, ""
}
