package chat

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/umar/talkwave/internal/auth"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type ClientOptions struct {
	SendBuffer int
	EventRate  float64
	EventBurst int
}

// Client is one websocket connection. It implements Conn.
type Client struct {
	id         ConnID
	identity   Identity
	conn       *websocket.Conn
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	log        *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// ServeWS authenticates the handshake token before upgrading; requests
// without a valid token never become connections.
func ServeWS(ctx context.Context, d *Dispatcher, jwtSecret string, opts ClientOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		client := newClient(conn, d, Identity{UserID: claims.UserID, Username: claims.Username}, opts)
		if err := d.Connect(r.Context(), client); err != nil {
			slog.Warn("rejected websocket connection", "error", err)
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump(ctx)
	}
}

func newClient(conn *websocket.Conn, d *Dispatcher, id Identity, opts ClientOptions) *Client {
	return &Client{
		id:         ConnID(uuid.NewString()),
		identity:   id,
		conn:       conn,
		dispatcher: d,
		limiter:    rate.NewLimiter(rate.Limit(opts.EventRate), opts.EventBurst),
		log:        d.log,
		send:       make(chan []byte, opts.SendBuffer),
	}
}

func (c *Client) ID() ConnID { return c.id }

func (c *Client) Identity() Identity { return c.identity }

// Send queues data without blocking. A client that cannot keep up is closed.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump owns disconnect cleanup, which also covers abrupt network loss.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.dispatcher.Disconnect(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("ws read error", "error", err, "user_id", c.identity.UserID)
			}
			break
		}

		if !c.limiter.Allow() {
			c.dispatcher.reply(c, &EventError{Kind: KindRateLimited, Message: MsgRateLimited})
			continue
		}
		c.dispatcher.HandleRaw(ctx, c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
