package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat-platform/internal/errs"
	"chat-platform/internal/hub"
	"chat-platform/internal/metrics"
	"chat-platform/internal/models"
	"chat-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Options sizes the per-connection buffers and inbound rate limit.
type Options struct {
	SendBuffer     int
	CommandBuffer  int
	MaxMessageSize int64
	RateLimit      float64
	RateBurst      int
	// Tracker, if set, is told about the client for its whole lifetime.
	Tracker *Tracker
}

// Client is one websocket connection. Reads are decoded into commands and run
// sequentially by a single processor goroutine; writes go through a buffered
// channel drained by WritePump.
type Client struct {
	id         string
	conn       *websocket.Conn
	user       *models.User
	dispatcher hub.Dispatcher
	opts       Options

	send     chan []byte
	commands chan *models.Command
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, user *models.User, dispatcher hub.Dispatcher, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = 64
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		user:       user,
		dispatcher: dispatcher,
		opts:       opts,
		send:       make(chan []byte, opts.SendBuffer),
		commands:   make(chan *models.Command, opts.CommandBuffer),
		limiter:    rate.NewLimiter(limit, max(opts.RateBurst, 1)),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() int64 {
	return c.user.ID
}

func (c *Client) Username() string {
	return c.user.Username
}

// Start opens the connection on its hub and launches the pumps. ctx must
// outlive the HTTP request that upgraded the connection.
func (c *Client) Start(ctx context.Context) error {
	if err := c.dispatcher.Open(ctx, c); err != nil {
		return fmt.Errorf("failed to open %s connection: %w", c.dispatcher.Name(), err)
	}
	if c.opts.Tracker != nil {
		c.opts.Tracker.add(c)
	}
	logger.Info("User %s connected to %s hub as %s", c.user.Username, c.dispatcher.Name(), c.id)

	go c.WritePump()
	go c.processCommands(ctx)
	go c.ReadPump()
	return nil
}

// Deliver queues an encoded frame for writing. A full buffer means the peer is
// not keeping up, so the connection is closed instead of blocking the hub.
func (c *Client) Deliver(f *hub.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f.Data:
		return true
	default:
		c.closed = true
		close(c.send)
		metrics.DroppedConnections.Inc()
		logger.Warn("Send buffer full for %s (user %d), dropping connection", c.id, c.user.ID)
		return false
	}
}

func (c *Client) ReadPump() {
	defer func() {
		close(c.commands)
		c.conn.Close()
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.deliverError(errs.New(errs.KindInvalidInput, "too many messages, slow down"))
			continue
		}

		var cmd models.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.deliverError(errs.Wrap(errs.KindInvalidInput, err, "malformed command"))
			continue
		}
		c.commands <- &cmd
	}
}

func (c *Client) WritePump() {
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
				logger.Error("Write error: %v", err)
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

// processCommands runs commands in arrival order. Once the read side is gone it
// runs the hub's disconnect path and stops the writer.
func (c *Client) processCommands(ctx context.Context) {
	defer func() {
		c.dispatcher.Close(ctx, c)
		c.shutdown()
		if c.opts.Tracker != nil {
			c.opts.Tracker.remove(c)
		}
		logger.Info("User %s disconnected from %s hub (%s)", c.user.Username, c.dispatcher.Name(), c.id)
	}()

	for cmd := range c.commands {
		c.handle(ctx, cmd)
	}
}

func (c *Client) handle(ctx context.Context, cmd *models.Command) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic handling %s from %s: %v", cmd.Action, c.id, r)
			c.deliverError(errs.New(errs.KindInternal, "internal error"))
		}
	}()

	if err := c.dispatcher.Handle(ctx, c, cmd); err != nil {
		c.deliverError(err)
	}
}

func (c *Client) deliverError(err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindInternal {
		logger.Error("Command failed on %s: %v", c.id, err)
	}
	evt := models.NewEvent(models.EventError, "", 0)
	evt.Code = string(kind)
	evt.Error = errs.Message(err)
	f, encErr := hub.NewFrame(evt)
	if encErr != nil {
		logger.Error("Error marshaling error event for %s: %v", c.id, encErr)
		return
	}
	c.Deliver(f)
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
