package ws

import (
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/errors"
	"channel-chat/runtime"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection. It is the event sink of its session:
// events are queued without blocking and written by the write pump.
type Client struct {
	log     *slog.Logger
	conn    *websocket.Conn
	handler *Handler
	limiter *rateLimiter
	addr    string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	session *runtime.Session
}

func newClient(log *slog.Logger, conn *websocket.Conn, handler *Handler, addr string) *Client {
	conn.SetReadLimit(handler.config.MaxFrameSize)
	return &Client{
		log:     log,
		conn:    conn,
		handler: handler,
		limiter: newRateLimiter(handler.config.RateLimitBurst, handler.config.RateLimitRefill),
		addr:    addr,
		send:    make(chan []byte, handler.config.BufferSize),
		done:    make(chan struct{}),
	}
}

// Consume never blocks: a full queue means the peer cannot keep up, the
// connection is then closed.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	payload, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.ErrSessionClosed
	default:
		c.log.Warn("Slow consumer, closing connection", "addr", c.addr)
		c.shutdown()
		return errors.ErrSlowConsumer
	}
}

// shutdown stops the write pump, which closes the connection and so the
// read pump.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.shutdown()
		c.handler.release(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			c.handler.monitoring.IncrRejectedCommands()
			c.reply(ctx, event.CommandFailed{Code: "rate_limited", Message: "Too many messages"})
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame []byte) {
	cmd, err := DecodeCommand(frame)
	if err != nil {
		c.fail(ctx, "", err)
		return
	}

	switch v := cmd.(type) {
	case domain.JoinChannelCommand:
		if err = c.handler.sessions.Join(ctx, c.session, v.Channel); err == nil {
			c.reply(ctx, event.ChannelJoined{Channel: v.Channel})
		}
	case domain.LeaveChannelCommand:
		if err = c.handler.sessions.Leave(ctx, c.session, v.Channel); err == nil {
			c.reply(ctx, event.ChannelLeft{Channel: v.Channel})
		}
	case domain.SendMessageCommand:
		_, err = c.handler.router.Submit(ctx, c.session, v.Channel, v.Body)
	}
	if err != nil {
		c.fail(ctx, CommandName(cmd), err)
	}
}

// fail reports a rejected command to this client only.
func (c *Client) fail(ctx context.Context, command string, err error) {
	c.handler.monitoring.IncrRejectedCommands()
	message := err.Error()
	if errors.IsClientError(err) {
		c.log.Debug("Command rejected", "addr", c.addr, "command", command, "error", err)
	} else {
		c.log.Error("Command failed", "addr", c.addr, "command", command, "error", err)
		message = "Server error"
	}
	c.reply(ctx, event.CommandFailed{Command: command, Code: errors.Code(err), Message: message})
}

func (c *Client) reply(ctx context.Context, e event.DomainEvent) {
	if err := c.Consume(ctx, e); err != nil {
		c.log.Debug("Reply dropped", "addr", c.addr, "event", e.Name(), "error", err)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "addr", c.addr, "limit", c.handler.config.MaxFrameSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		stderrors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("Client disconnected", "addr", c.addr)
	default:
		c.log.Info("WebSocket read error", "addr", c.addr, "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if !c.write(message) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// write sends message and whatever is already queued in the same frame,
// one envelope per line.
func (c *Client) write(message []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err = w.Write(message); err != nil {
		return false
	}
	for n := len(c.send); n > 0; n-- {
		if _, err = w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err = w.Write(<-c.send); err != nil {
			return false
		}
	}
	if err = w.Close(); err != nil {
		c.log.Debug("Write failed", "addr", c.addr, "error", err)
		return false
	}
	return true
}

func isExpectedCloseError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
