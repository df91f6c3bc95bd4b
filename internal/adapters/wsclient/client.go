// Package wsclient is the peer side of the signaling channel.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling client closed")

// Client manages the WebSocket connection to the signaling server. Send is
// safe for concurrent use.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	incoming  chan domain.Message
	outgoing  chan domain.Message
	done      chan struct{}
	stopped   chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
}

func New(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan domain.Message, 32),
		outgoing:  make(chan domain.Message, 64),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	log.Info().Str("module", "wsclient").Str("url", u.String()).Msg("connected")

	c.started.Store(true)
	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg domain.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "wsclient").Msg("read error")
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// whatever was queued before Close still goes out
			for drained := false; !drained; {
				select {
				case msg := <-c.outgoing:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(msg domain.Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Str("module", "wsclient").Msg("write error")
		return err
	}
	return nil
}

// Send queues msg for the write pump.
func (c *Client) Send(msg domain.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming is closed once the connection goes away.
func (c *Client) Incoming() <-chan domain.Message {
	return c.incoming
}

// Close flushes messages queued by Send, sends a close frame and waits for
// the write pump to finish, at most writeWait.
func (c *Client) Close() {
	c.shutdown()
	if !c.started.Load() {
		return
	}
	select {
	case <-c.stopped:
	case <-time.After(writeWait):
		log.Warn().Str("module", "wsclient").Msg("close timed out")
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
