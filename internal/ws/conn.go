package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inboxhub/realtime/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrSendOverflow is returned by Write when the outbound buffer would exceed
// its hard limit. The hub treats it like any other write failure.
var ErrSendOverflow = errors.New("outbound buffer limit exceeded")

var _ realtime.Conn = (*Conn)(nil)

// Conn is the server side of a client websocket. Write never blocks: messages
// are queued and a writePump goroutine sends them in order. Buffered reports
// the bytes queued but not yet written to the socket.
type Conn struct {
	ws          *websocket.Conn
	maxBuffered int

	mu       sync.Mutex
	pending  [][]byte
	buffered int
	closed   bool

	wake chan struct{}
	done chan struct{}
}

func newConn(ws *websocket.Conn, maxBuffered int) *Conn {
	c := &Conn{
		ws:          ws,
		maxBuffered: maxBuffered,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Write queues msg for sending.
func (c *Conn) Write(msg []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return realtime.ErrConnClosed
	}
	if c.maxBuffered > 0 && c.buffered+len(msg) > c.maxBuffered {
		c.mu.Unlock()
		c.Close()
		return ErrSendOverflow
	}
	c.pending = append(c.pending, msg)
	c.buffered += len(msg)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Buffered returns the number of queued bytes not yet written.
func (c *Conn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Closed reports whether the connection has been shut down.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops the write pump and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	c.buffered = 0
	c.mu.Unlock()
	close(c.done)
}

// Done is closed once the connection is shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.wake:
			if err := c.flush(); err != nil {
				c.Close()
				return
			}
		}
	}
}

// flush writes everything queued so far. The byte count is released only
// after each message reaches the socket so Buffered reflects a stalled peer.
func (c *Conn) flush() error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, msg := range batch {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return err
		}
		c.mu.Lock()
		if !c.closed {
			c.buffered -= len(msg)
		}
		c.mu.Unlock()
	}
	return nil
}
