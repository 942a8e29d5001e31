package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrConnClosed is returned by Push after Close or Abort.
	ErrConnClosed = errors.New("connection closed")
	// ErrOutboxFull is returned by Push when the peer is not draining its messages.
	ErrOutboxFull = errors.New("outbox full")
)

// Conn wraps an accepted TCP connection. Reads happen on the handler's
// goroutine; writes are queued on a bounded outbox and drained by a dedicated
// writer goroutine so a slow peer never blocks the sender.
type Conn struct {
	id     string
	raw    net.Conn
	logger *zap.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	outbox chan []byte

	abortOnce sync.Once
	written   chan struct{}
}

// NewConn wraps raw and starts its writer.
//
// Precondition: raw must be an open connection; outboxSize must be > 0.
// Postcondition: The returned Conn has a fresh uuid and accepts Push calls.
func NewConn(raw net.Conn, outboxSize int, readTimeout, writeTimeout time.Duration, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:           id,
		raw:          raw,
		logger:       logger.With(zap.String("conn_id", id), zap.String("remote_addr", raw.RemoteAddr().String())),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		outbox:       make(chan []byte, outboxSize),
		written:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Logger returns a logger carrying conn_id and remote_addr.
func (c *Conn) Logger() *zap.Logger { return c.logger }

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Read reads raw bytes from the peer, applying the read deadline if configured.
func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.raw.Read(p)
}

// Push queues data for delivery without blocking.
//
// Postcondition: Returns ErrConnClosed after Close/Abort, ErrOutboxFull when
// the queue is saturated; data is never partially queued.
func (c *Conn) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops accepting messages, lets the writer flush what is queued, then
// closes the socket. It blocks until the writer has exited.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.outbox)
	}
	c.mu.Unlock()
	<-c.written
	return nil
}

// Abort closes the socket immediately, discarding queued messages and
// unblocking any pending Read.
func (c *Conn) Abort() {
	c.abortOnce.Do(func() {
		_ = c.raw.Close()
	})
}

func (c *Conn) writeLoop() {
	defer close(c.written)
	defer c.Abort()
	for data := range c.outbox {
		if c.writeTimeout > 0 {
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := c.raw.Write(data); err != nil {
			c.logger.Warn("write failed, dropping connection", zap.Error(err))
			c.Abort()
			// keep draining so Push never blocks on a dead peer
			for range c.outbox {
			}
			return
		}
	}
}
