package testutil

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// StreamClient is a raw protocol client for integration testing. It frames
// server output exactly as a real client would.
type StreamClient struct {
	conn    net.Conn
	framer  *protocol.Framer
	pending []json.RawMessage
	t       *testing.T
}

// NewStreamClient dials addr and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected StreamClient or fails the test.
func NewStreamClient(t *testing.T, addr string) *StreamClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("stream client connected to %s [%s]", addr, time.Since(start))
	return &StreamClient{conn: conn, framer: protocol.NewFramer(0), t: t}
}

// Send encodes req and writes it to the server.
func (c *StreamClient) Send(req protocol.Outgoing) {
	c.t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("encoding %+v: %v", req, err)
	}
	c.SendRaw(data)
}

// SendRaw writes bytes verbatim, for testing framing edge cases.
func (c *StreamClient) SendRaw(data []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("sending %q: %v", data, err)
	}
}

// Next returns the next server message, failing the test on timeout.
func (c *StreamClient) Next(timeout time.Duration) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for len(c.pending) == 0 {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			msgs, ferr := c.framer.Feed(buf[:n])
			if ferr != nil {
				c.t.Fatalf("framing server output: %v", ferr)
			}
			c.pending = append(c.pending, msgs...)
		}
		if err != nil && len(c.pending) == 0 {
			c.t.Fatalf("reading server message: %v", err)
		}
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg
}

// ReadUntil returns the first message of the given type, discarding others.
//
// Postcondition: Returns the matching message or fails the test on timeout.
func (c *StreamClient) ReadUntil(msgType string, timeout time.Duration) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", msgType)
		}
		msg := c.Next(remaining)
		if protocol.MessageType(msg) == msgType {
			return msg
		}
	}
}

// ExpectClosed waits for the server to close the connection.
func (c *StreamClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	for {
		_, err := c.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

// Close closes the client connection.
func (c *StreamClient) Close() {
	c.conn.Close()
}
