// Package transport accepts TCP connections and hands each one to a Handler
// on its own goroutine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
)

// Handler runs the protocol for a single connection. It returns when the peer
// disconnects, the context is cancelled, or the connection must be dropped.
type Handler interface {
	HandleConn(ctx context.Context, conn *Conn) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *Conn) error

// HandleConn calls f.
func (f HandlerFunc) HandleConn(ctx context.Context, conn *Conn) error { return f(ctx, conn) }

// Acceptor listens on a TCP port and dispatches each connection to a Handler.
// Every handler context derives from the acceptor's, so Stop cancels them all.
type Acceptor struct {
	cfg     config.ServerConfig
	handler Handler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*Conn]struct{}
	handlers sync.WaitGroup
}

// NewAcceptor creates an acceptor for cfg.Addr().
//
// Precondition: handler and logger must be non-nil; cfg.OutboxSize must be > 0.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, handler Handler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*Conn]struct{}),
	}
}

// ListenAndServe binds the listener and serves connections until Stop.
//
// Precondition: Called at most once.
// Postcondition: Returns nil after Stop, or the bind error.
func (a *Acceptor) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		ln.Close()
		return nil
	}
	a.ln = ln
	a.mu.Unlock()

	a.logger.Info("acceptor listening", zap.String("addr", ln.Addr().String()))

	for {
		raw, err := ln.Accept()
		switch {
		case a.ctx.Err() != nil:
			if raw != nil {
				raw.Close()
			}
			return nil
		case errors.Is(err, net.ErrClosed):
			return nil
		case err != nil:
			a.logger.Error("accepting connection", zap.Error(err))
			continue
		}

		conn := NewConn(raw, a.cfg.OutboxSize, a.cfg.ReadTimeout, a.cfg.WriteTimeout, a.logger)
		if !a.admit(conn) {
			conn.Abort()
			_ = conn.Close()
			return nil
		}
		go a.serve(conn)
	}
}

// admit registers conn unless the acceptor is stopping.
func (a *Acceptor) admit(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return false
	}
	a.sessions[conn] = struct{}{}
	a.handlers.Add(1)
	return true
}

func (a *Acceptor) serve(conn *Conn) {
	defer a.handlers.Done()
	defer func() {
		a.mu.Lock()
		delete(a.sessions, conn)
		a.mu.Unlock()
	}()
	defer conn.Close()

	start := time.Now()
	logger := conn.Logger()
	logger.Info("client connected")

	err := a.handler.HandleConn(a.ctx, conn)
	if err != nil {
		logger.Debug("connection dropped", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

// Stop closes the listener, cancels every handler, aborts open connections so
// blocked reads return, and waits for the handlers to finish. Stop is idempotent.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		a.handlers.Wait()
		return
	}
	a.cancel()
	if a.ln != nil {
		a.ln.Close()
	}
	for conn := range a.sessions {
		conn.Abort()
	}
	a.mu.Unlock()

	a.handlers.Wait()
	a.logger.Info("acceptor stopped")
}

// Addr returns the bound address, or "" before the listener is up.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

// IsRunning reports whether the listener is bound and Stop has not been called.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ln != nil && a.ctx.Err() == nil
}

// ConnCount returns the number of connections with a running handler.
func (a *Acceptor) ConnCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
