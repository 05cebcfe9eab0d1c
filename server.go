// Package mimewatch implements a report-only milter server: it negotiates
// with the MTA, accumulates the headers and body of each transaction and,
// at end-of-message, reassembles and parses the MIME message and logs a
// summary. It never modifies mail.
package mimewatch

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerClosed is returned by [Server.Serve] after a call to
// [Server.Close].
var ErrServerClosed = errors.New("mimewatch: server closed")

// Server accepts MTA connections and runs one session per connection.
// Its configuration is an immutable snapshot: reloads are done by closing
// the server and starting a fresh one on a fresh listener.
type Server struct {
	options    options
	mu         sync.Mutex
	listener   net.Listener
	sessions   map[*session]struct{}
	inShutdown atomic.Bool
}

// NewServer creates a server with the given options.
func NewServer(opts ...Option) *Server {
	options := defaultOptions()
	for _, o := range opts {
		if o != nil {
			o(&options)
		}
	}
	return &Server{options: options}
}

// Serve accepts connections on ln until the server is closed. Each
// connection is handled on its own goroutine; sessions never share state.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			return err
		}
		go func(conn net.Conn) {
			sess := newSession(conn, s.options.readTimeout, s.options.writeTimeout)
			if !s.trackSession(sess, true) {
				_ = conn.Close()
				return
			}
			sess.handle()
			s.trackSession(sess, false)
		}(conn)
	}
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown() {
		return false
	}
	s.listener = ln
	return true
}

func (s *Server) trackSession(sess *session, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[*session]struct{})
	}
	if add {
		if s.shuttingDown() {
			return false
		}
		s.sessions[sess] = struct{}{}
	} else {
		delete(s.sessions, sess)
	}
	return true
}

// Close stops accepting and broadcasts shutdown to every live session by
// closing its connection: a blocked read wakes immediately, so each
// session returns within one read attempt. No farewell frames are sent.
func (s *Server) Close() error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	// sessions deregister themselves as their handlers return
	for sess := range s.sessions {
		sess.closeConn()
	}
	return err
}

const shutdownPollInterval = 20 * time.Millisecond

// Shutdown closes the server and waits for live sessions to finish or ctx
// to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		active := len(s.sessions)
		s.mu.Unlock()
		if active == 0 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
