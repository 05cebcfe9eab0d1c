package mimewatch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aknrt/mimewatch/internal/logging"
	"github.com/aknrt/mimewatch/internal/report"
	"github.com/aknrt/mimewatch/internal/wire"
)

var errCloseSession = errors.New("mimewatch: stop current session")

// session keeps per-connection state during MTA communication. One
// goroutine owns it; only conn is shared with the server's shutdown
// broadcast.
type session struct {
	peer         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	// inBodyPhase disambiguates the overloaded 0x45 command: false means
	// end-of-headers, true means end-of-body.
	inBodyPhase bool
	// inHeaderBlock is set when a macro batch announces the header block.
	// Informational only; it never gates a response.
	inHeaderBlock bool
	headers       report.Headers
	body          bytes.Buffer

	mu   sync.Mutex
	conn net.Conn
}

func newSession(conn net.Conn, readTimeout, writeTimeout time.Duration) *session {
	return &session{
		peer:         conn.RemoteAddr().String(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		conn:         conn,
	}
}

func (s *session) logf(format string, v ...interface{}) {
	logging.Printf("%s "+format, append([]interface{}{s.peer}, v...)...)
}

func (s *session) readFrame() (*wire.Message, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, errCloseSession
	}
	return wire.ReadFrame(conn, s.readTimeout)
}

func (s *session) writeResponse(r *Response) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errCloseSession
	}
	return wire.WriteFrame(conn, r.Message(), s.writeTimeout)
}

// closeConn is safe to call from the server's shutdown broadcast; a
// blocked read wakes with net.ErrClosed.
func (s *session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// ignoreError reports whether err is an expected session-ending condition
// that needs no log line: peer closure (also mid-frame) or our own
// shutdown.
func ignoreError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, errCloseSession)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handle runs the per-connection event loop: read a frame, dispatch,
// optionally respond, until the peer closes, a read times out, or the
// server broadcasts shutdown.
func (s *session) handle() {
	defer s.closeConn()
	s.logf("connected")

	for {
		msg, err := s.readFrame()
		if err != nil {
			if isTimeout(err) {
				s.logf("read timeout: %v", err)
			} else if !ignoreError(err) {
				s.logf("read error: %v", err)
			}
			return
		}
		resp, err := s.processCommand(msg)
		if err != nil {
			if !ignoreError(err) {
				s.logf("%v", err)
			}
			return
		}
		if resp != nil {
			if err := s.writeResponse(resp); err != nil {
				if !ignoreError(err) {
					s.logf("write error: %v", err)
				}
				return
			}
		}
	}
}

// processCommand dispatches one frame. It returns the response to send
// (nil for none) or an error that ends the session. Unexpected-but-known
// commands are logged and tolerated so MTA behaviour differences do not
// break the filter.
func (s *session) processCommand(msg *wire.Message) (*Response, error) {
	switch msg.Code {
	case wire.CodeOptNeg:
		neg, err := decodeOptNeg(msg.Data)
		if err != nil {
			return nil, err
		}
		for _, line := range neg.describe() {
			s.logf("%s", line)
		}
		return neg.response(), nil

	case wire.CodeConn:
		s.logf("connect: %q", msg.Data)
		return RespContinue, nil

	case wire.CodeHelo:
		s.logf("helo: %q", wire.ReadCString(msg.Data))
		return RespContinue, nil

	case wire.CodeMacro:
		batch := DecodeMacroBatch(msg.Data)
		if batch.Phase == PhaseHeaderBlock {
			s.inHeaderBlock = true
		}
		if batch.Phase != 0 {
			s.logf("macros for phase %c", batch.Phase)
		}
		for _, m := range batch.Macros {
			s.logf("macro %s = %q", m.Name, m.Value)
		}
		return nil, nil

	case wire.CodeHeader:
		name, value := wire.CutHeader(msg.Data)
		s.headers.Add(name, value)
		return nil, nil

	case wire.CodeBody:
		s.inBodyPhase = true
		s.inHeaderBlock = false
		s.body.Write(msg.Data)
		return nil, nil

	case wire.CodeEOH:
		if !s.inBodyPhase {
			return RespContinue, nil
		}
		s.emitReport()
		s.headers.Reset()
		s.body.Reset()
		s.inBodyPhase = false
		return RespAccept, nil

	default:
		if name, ok := msg.Code.Name(); ok {
			// ABORT, QUIT, RCPT, EOM and the mutation/response codes:
			// logged with a payload hex dump, no response. ABORT keeps
			// the accumulators, matching the observed behaviour.
			s.logf("%s: % x", name, msg.Data)
			return nil, nil
		}
		return nil, fmt.Errorf("mimewatch: unrecognized command code 0x%02x", byte(msg.Code))
	}
}

// emitReport reassembles the accumulated transaction and logs the parse
// report. A parse failure only produces a report line; the session keeps
// going since the MTA may deliver another message.
func (s *session) emitReport() {
	s.logf("message complete: %d header fields, %d body bytes", s.headers.Len(), s.body.Len())
	raw := report.Reassemble(&s.headers, s.body.Bytes())
	for _, line := range report.Describe(raw) {
		s.logf("%s", line)
	}
}
