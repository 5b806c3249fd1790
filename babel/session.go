package babel

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/encodeous/tollmesh/state"
)

var ErrNotStarted = errors.New("babel session has not been started")

// Session speaks the daemon's line protocol over a single stream.
// A Session is not safe for concurrent use.
type Session struct {
	r        *bufio.Reader
	w        io.Writer
	greeting *Greeting
}

func NewSession(rw io.ReadWriter) *Session {
	return &Session{
		r: bufio.NewReader(rw),
		w: rw,
	}
}

// readLine returns the next line without its terminator. A final line without a newline is
// returned as is, io.EOF is only returned once nothing is left.
func (s *Session) readLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line != "" {
				return strings.TrimRight(line, "\r\n"), nil
			}
			return "", io.EOF
		}
		return "", &state.TransportError{Op: "read", Err: err}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func daemonRefusal(line string) error {
	fields := strings.Fields(line)
	if len(fields) > 0 && (fields[0] == "no" || fields[0] == "bad") {
		return state.NewProtocolError(line, "daemon refused request")
	}
	return nil
}

// Start consumes the greeting banner that opens every control connection
func (s *Session) Start() (*Greeting, error) {
	banner, err := s.readLine()
	if errors.Is(err, io.EOF) {
		return nil, state.NewProtocolError("", "connection closed before greeting")
	}
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(banner)
	if len(fields) != 2 || (fields[0] != "BABEL" && fields[0] != "ALTHEA") {
		return nil, state.NewProtocolError(banner, "malformed greeting banner")
	}
	g := &Greeting{Protocol: fields[0], Version: fields[1]}

	for {
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			return nil, state.NewProtocolError("", "greeting ended before ok")
		}
		if err != nil {
			return nil, err
		}
		if line == "ok" {
			break
		}
		if err := daemonRefusal(line); err != nil {
			return nil, err
		}
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "version":
			g.Daemon = val
		case "host":
			g.Host = val
		case "my-id":
			g.MyID = val
		}
	}
	s.greeting = g
	return g, nil
}

func (s *Session) Greeting() *Greeting {
	return s.greeting
}

// ReadSnapshot requests a dump and parses it until the terminating ok. If a line is rejected
// the rest of the response is still consumed, so the stream stays aligned for the next request.
func (s *Session) ReadSnapshot() (*Snapshot, error) {
	if s.greeting == nil {
		return nil, ErrNotStarted
	}
	if _, err := io.WriteString(s.w, "dump\n"); err != nil {
		return nil, &state.TransportError{Op: "write", Err: err}
	}

	snap := &Snapshot{}
	var firstErr error
	for {
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			return nil, state.NewProtocolError("", "dump truncated before ok")
		}
		if err != nil {
			return nil, err
		}
		if line == "ok" {
			break
		}
		if err := daemonRefusal(line); err != nil {
			return nil, err
		}
		if err := parseLine(line, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return snap, nil
}
