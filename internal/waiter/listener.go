package waiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zhangjoto/agent/pkg/types"
)

// maxRequestSize bounds a command request; anything larger is malformed.
const maxRequestSize = 1024

// defaultIODeadline bounds the read and write on an accepted connection.
const defaultIODeadline = 3 * time.Second

// Config holds the static listening endpoint.
type Config struct {
	Addr string
}

// Dependencies allow test overrides for timing, logging and command
// correlation IDs.
type Dependencies struct {
	IODeadline time.Duration
	Logger     *log.Logger
	NewID      func() string
}

// Listener turns scheduler idle time into a TCP accept window. At most one
// accepted connection is held at a time; Respond answers and closes it.
//
// Not safe for concurrent use; the agent waits and responds from one
// goroutine.
type Listener struct {
	ln         *net.TCPListener
	ioDeadline time.Duration
	logger     *log.Logger
	newID      func() string
	conn       net.Conn
	connID     string

	// acceptLog samples failure logs so a broken listener cannot flood
	// the log at wait frequency.
	acceptLog rate.Sometimes
}

var (
	_ Waiter    = (*Listener)(nil)
	_ Responder = (*Listener)(nil)
)

// NewListener binds the command endpoint. A bind failure is fatal to the
// caller; the agent must not run half-configured.
func NewListener(cfg Config, deps Dependencies) (*Listener, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", cfg.Addr, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind command listener on %q: %w", cfg.Addr, err)
	}

	ioDeadline := deps.IODeadline
	if ioDeadline <= 0 {
		ioDeadline = defaultIODeadline
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Listener{
		ln:         ln,
		ioDeadline: ioDeadline,
		logger:     logger,
		newID:      newID,
		acceptLog:  rate.Sometimes{First: 1, Interval: time.Minute},
	}, nil
}

// Addr reports the bound endpoint, useful when the config asked for an
// ephemeral port.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Wait blocks up to timeout for an inbound command. Accept timeouts and
// transport failures both surface as a nil command; failures are logged.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) *types.Command {
	// A connection from a previous window must be gone before accepting
	// anew; Respond owns the close on the normal path.
	l.closeConn()

	deadline := time.Now().Add(timeout)
	_ = l.ln.SetDeadline(deadline)

	// Wake the accept without tearing the listener down when the agent
	// shuts down mid-window.
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		l.acceptLog.Do(func() {
			l.logger.Printf("accept command connection failed: %v", err)
		})
		// Sit out the remainder of the window so a broken listener does
		// not turn the wait into a hot loop.
		sleep(ctx, time.Until(deadline))
		return nil
	}

	return l.readCommand(conn)
}

func (l *Listener) readCommand(conn net.Conn) *types.Command {
	_ = conn.SetDeadline(time.Now().Add(l.ioDeadline))

	buf := make([]byte, maxRequestSize)
	n, err := conn.Read(buf)
	if err != nil {
		l.logger.Printf("read command request failed: %v", err)
		l.refuse(conn, "unreadable request")
		return nil
	}

	var cmd types.Command
	if err := json.Unmarshal(buf[:n], &cmd); err != nil {
		l.logger.Printf("parse command request failed: %v", err)
		l.refuse(conn, "malformed request")
		return nil
	}
	if cmd.Cmd == "" {
		l.refuse(conn, "missing cmd field")
		return nil
	}

	l.conn = conn
	l.connID = l.newID()
	l.logger.Printf("command %s received: cmd=%q", l.connID, cmd.Cmd)
	return &cmd
}

// refuse sends a best-effort failure reply and drops the connection.
func (l *Listener) refuse(conn net.Conn, detail string) {
	if reply, err := json.Marshal(types.Response{IsOK: false, Detail: detail}); err == nil {
		_, _ = conn.Write(reply)
	}
	_ = conn.Close()
}

// Respond answers the most recently accepted command and closes its
// connection whether or not the write succeeds.
func (l *Listener) Respond(ok bool, detail string) {
	if l.conn == nil {
		return
	}
	defer l.closeConn()

	reply, err := json.Marshal(types.Response{IsOK: ok, Detail: detail})
	if err != nil {
		l.logger.Printf("command %s: marshal response failed: %v", l.connID, err)
		return
	}
	if _, err := l.conn.Write(reply); err != nil {
		l.logger.Printf("command %s: write response failed: %v", l.connID, err)
	}
}

func (l *Listener) closeConn() {
	if l.conn == nil {
		return
	}
	_ = l.conn.Close()
	l.conn = nil
	l.connID = ""
}

// Close releases the listening socket and any held connection.
func (l *Listener) Close() error {
	l.closeConn()
	return l.ln.Close()
}
