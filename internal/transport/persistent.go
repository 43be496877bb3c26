package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/zhangjoto/agent/internal/stats"
)

// PersistentConnection keeps one connection to the collector across sends.
// Every failed send closes the connection and attempts a single reconnect,
// so a flapping collector cannot provoke a dial or log storm. The failed
// packet is dropped either way, never resent.
//
// Not safe for concurrent use; the agent drives all sends from one
// goroutine.
type PersistentConnection struct {
	addr    string
	timeout time.Duration
	dial    DialFunc
	logger  *log.Logger
	stats   stats.SendRecorder
	conn    net.Conn
}

var _ Sender = (*PersistentConnection)(nil)
var _ Connector = (*PersistentConnection)(nil)

// NewPersistentConnection builds the strategy from configuration and
// dependencies. Call Connect to establish the initial connection.
func NewPersistentConnection(cfg Config, deps Dependencies) (*PersistentConnection, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("collector address is required")
	}
	deps = deps.fill()
	return &PersistentConnection{
		addr:    cfg.Addr,
		timeout: deps.Timeout,
		dial:    deps.Dial,
		logger:  deps.Logger,
		stats:   deps.Stats,
	}, nil
}

// Connect establishes the initial connection, trying exactly once. On
// failure the agent still starts; the next send runs the same once-only
// recovery.
func (c *PersistentConnection) Connect(ctx context.Context) {
	c.reconnect(ctx)
}

func (c *PersistentConnection) Send(ctx context.Context, frame []byte) {
	if c.conn == nil {
		c.stats.IncSendFailures()
		c.logger.Printf("send %d bytes to %s failed: no connection", len(frame), c.addr)
		if c.reconnect(ctx) {
			c.stats.IncReconnects()
		}
		return
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(frame); err != nil {
		c.stats.IncSendFailures()
		c.logger.Printf("send %d bytes to %s failed: %v", len(frame), c.addr, err)
		_ = c.conn.Close()
		c.conn = nil
		if c.reconnect(ctx) {
			c.stats.IncReconnects()
		}
		return
	}
	c.stats.IncPacketsSent()
	c.logger.Printf("sent %d bytes to %s", len(frame), c.addr)
}

// reconnect makes a single dial attempt and reports whether it succeeded.
func (c *PersistentConnection) reconnect(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", c.addr)
	if err != nil {
		c.logger.Printf("connect collector %s failed: %v", c.addr, err)
		return false
	}
	c.conn = conn
	c.logger.Printf("connected to collector %s", c.addr)
	return true
}

func (c *PersistentConnection) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
