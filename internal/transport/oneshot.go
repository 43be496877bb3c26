package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zhangjoto/agent/internal/stats"
)

// OneShotConnection dials the collector for every packet and always closes
// the connection afterwards, win or lose.
type OneShotConnection struct {
	addr    string
	timeout time.Duration
	dial    DialFunc
	logger  *log.Logger
	stats   stats.SendRecorder
}

var _ Sender = (*OneShotConnection)(nil)

// NewOneShotConnection builds the strategy from configuration and
// dependencies. No connection is made until the first send.
func NewOneShotConnection(cfg Config, deps Dependencies) (*OneShotConnection, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("collector address is required")
	}
	deps = deps.fill()
	return &OneShotConnection{
		addr:    cfg.Addr,
		timeout: deps.Timeout,
		dial:    deps.Dial,
		logger:  deps.Logger,
		stats:   deps.Stats,
	}, nil
}

func (c *OneShotConnection) Send(ctx context.Context, frame []byte) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", c.addr)
	if err != nil {
		c.stats.IncSendFailures()
		c.logger.Printf("dial collector %s failed: %v", c.addr, err)
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(frame); err != nil {
		c.stats.IncSendFailures()
		c.logger.Printf("send %d bytes to %s failed: %v", len(frame), c.addr, err)
		return
	}
	c.stats.IncPacketsSent()
	c.logger.Printf("sent %d bytes to %s", len(frame), c.addr)
}

// Close is a no-op; the strategy holds no connection between sends.
func (c *OneShotConnection) Close() error {
	return nil
}
