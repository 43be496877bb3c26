package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/zhangjoto/agent/internal/stats"
)

// Datagram sends packets connectionless. The endpoint is resolved at
// construction, so an unresolvable collector address fails startup. A send
// failure closes and recreates the socket, the only state the strategy has.
//
// Not safe for concurrent use; the agent drives all sends from one
// goroutine.
type Datagram struct {
	addr    string
	timeout time.Duration
	dial    DialFunc
	logger  *log.Logger
	stats   stats.SendRecorder
	conn    net.Conn
}

var _ Sender = (*Datagram)(nil)

// NewDatagram builds the strategy and opens its socket.
func NewDatagram(cfg Config, deps Dependencies) (*Datagram, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("collector address is required")
	}
	deps = deps.fill()
	d := &Datagram{
		addr:    cfg.Addr,
		timeout: deps.Timeout,
		dial:    deps.Dial,
		logger:  deps.Logger,
		stats:   deps.Stats,
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	conn, err := d.dial(dialCtx, "udp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("open datagram socket for %q: %w", d.addr, err)
	}
	d.conn = conn
	return d, nil
}

func (d *Datagram) Send(ctx context.Context, frame []byte) {
	if len(frame) >= MaxDatagramSize {
		d.stats.IncSendFailures()
		d.logger.Printf("drop %d byte frame for %s: datagram limit is %d", len(frame), d.addr, MaxDatagramSize)
		return
	}
	if d.conn == nil {
		d.recreate(ctx)
		if d.conn == nil {
			d.stats.IncSendFailures()
			return
		}
	}

	if _, err := d.conn.Write(frame); err != nil {
		d.stats.IncSendFailures()
		d.logger.Printf("send %d bytes to %s failed: %v", len(frame), d.addr, err)
		d.recreate(ctx)
		return
	}
	d.stats.IncPacketsSent()
	d.logger.Printf("sent %d bytes to %s", len(frame), d.addr)
}

// recreate resets the socket after a failure.
func (d *Datagram) recreate(ctx context.Context) {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := d.dial(dialCtx, "udp", d.addr)
	if err != nil {
		d.logger.Printf("recreate datagram socket for %s failed: %v", d.addr, err)
		return
	}
	d.conn = conn
	d.stats.IncReconnects()
}

func (d *Datagram) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
