// Package transport implements the delivery strategies between the agent
// and its collector.
package transport

import (
	"context"
	"io"
	"log"
	"net"
	"time"

	"github.com/zhangjoto/agent/internal/stats"
)

// Sender delivers one framed packet to the collector. Implementations log
// and count delivery failures instead of returning them; a dead collector
// must not stall the schedule. Close releases whatever connection the
// strategy holds.
type Sender interface {
	Send(ctx context.Context, frame []byte)
	Close() error
}

// Connector marks strategies that hold a connection worth opening before
// the first send. Opening is best-effort; failures surface on Send.
type Connector interface {
	Connect(ctx context.Context)
}

// DialFunc opens a connection to the collector. Tests substitute fakes.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config holds the static collector endpoint for a strategy.
type Config struct {
	Addr string
}

// Dependencies allow test overrides for dialing, timing, counting and
// logging.
type Dependencies struct {
	Dial    DialFunc
	Timeout time.Duration
	Logger  *log.Logger
	Stats   stats.SendRecorder
}

// defaultTimeout bounds dialing and writing on every strategy.
const defaultTimeout = 3 * time.Second

// MaxDatagramSize is the smallest frame length the datagram strategy
// refuses to put on the wire. Larger frames risk IP fragmentation and
// silent loss.
const MaxDatagramSize = 1400

func (d Dependencies) fill() Dependencies {
	if d.Dial == nil {
		dialer := &net.Dialer{}
		d.Dial = dialer.DialContext
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.Stats == nil {
		d.Stats = stats.NoopSendRecorder{}
	}
	return d
}
