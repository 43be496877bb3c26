package packet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/zhangjoto/agent/pkg/types"
)

const (
	// HeaderSize is the number of bytes in the big-endian length prefix.
	HeaderSize = 2

	// MaxBodySize is the largest body length the prefix can express.
	MaxBodySize = 65535
)

// Config holds the static identity stamped into every packet.
type Config struct {
	NodeID string
}

// Dependencies allow test overrides for the clock and the origin address.
type Dependencies struct {
	Now func() time.Time
	IP  string
}

// Encoder assembles and frames outbound packets. The origin address is
// resolved once at construction; the upstream looked it up per packet,
// which cost a resolver round trip on every send.
type Encoder struct {
	nodeID string
	ip     string
	now    func() time.Time
}

// NewEncoder builds an Encoder from configuration and dependencies.
func NewEncoder(cfg Config, deps Dependencies) (*Encoder, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ip := deps.IP
	if ip == "" {
		ip = originIP()
	}
	return &Encoder{nodeID: cfg.NodeID, ip: ip, now: now}, nil
}

// Packet builds the body for one task result.
func (e *Encoder) Packet(monType string, detail any) types.Packet {
	return types.Packet{
		Type:      monType,
		Detail:    detail,
		Count:     detailCount(detail),
		IP:        e.ip,
		NodeID:    e.nodeID,
		TimeStamp: e.now().UTC().Format(time.RFC3339),
	}
}

// Encode serializes a packet and prepends the 2-byte big-endian length
// prefix. The prefix always equals the exact byte length of the body.
func (e *Encoder) Encode(pkt types.Packet) ([]byte, error) {
	body, err := json.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("marshal packet %q: %w", pkt.Type, err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("packet %q body is %d bytes, frame limit is %d", pkt.Type, len(body), MaxBodySize)
	}
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(frame[:HeaderSize], uint16(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// detailCount reports how many elements a detail carries: collection length,
// rune count for strings, zero for nil and one for anything else. A scalar
// detail must count as one rather than abort the task that produced it.
func detailCount(detail any) int {
	if detail == nil {
		return 0
	}
	v := reflect.ValueOf(detail)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len()
	case reflect.String:
		return utf8.RuneCountInString(v.String())
	case reflect.Pointer:
		if v.IsNil() {
			return 0
		}
		return detailCount(v.Elem().Interface())
	default:
		return 1
	}
}

// originIP resolves the host's primary address, falling back to loopback so
// packet construction never fails on a machine with broken name resolution.
func originIP() string {
	host, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	return addrs[0]
}
