package packet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/zhangjoto/agent/pkg/types"
)

// ReadFrame reads one length-prefixed packet from r. Collector-side tooling
// and tests share it; the agent itself only writes frames.
func ReadFrame(r io.Reader) (types.Packet, error) {
	var pkt types.Packet

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return pkt, fmt.Errorf("read frame header: %w", err)
	}
	body := make([]byte, binary.BigEndian.Uint16(header))
	if _, err := io.ReadFull(r, body); err != nil {
		return pkt, fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(body, &pkt); err != nil {
		return pkt, fmt.Errorf("parse frame body: %w", err)
	}
	return pkt, nil
}
