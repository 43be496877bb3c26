package packet

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/zhangjoto/agent/pkg/types"
)

func testEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := NewEncoder(Config{NodeID: "node-7"}, Dependencies{
		Now: func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) },
		IP:  "192.0.2.10",
	})
	if err != nil {
		t.Fatalf("NewEncoder returned error: %v", err)
	}
	return enc
}

func TestNewEncoderRequiresNodeID(t *testing.T) {
	if _, err := NewEncoder(Config{}, Dependencies{}); err == nil {
		t.Fatalf("expected error for missing node ID")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	enc := testEncoder(t)

	pkt := enc.Packet("cpuCheck", map[string]any{"usage": 42.5, "cores": 8.0})
	frame, err := enc.Encode(pkt)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	prefix := int(binary.BigEndian.Uint16(frame[:HeaderSize]))
	if prefix != len(frame)-HeaderSize {
		t.Fatalf("prefix %d does not match body length %d", prefix, len(frame)-HeaderSize)
	}

	decoded, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadFrame returned error: %v", err)
	}
	if decoded.Type != "cpuCheck" || decoded.NodeID != "node-7" || decoded.IP != "192.0.2.10" {
		t.Fatalf("unexpected decoded packet: %+v", decoded)
	}
	if decoded.Count != 2 {
		t.Fatalf("unexpected count: %d", decoded.Count)
	}
	if decoded.TimeStamp != "2026-01-02T15:04:05Z" {
		t.Fatalf("unexpected timestamp: %s", decoded.TimeStamp)
	}
	detail, ok := decoded.Detail.(map[string]any)
	if !ok || detail["usage"] != 42.5 || detail["cores"] != 8.0 {
		t.Fatalf("unexpected decoded detail: %#v", decoded.Detail)
	}
}

func TestEncodeRejectsOversizeBody(t *testing.T) {
	enc := testEncoder(t)

	pkt := enc.Packet("bulk", strings.Repeat("x", MaxBodySize+1))
	if _, err := enc.Encode(pkt); err == nil {
		t.Fatalf("expected frame limit error")
	}
}

func TestEncodeRejectsUnserializableDetail(t *testing.T) {
	enc := testEncoder(t)

	pkt := enc.Packet("bad", map[string]any{"fn": func() {}})
	if _, err := enc.Encode(pkt); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestDetailCount(t *testing.T) {
	three := 3
	tests := []struct {
		detail any
		want   int
	}{
		{map[string]any{"a": 1, "b": 2}, 2},
		{[]int{1, 2, 3}, 3},
		{[2]string{"x", "y"}, 2},
		{"hello", 5},
		{"你好", 2},
		{"", 0},
		{nil, 0},
		{(*int)(nil), 0},
		{&three, 1},
		{42, 1},
		{3.14, 1},
		{true, 1},
		{types.ErrorDetail{Error: "boom"}, 1},
	}

	for _, tt := range tests {
		if got := detailCount(tt.detail); got != tt.want {
			t.Fatalf("detailCount(%#v) = %d want %d", tt.detail, got, tt.want)
		}
	}
}

func TestReadFrameShortInput(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte{0x00})); err == nil {
		t.Fatalf("expected header read error")
	}

	// Header promises more body bytes than the stream carries.
	if _, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x10, 'x'})); err == nil {
		t.Fatalf("expected body read error")
	}
}
