package sysmon

import (
	"context"
	"fmt"
	"net"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// NetCheck reports interface IO counters, aggregated unless perNic is set.
// Args: perNic (bool, default false).
func NetCheck(ctx context.Context, args any) (any, error) {
	perNic := boolArg(args, "perNic", false)

	counters, err := psnet.IOCountersWithContext(ctx, perNic)
	if err != nil {
		return nil, fmt.Errorf("read net io counters: %w", err)
	}
	if !perNic {
		if len(counters) == 0 {
			return nil, fmt.Errorf("no aggregate net io counters")
		}
		return nicDetail(counters[0]), nil
	}
	detail := make(map[string]any, len(counters))
	for _, c := range counters {
		detail[c.Name] = nicDetail(c)
	}
	return detail, nil
}

func nicDetail(c psnet.IOCountersStat) map[string]any {
	return map[string]any{
		"bytesSent":   c.BytesSent,
		"bytesRecv":   c.BytesRecv,
		"packetsSent": c.PacketsSent,
		"packetsRecv": c.PacketsRecv,
		"errIn":       c.Errin,
		"errOut":      c.Errout,
	}
}

// TCPCheck probes TCP reachability of a remote endpoint. An unreachable
// endpoint is a successful probe with reachable=false, not a task failure.
// Args: addr (string, required), timeoutSec (number, default 3).
func TCPCheck(ctx context.Context, args any) (any, error) {
	addr := stringArg(args, "addr", "")
	if addr == "" {
		return nil, fmt.Errorf("tcpCheck requires an addr argument")
	}
	timeout := time.Duration(floatArg(args, "timeoutSec", 3) * float64(time.Second))

	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	latency := time.Since(start)

	detail := map[string]any{
		"addr":      addr,
		"reachable": err == nil,
		"latencyMs": float64(latency.Microseconds()) / 1000.0,
	}
	if err != nil {
		detail["dialError"] = err.Error()
	} else {
		conn.Close()
	}
	return detail, nil
}
