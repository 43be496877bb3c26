// Package sysmon ships the builtin system monitors so a stock agent is
// useful without an external action module.
package sysmon

import (
	"github.com/zhangjoto/agent/pkg/plugin"
)

// Register adds every builtin monitor to reg under its conventional name.
func Register(reg *plugin.Registry) error {
	builtins := []struct {
		name   string
		action plugin.Action
	}{
		{"cpuCheck", CPUCheck},
		{"memCheck", MemCheck},
		{"diskCheck", DiskCheck},
		{"hostCheck", HostCheck},
		{"netCheck", NetCheck},
		{"tcpCheck", TCPCheck},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.action); err != nil {
			return err
		}
	}
	return nil
}

func argsMap(args any) map[string]any {
	m, _ := args.(map[string]any)
	return m
}

func boolArg(args any, key string, fallback bool) bool {
	if v, ok := argsMap(args)[key].(bool); ok {
		return v
	}
	return fallback
}

func stringArg(args any, key, fallback string) string {
	if v, ok := argsMap(args)[key].(string); ok {
		return v
	}
	return fallback
}

// floatArg tolerates both YAML integers and JSON floats.
func floatArg(args any, key string, fallback float64) float64 {
	switch v := argsMap(args)[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
