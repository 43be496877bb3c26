package config

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath = "AGENT_CONFIG"

	// DefaultConfigPath is resolved relative to the working directory so a
	// self-contained deployment (binary plus etc/) needs no flags. The file
	// may be YAML or JSON.
	DefaultConfigPath = "etc/agent.conf"
)

// Transport protocol names accepted in serverInfo.protocol.
const (
	ProtocolOneShot    = "oneshot"
	ProtocolPersistent = "persistent"
	ProtocolDatagram   = "datagram"
)

// Trigger kinds accepted in monTrigger.
const (
	TriggerInterval = "interval"
	TriggerDaily    = "daily"
)

type Config struct {
	NodeID       string        `yaml:"nodeId"`
	ServerInfo   ServerInfo    `yaml:"serverInfo"`
	Listen       string        `yaml:"listen"`
	MonitorItems []MonitorItem `yaml:"monitorItems"`
}

type ServerInfo struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
}

// Addr returns the collector endpoint in host:port form.
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

type MonitorItem struct {
	MonType      string  `yaml:"monType"`
	MonTrigger   string  `yaml:"monTrigger"`
	TrigInterval float64 `yaml:"trigInterval"`
	TrigTime     string  `yaml:"trigTime"`
	ExecPriority int     `yaml:"execPriority"`
	ExecProgram  string  `yaml:"execProgram"`
	ExecArgs     any     `yaml:"execArgs"`
}

// Interval returns the trigger interval as a duration. Only meaningful when
// MonTrigger is TriggerInterval.
func (m MonitorItem) Interval() time.Duration {
	return time.Duration(m.TrigInterval * float64(time.Second))
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

// Validate checks everything the agent needs before it starts. It returns
// the first problem found; a config that passes never fails task or
// transport construction later for configuration reasons.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("nodeId is required")
	}
	if c.ServerInfo.Address == "" {
		return fmt.Errorf("serverInfo.address is required")
	}
	if c.ServerInfo.Port <= 0 || c.ServerInfo.Port > 65535 {
		return fmt.Errorf("serverInfo.port %d out of range", c.ServerInfo.Port)
	}
	switch c.ServerInfo.Protocol {
	case ProtocolOneShot, ProtocolPersistent, ProtocolDatagram:
	default:
		return fmt.Errorf("serverInfo.protocol %q unknown (want oneshot, persistent or datagram)", c.ServerInfo.Protocol)
	}
	if c.Listen != "" {
		if _, portStr, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("listen address %q: %w", c.Listen, err)
		} else if p, err := strconv.Atoi(portStr); err != nil || p < 0 || p > 65535 {
			return fmt.Errorf("listen address %q: invalid port %q", c.Listen, portStr)
		}
	}

	seen := make(map[string]struct{}, len(c.MonitorItems))
	for i, item := range c.MonitorItems {
		if item.MonType == "" {
			return fmt.Errorf("monitorItems[%d]: monType is required", i)
		}
		if _, dup := seen[item.MonType]; dup {
			return fmt.Errorf("monitorItems[%d]: duplicate monType %q", i, item.MonType)
		}
		seen[item.MonType] = struct{}{}

		switch item.MonTrigger {
		case TriggerInterval:
			if item.TrigInterval <= 0 {
				return fmt.Errorf("monitorItems[%d] %q: trigInterval must be positive", i, item.MonType)
			}
		case TriggerDaily:
			if _, err := ParseClockTime(item.TrigTime); err != nil {
				return fmt.Errorf("monitorItems[%d] %q: %w", i, item.MonType, err)
			}
		default:
			return fmt.Errorf("monitorItems[%d] %q: monTrigger %q unknown (want interval or daily)", i, item.MonType, item.MonTrigger)
		}

		if item.ExecPriority < 0 {
			return fmt.Errorf("monitorItems[%d] %q: execPriority must not be negative", i, item.MonType)
		}
		if item.ExecProgram == "" {
			return fmt.Errorf("monitorItems[%d] %q: execProgram is required", i, item.MonType)
		}
	}
	return nil
}
