// Package triggercli implements the trigger subcommand: send one command
// to a running agent's listener and print the acknowledgement.
package triggercli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/pkg/types"
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Out    io.Writer
	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Run sends {cmd, detail} to the agent's command listener and prints the
// response. A rejected command surfaces as an error so scripts can rely
// on the exit status.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Dialer == nil {
		dialer := &net.Dialer{}
		deps.Dialer = dialer.DialContext
	}

	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	addr := fs.String("addr", "", "Agent command listener address (host:port)")
	configPath := fs.String("config", config.DefaultConfigPath, "Config file to read the listener address from when --addr is not given")
	cmd := fs.String("cmd", "", "Command to send (a monType or \"update\")")
	detail := fs.String("detail", "", "Optional command detail")
	timeout := fs.Duration("timeout", 3*time.Second, "Connect and response timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cmd == "" {
		return fmt.Errorf("--cmd is required")
	}

	target := *addr
	if target == "" {
		cfg, err := config.Load(ctx, *configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Listen == "" {
			return fmt.Errorf("agent has no command listener configured; pass --addr")
		}
		target = cfg.Listen
	}

	command := types.Command{Cmd: *cmd}
	if *detail != "" {
		command.Detail = *detail
	}
	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	conn, err := deps.Dialer(dialCtx, "tcp", target)
	if err != nil {
		return fmt.Errorf("connect agent %s: %w", target, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(*timeout))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	var resp types.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.Detail != "" {
		fmt.Fprintf(deps.Out, "isOk=%t detail=%s\n", resp.IsOK, resp.Detail)
	} else {
		fmt.Fprintf(deps.Out, "isOk=%t\n", resp.IsOK)
	}
	if !resp.IsOK {
		return fmt.Errorf("agent rejected command %q: %s", *cmd, resp.Detail)
	}
	return nil
}
