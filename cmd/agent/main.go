package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhangjoto/agent/internal/checkconf"
	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/internal/logging"
	"github.com/zhangjoto/agent/internal/packet"
	"github.com/zhangjoto/agent/internal/runtime"
	"github.com/zhangjoto/agent/internal/stats"
	"github.com/zhangjoto/agent/internal/transport"
	"github.com/zhangjoto/agent/internal/triggercli"
	"github.com/zhangjoto/agent/internal/waiter"
	"github.com/zhangjoto/agent/pkg/plugin"
	"github.com/zhangjoto/agent/pkg/plugin/sysmon"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "checkconf":
		err = checkconf.Run(ctx, os.Args[2:], checkconf.Dependencies{})
	case "trigger":
		err = triggercli.Run(ctx, os.Args[2:], triggercli.Dependencies{})
	case "version":
		fmt.Println(version)
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to agent configuration file (defaults to $AGENT_CONFIG or etc/agent.conf)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(ctx, *configPath)
	} else {
		cfg, err = config.LoadFromEnv(ctx)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New()

	reg := plugin.NewRegistry()
	if err := sysmon.Register(reg); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	st := stats.NewStore()

	enc, err := packet.NewEncoder(packet.Config{NodeID: cfg.NodeID}, packet.Dependencies{})
	if err != nil {
		return fmt.Errorf("init encoder: %w", err)
	}

	sender, err := newSender(cfg, logger, st)
	if err != nil {
		return err
	}

	var wait waiter.Waiter = waiter.Simple{}
	if cfg.Listen != "" {
		l, err := waiter.NewListener(waiter.Config{Addr: cfg.Listen}, waiter.Dependencies{Logger: logger})
		if err != nil {
			_ = sender.Close()
			return fmt.Errorf("init command listener: %w", err)
		}
		defer l.Close()
		logger.Printf("command listener on %s", l.Addr())
		wait = l
	}

	agent, err := runtime.New(cfg, runtime.Dependencies{
		Registry: reg,
		Encoder:  enc,
		Sender:   sender,
		Waiter:   wait,
		Logger:   logger,
		Stats:    st,
	})
	if err != nil {
		_ = sender.Close()
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSender picks the delivery strategy the configuration names. The
// datagram strategy resolves its endpoint here, so a bad address fails
// startup instead of the first send.
func newSender(cfg config.Config, logger *log.Logger, st *stats.Store) (transport.Sender, error) {
	tcfg := transport.Config{Addr: cfg.ServerInfo.Addr()}
	deps := transport.Dependencies{Logger: logger, Stats: st.SendRecorder()}

	switch cfg.ServerInfo.Protocol {
	case config.ProtocolOneShot:
		return transport.NewOneShotConnection(tcfg, deps)
	case config.ProtocolPersistent:
		return transport.NewPersistentConnection(tcfg, deps)
	case config.ProtocolDatagram:
		return transport.NewDatagram(tcfg, deps)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.ServerInfo.Protocol)
	}
}

func printUsage() {
	fmt.Println("Monitoring Agent CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  agent run [--config etc/agent.conf]")
	fmt.Println("  agent checkconf [--config etc/agent.conf]")
	fmt.Println("  agent trigger --cmd NAME [--detail TEXT] [--addr host:port | --config path]")
	fmt.Println("  agent version")
}
