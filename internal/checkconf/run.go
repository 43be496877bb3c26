// Package checkconf implements the checkconf subcommand: load a
// configuration file, validate it and report what the agent would run.
package checkconf

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/pkg/plugin"
	"github.com/zhangjoto/agent/pkg/plugin/sysmon"
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Out      io.Writer
	Registry *plugin.Registry
}

// Run loads and validates the configuration and resolves every monitor
// item against the built-in programs. A non-nil error means the agent
// would refuse to start with this file.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Registry == nil {
		reg := plugin.NewRegistry()
		if err := sysmon.Register(reg); err != nil {
			return fmt.Errorf("register builtins: %w", err)
		}
		deps.Registry = reg
	}

	fs := flag.NewFlagSet("checkconf", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to agent configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %q: %w", *configPath, err)
	}
	for _, item := range cfg.MonitorItems {
		if _, ok := deps.Registry.Lookup(item.ExecProgram); !ok {
			return fmt.Errorf("monitor %q: unknown program %q (have %s)",
				item.MonType, item.ExecProgram, strings.Join(deps.Registry.Names(), ", "))
		}
	}

	fmt.Fprintf(deps.Out, "config %s: ok\n", *configPath)
	fmt.Fprintf(deps.Out, "node %s reports to %s over %s\n", cfg.NodeID, cfg.ServerInfo.Addr(), cfg.ServerInfo.Protocol)
	if cfg.Listen != "" {
		fmt.Fprintf(deps.Out, "command listener on %s\n", cfg.Listen)
	} else {
		fmt.Fprintln(deps.Out, "command listener disabled")
	}

	tw := tabwriter.NewWriter(deps.Out, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "MONTYPE\tTRIGGER\tPRIORITY\tPROGRAM")
	for _, item := range cfg.MonitorItems {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", item.MonType, describeTrigger(item), item.ExecPriority, item.ExecProgram)
	}
	return tw.Flush()
}

func describeTrigger(item config.MonitorItem) string {
	if item.MonTrigger == config.TriggerDaily {
		return "daily at " + item.TrigTime
	}
	return "every " + item.Interval().String()
}
