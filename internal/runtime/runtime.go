// Package runtime assembles the configured agent and drives its lifecycle.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/internal/dispatch"
	"github.com/zhangjoto/agent/internal/packet"
	"github.com/zhangjoto/agent/internal/scheduler"
	"github.com/zhangjoto/agent/internal/stats"
	"github.com/zhangjoto/agent/internal/transport"
	"github.com/zhangjoto/agent/internal/waiter"
	"github.com/zhangjoto/agent/pkg/plugin"
)

// Dependencies wires the agent's collaborators. Registry, Encoder and
// Sender are required; the rest default to production implementations.
type Dependencies struct {
	Registry *plugin.Registry
	Encoder  *packet.Encoder
	Sender   transport.Sender
	Waiter   waiter.Waiter
	Logger   *log.Logger
	Stats    *stats.Store
	Now      func() time.Time
	NewRunID func() string
}

// Agent drives the scheduler loop over the configured monitor items.
type Agent struct {
	cfg    config.Config
	sched  *scheduler.Scheduler
	disp   *dispatch.Dispatcher
	sender transport.Sender
	logger *log.Logger
	store  *stats.Store
	now    func() time.Time
	runID  string
}

// New validates the configuration, resolves every monitor item against the
// registry and queues the first occurrence of each task. Any configuration
// problem fails construction; a constructed Agent cannot refuse to run.
func New(cfg config.Config, deps Dependencies) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if deps.Waiter == nil {
		deps.Waiter = waiter.Simple{}
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Stats == nil {
		deps.Stats = stats.NewStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}

	sched := scheduler.New(deps.Waiter,
		scheduler.WithNow(deps.Now),
		scheduler.WithLogger(deps.Logger),
	)
	disp, err := dispatch.New(dispatch.Config{Items: cfg.MonitorItems}, dispatch.Dependencies{
		Registry: deps.Registry,
		Encoder:  deps.Encoder,
		Sender:   deps.Sender,
		Enqueue:  sched,
		Logger:   deps.Logger,
		Tasks:    deps.Stats.TaskRecorder(),
		Commands: deps.Stats.CommandRecorder(),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve monitor items: %w", err)
	}

	a := &Agent{
		cfg:    cfg,
		sched:  sched,
		disp:   disp,
		sender: deps.Sender,
		logger: deps.Logger,
		store:  deps.Stats,
		now:    deps.Now,
		runID:  deps.NewRunID(),
	}
	if err := a.registerTasks(); err != nil {
		return nil, err
	}
	return a, nil
}

// registerTasks queues the first occurrence of every monitor item. Each
// firing re-registers the next occurrence before executing, so a task
// survives its own failures.
func (a *Agent) registerTasks() error {
	for _, item := range a.cfg.MonitorItems {
		item := item
		switch item.MonTrigger {
		case config.TriggerInterval:
			var run func(context.Context)
			run = func(ctx context.Context) {
				a.sched.Schedule(item.Interval(), item.ExecPriority, item.MonType, run)
				a.disp.Execute(ctx, item.MonType)
			}
			a.sched.Schedule(item.Interval(), item.ExecPriority, item.MonType, run)
		case config.TriggerDaily:
			clock, err := config.ParseClockTime(item.TrigTime)
			if err != nil {
				return fmt.Errorf("monitor %q: %w", item.MonType, err)
			}
			var run func(context.Context)
			run = func(ctx context.Context) {
				a.sched.ScheduleAt(clock.Next(a.now()), item.ExecPriority, item.MonType, run)
				a.disp.Execute(ctx, item.MonType)
			}
			a.sched.ScheduleAt(clock.Next(a.now()), item.ExecPriority, item.MonType, run)
		default:
			return fmt.Errorf("monitor %q: monTrigger %q unknown", item.MonType, item.MonTrigger)
		}
	}
	return nil
}

// Run drives the scheduler loop until ctx is cancelled, then closes the
// sender and logs a counter summary. The returned error is the context's.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Printf("agent %s starting (node=%s, collector=%s, protocol=%s, tasks=%d)",
		a.runID, a.cfg.NodeID, a.cfg.ServerInfo.Addr(), a.cfg.ServerInfo.Protocol, len(a.cfg.MonitorItems))

	if c, ok := a.sender.(transport.Connector); ok {
		c.Connect(ctx)
	}

	err := a.sched.Run(ctx, a.disp)

	if cerr := a.sender.Close(); cerr != nil {
		a.logger.Printf("close sender: %v", cerr)
	}
	a.logger.Printf("agent %s stopped (%s)", a.runID, a.store.Snapshot())
	return err
}
