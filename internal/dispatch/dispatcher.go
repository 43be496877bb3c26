// Package dispatch binds configured monitor items to registry actions and
// turns their results into framed packets on the wire.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/internal/packet"
	"github.com/zhangjoto/agent/internal/stats"
	"github.com/zhangjoto/agent/internal/transport"
	"github.com/zhangjoto/agent/pkg/plugin"
	"github.com/zhangjoto/agent/pkg/types"
)

// Enqueuer queues a one-shot event on the agent's schedule. Satisfied by
// the scheduler.
type Enqueuer interface {
	Schedule(delay time.Duration, priority int, name string, fn func(context.Context))
}

type task struct {
	item   config.MonitorItem
	action plugin.Action
}

// Dispatcher executes monitor tasks and answers remote commands. A task
// that fails or panics produces an error packet instead of taking the
// agent down.
type Dispatcher struct {
	tasks   map[string]task
	encoder *packet.Encoder
	sender  transport.Sender
	enqueue Enqueuer
	logger  *log.Logger
	taskRec stats.TaskRecorder
	cmdRec  stats.CommandRecorder
}

// Config carries the monitor items the dispatcher serves.
type Config struct {
	Items []config.MonitorItem
}

// Dependencies wires the dispatcher to the rest of the agent.
type Dependencies struct {
	Registry *plugin.Registry
	Encoder  *packet.Encoder
	Sender   transport.Sender
	Enqueue  Enqueuer
	Logger   *log.Logger
	Tasks    stats.TaskRecorder
	Commands stats.CommandRecorder
}

// New resolves every monitor item's program against the registry. An item
// naming an unknown program is a configuration error and fails construction
// rather than surfacing later as a dead schedule entry.
func New(cfg Config, deps Dependencies) (*Dispatcher, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if deps.Enqueue == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Tasks == nil {
		deps.Tasks = stats.NoopTaskRecorder{}
	}
	if deps.Commands == nil {
		deps.Commands = stats.NoopCommandRecorder{}
	}

	tasks := make(map[string]task, len(cfg.Items))
	for _, item := range cfg.Items {
		action, ok := deps.Registry.Lookup(item.ExecProgram)
		if !ok {
			return nil, fmt.Errorf("monitor %q: unknown program %q (have %s)",
				item.MonType, item.ExecProgram, strings.Join(deps.Registry.Names(), ", "))
		}
		tasks[item.MonType] = task{item: item, action: action}
	}

	return &Dispatcher{
		tasks:   tasks,
		encoder: deps.Encoder,
		sender:  deps.Sender,
		enqueue: deps.Enqueue,
		logger:  deps.Logger,
		taskRec: deps.Tasks,
		cmdRec:  deps.Commands,
	}, nil
}

// Execute runs the named monitor task and ships its result. Action errors
// and panics become error packets; only a shutdown in progress suppresses
// the send.
func (d *Dispatcher) Execute(ctx context.Context, monType string) {
	t, ok := d.tasks[monType]
	if !ok {
		d.logger.Printf("no task registered for %q", monType)
		return
	}

	d.taskRec.IncTasksRun()
	detail, err := d.runAction(ctx, t)
	if err != nil || ctx.Err() != nil {
		return
	}

	frame, err := d.encoder.Encode(d.encoder.Packet(monType, detail))
	if err != nil {
		d.taskRec.IncTaskErrors()
		d.logger.Printf("encode %s packet: %v", monType, err)
		return
	}
	d.sender.Send(ctx, frame)
}

// runAction invokes the task's action and absorbs its failures. Only
// cancellation comes back as an error; everything else, panics included,
// becomes an error detail for the wire.
func (d *Dispatcher) runAction(ctx context.Context, t task) (detail any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.taskRec.IncTaskErrors()
			d.logger.Printf("task %s panicked: %v", t.item.MonType, r)
			detail, err = types.ErrorDetail{Error: fmt.Sprintf("task panicked: %v", r)}, nil
		}
	}()

	out, actErr := t.action(ctx, t.item.ExecArgs)
	if actErr != nil {
		if errors.Is(actErr, context.Canceled) {
			return nil, actErr
		}
		d.taskRec.IncTaskErrors()
		d.logger.Printf("task %s failed: %v", t.item.MonType, actErr)
		return types.ErrorDetail{Error: actErr.Error()}, nil
	}
	return out, nil
}

// HandleCommand answers one remote command. An update is acknowledged
// without action, a known monitor type queues an immediate one-shot run,
// and anything else is rejected.
func (d *Dispatcher) HandleCommand(ctx context.Context, cmd types.Command) (bool, string) {
	if cmd.Cmd == types.CommandUpdate {
		d.cmdRec.IncCommandsAccepted()
		d.logger.Printf("update command acknowledged, config reload is not supported")
		return true, "update acknowledged"
	}

	t, ok := d.tasks[cmd.Cmd]
	if !ok {
		d.cmdRec.IncCommandsRejected()
		d.logger.Printf("command %q rejected: no matching monitor", cmd.Cmd)
		return false, fmt.Sprintf("unknown command %q", cmd.Cmd)
	}

	monType := t.item.MonType
	d.enqueue.Schedule(0, t.item.ExecPriority, monType, func(ctx context.Context) {
		d.Execute(ctx, monType)
	})
	d.cmdRec.IncCommandsAccepted()
	d.logger.Printf("command %q accepted, one-shot run queued", cmd.Cmd)
	return true, "task queued"
}
