// Package scheduler runs the agent's cooperative loop: due tasks fire in
// (due time, priority) order and idle time is spent in the wait window.
package scheduler

import (
	"container/heap"
	"context"
	"io"
	"log"
	"time"

	"github.com/zhangjoto/agent/internal/waiter"
	"github.com/zhangjoto/agent/pkg/types"
)

// defaultIdleWindow is how long one wait lasts when nothing is pending.
const defaultIdleWindow = 30 * time.Second

// CommandHandler reacts to one command and reports the acknowledgement the
// sender should receive.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd types.Command) (ok bool, detail string)
}

type event struct {
	due      time.Time
	priority int
	seq      uint64
	name     string
	run      func(context.Context)
}

// Scheduler owns the pending-event set. Everything runs on the goroutine
// that calls Run; there is deliberately no locking here, the wait call is
// the loop's only suspension point.
type Scheduler struct {
	wait       waiter.Waiter
	responder  waiter.Responder
	now        func() time.Time
	idleWindow time.Duration
	logger     *log.Logger
	pending    eventHeap
	seq        uint64
}

type Option func(*Scheduler)

// WithNow replaces the clock, so tests can drive time explicitly.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdleWindow customises the wait length used when no event is pending.
func WithIdleWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleWindow = d
		}
	}
}

// WithLogger installs a logger for task firings.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Scheduler around the given wait strategy. A nil wait gets
// the plain sleep; a wait that can also respond is detected here and used
// to acknowledge every routed command.
func New(wait waiter.Waiter, opts ...Option) *Scheduler {
	s := &Scheduler{
		wait:       wait,
		now:        time.Now,
		idleWindow: defaultIdleWindow,
		logger:     log.New(io.Discard, "", 0),
	}
	if s.wait == nil {
		s.wait = waiter.Simple{}
	}
	if r, ok := s.wait.(waiter.Responder); ok {
		s.responder = r
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues fn to run once, delay from now. Among events due at the
// same instant the lower priority value fires first, then insertion order.
func (s *Scheduler) Schedule(delay time.Duration, priority int, name string, fn func(context.Context)) {
	s.ScheduleAt(s.now().Add(delay), priority, name, fn)
}

// ScheduleAt queues fn to run once at due.
func (s *Scheduler) ScheduleAt(due time.Time, priority int, name string, fn func(context.Context)) {
	s.seq++
	heap.Push(&s.pending, &event{
		due:      due,
		priority: priority,
		seq:      s.seq,
		name:     name,
		run:      fn,
	})
}

// Pending reports how many events are queued.
func (s *Scheduler) Pending() int {
	return len(s.pending)
}

// Run drives the loop until ctx is cancelled: pop and execute whatever is
// due, otherwise wait out the gap to the next event (or the idle window)
// and route any command that arrives to the handler. Exactly one response
// is issued per routed command when the wait strategy can respond.
func (s *Scheduler) Run(ctx context.Context, commands CommandHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now()
		if next := s.peek(); next != nil && !next.due.After(now) {
			ev := heap.Pop(&s.pending).(*event)
			s.logger.Printf("task %s fired (pending=%d)", ev.name, len(s.pending))
			ev.run(ctx)
			continue
		}

		window := s.idleWindow
		if next := s.peek(); next != nil {
			window = next.due.Sub(now)
		}

		if cmd := s.wait.Wait(ctx, window); cmd != nil {
			s.route(ctx, commands, *cmd)
		}
	}
}

func (s *Scheduler) route(ctx context.Context, commands CommandHandler, cmd types.Command) {
	if commands == nil {
		if s.responder != nil {
			s.responder.Respond(false, "no command handler")
		}
		return
	}
	ok, detail := commands.HandleCommand(ctx, cmd)
	if s.responder != nil {
		s.responder.Respond(ok, detail)
	}
}

func (s *Scheduler) peek() *event {
	if len(s.pending) == 0 {
		return nil
	}
	return s.pending[0]
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.due.Equal(b.due) {
		return a.due.Before(b.due)
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
