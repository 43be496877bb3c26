package dispatch

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/zhangjoto/agent/internal/config"
	"github.com/zhangjoto/agent/internal/packet"
	"github.com/zhangjoto/agent/internal/stats"
	"github.com/zhangjoto/agent/pkg/plugin"
	"github.com/zhangjoto/agent/pkg/types"
)

type captureSender struct {
	frames [][]byte
}

func (s *captureSender) Send(ctx context.Context, frame []byte) {
	s.frames = append(s.frames, append([]byte(nil), frame...))
}

func (s *captureSender) Close() error { return nil }

type queuedEvent struct {
	delay    time.Duration
	priority int
	name     string
	fn       func(context.Context)
}

type captureEnqueuer struct {
	events []queuedEvent
}

func (e *captureEnqueuer) Schedule(delay time.Duration, priority int, name string, fn func(context.Context)) {
	e.events = append(e.events, queuedEvent{delay, priority, name, fn})
}

type fixture struct {
	dispatcher *Dispatcher
	sender     *captureSender
	enqueuer   *captureEnqueuer
	store      *stats.Store
	gotArgs    any
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sender:   &captureSender{},
		enqueuer: &captureEnqueuer{},
		store:    stats.NewStore(),
	}

	reg := plugin.NewRegistry()
	mustRegister(t, reg, "diskReport", func(_ context.Context, args any) (any, error) {
		f.gotArgs = args
		return map[string]any{"path": "/", "usedPercent": 42.5}, nil
	})
	mustRegister(t, reg, "alwaysFails", func(context.Context, any) (any, error) {
		return nil, errors.New("probe offline")
	})
	mustRegister(t, reg, "alwaysPanics", func(context.Context, any) (any, error) {
		panic("nil map write")
	})
	mustRegister(t, reg, "obeysCancel", func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"fine": true}, ctx.Err()
	})

	enc, err := packet.NewEncoder(packet.Config{NodeID: "edge-1"}, packet.Dependencies{
		Now: func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) },
		IP:  "192.0.2.10",
	})
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	items := []config.MonitorItem{
		{MonType: "disk", MonTrigger: "interval", TrigInterval: 30, ExecPriority: 3,
			ExecProgram: "diskReport", ExecArgs: map[string]any{"path": "/"}},
		{MonType: "flaky", MonTrigger: "interval", TrigInterval: 30, ExecPriority: 1,
			ExecProgram: "alwaysFails"},
		{MonType: "wild", MonTrigger: "interval", TrigInterval: 30, ExecPriority: 1,
			ExecProgram: "alwaysPanics"},
		{MonType: "polite", MonTrigger: "interval", TrigInterval: 30, ExecPriority: 1,
			ExecProgram: "obeysCancel"},
	}

	d, err := New(Config{Items: items}, Dependencies{
		Registry: reg,
		Encoder:  enc,
		Sender:   f.sender,
		Enqueue:  f.enqueuer,
		Tasks:    f.store.TaskRecorder(),
		Commands: f.store.CommandRecorder(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.dispatcher = d
	return f
}

func mustRegister(t *testing.T, reg *plugin.Registry, name string, action plugin.Action) {
	t.Helper()
	if err := reg.Register(name, action); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func decodeFrame(t *testing.T, frame []byte) types.Packet {
	t.Helper()
	pkt, err := packet.ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	return pkt
}

func TestExecuteSendsTaskResult(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Execute(context.Background(), "disk")

	if len(f.sender.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(f.sender.frames))
	}
	pkt := decodeFrame(t, f.sender.frames[0])
	if pkt.Type != "disk" || pkt.NodeID != "edge-1" || pkt.IP != "192.0.2.10" {
		t.Fatalf("unexpected packet identity: %+v", pkt)
	}
	if pkt.Count != 2 {
		t.Fatalf("expected count 2 for two detail fields, got %d", pkt.Count)
	}
	if pkt.TimeStamp != "2026-01-02T15:04:05Z" {
		t.Fatalf("unexpected timestamp %q", pkt.TimeStamp)
	}
	wantArgs := map[string]any{"path": "/"}
	if !reflect.DeepEqual(f.gotArgs, wantArgs) {
		t.Fatalf("action received args %v, want %v", f.gotArgs, wantArgs)
	}
	if snap := f.store.Snapshot(); snap.TasksRun != 1 || snap.TaskErrors != 0 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestExecuteConvertsErrorToPacket(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Execute(context.Background(), "flaky")

	if len(f.sender.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(f.sender.frames))
	}
	pkt := decodeFrame(t, f.sender.frames[0])
	detail, ok := pkt.Detail.(map[string]any)
	if !ok {
		t.Fatalf("expected error detail object, got %T", pkt.Detail)
	}
	if detail["error"] != "probe offline" {
		t.Fatalf("unexpected error detail: %v", detail)
	}
	if pkt.Count != 1 {
		t.Fatalf("expected count 1 for error detail, got %d", pkt.Count)
	}
	if snap := f.store.Snapshot(); snap.TasksRun != 1 || snap.TaskErrors != 1 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Execute(context.Background(), "wild")

	if len(f.sender.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(f.sender.frames))
	}
	pkt := decodeFrame(t, f.sender.frames[0])
	detail, ok := pkt.Detail.(map[string]any)
	if !ok {
		t.Fatalf("expected error detail object, got %T", pkt.Detail)
	}
	msg, _ := detail["error"].(string)
	if !strings.Contains(msg, "task panicked") || !strings.Contains(msg, "nil map write") {
		t.Fatalf("unexpected panic detail: %q", msg)
	}

	// The dispatcher keeps working after a panicking task.
	f.dispatcher.Execute(context.Background(), "disk")
	if len(f.sender.frames) != 2 {
		t.Fatalf("expected dispatcher to survive the panic, frames=%d", len(f.sender.frames))
	}
}

func TestExecuteSkipsSendDuringShutdown(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.dispatcher.Execute(ctx, "disk")

	if len(f.sender.frames) != 0 {
		t.Fatalf("expected no frames after shutdown, got %d", len(f.sender.frames))
	}
}

func TestExecuteCancellationIsNotATaskError(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.dispatcher.Execute(ctx, "polite")

	if len(f.sender.frames) != 0 {
		t.Fatalf("expected no frames for cancelled run, got %d", len(f.sender.frames))
	}
	if snap := f.store.Snapshot(); snap.TasksRun != 1 || snap.TaskErrors != 0 {
		t.Fatalf("cancellation must not count as a task error: %s", snap)
	}
}

func TestExecuteIgnoresUnknownTask(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Execute(context.Background(), "nosuch")

	if len(f.sender.frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(f.sender.frames))
	}
	if snap := f.store.Snapshot(); snap.TasksRun != 0 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestHandleCommandUpdate(t *testing.T) {
	f := newFixture(t)

	ok, detail := f.dispatcher.HandleCommand(context.Background(), types.Command{Cmd: types.CommandUpdate})
	if !ok || detail == "" {
		t.Fatalf("update should succeed, got ok=%v detail=%q", ok, detail)
	}
	if len(f.enqueuer.events) != 0 {
		t.Fatalf("update must not queue work, got %d events", len(f.enqueuer.events))
	}
	if snap := f.store.Snapshot(); snap.CommandsAccepted != 1 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestHandleCommandQueuesKnownMonitor(t *testing.T) {
	f := newFixture(t)

	ok, detail := f.dispatcher.HandleCommand(context.Background(), types.Command{Cmd: "disk"})
	if !ok {
		t.Fatalf("known monitor should be accepted, got detail=%q", detail)
	}
	if len(f.enqueuer.events) != 1 {
		t.Fatalf("expected one queued event, got %d", len(f.enqueuer.events))
	}
	ev := f.enqueuer.events[0]
	if ev.delay != 0 || ev.priority != 3 || ev.name != "disk" {
		t.Fatalf("unexpected event: delay=%s priority=%d name=%q", ev.delay, ev.priority, ev.name)
	}

	// Running the queued closure performs the one-shot send.
	ev.fn(context.Background())
	if len(f.sender.frames) != 1 {
		t.Fatalf("expected queued run to send a frame, got %d", len(f.sender.frames))
	}
	if pkt := decodeFrame(t, f.sender.frames[0]); pkt.Type != "disk" {
		t.Fatalf("unexpected packet type %q", pkt.Type)
	}
	if snap := f.store.Snapshot(); snap.CommandsAccepted != 1 || snap.CommandsRejected != 0 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestHandleCommandRejectsUnknown(t *testing.T) {
	f := newFixture(t)

	ok, detail := f.dispatcher.HandleCommand(context.Background(), types.Command{Cmd: "reboot"})
	if ok {
		t.Fatalf("unknown command must be rejected")
	}
	if !strings.Contains(detail, `unknown command "reboot"`) {
		t.Fatalf("unexpected detail %q", detail)
	}
	if len(f.enqueuer.events) != 0 {
		t.Fatalf("rejected command must not queue work")
	}
	if snap := f.store.Snapshot(); snap.CommandsRejected != 1 || snap.CommandsAccepted != 0 {
		t.Fatalf("unexpected counters: %s", snap)
	}
}

func TestNewRejectsUnknownProgram(t *testing.T) {
	reg := plugin.NewRegistry()
	enc, err := packet.NewEncoder(packet.Config{NodeID: "edge-1"}, packet.Dependencies{IP: "192.0.2.10"})
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	_, err = New(Config{Items: []config.MonitorItem{
		{MonType: "disk", ExecProgram: "nosuch"},
	}}, Dependencies{
		Registry: reg,
		Encoder:  enc,
		Sender:   &captureSender{},
		Enqueue:  &captureEnqueuer{},
	})
	if err == nil || !strings.Contains(err.Error(), `unknown program "nosuch"`) {
		t.Fatalf("expected unknown program error, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	reg := plugin.NewRegistry()
	enc, err := packet.NewEncoder(packet.Config{NodeID: "edge-1"}, packet.Dependencies{IP: "192.0.2.10"})
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	full := Dependencies{
		Registry: reg,
		Encoder:  enc,
		Sender:   &captureSender{},
		Enqueue:  &captureEnqueuer{},
	}

	cases := []struct {
		name string
		mut  func(*Dependencies)
	}{
		{"registry", func(d *Dependencies) { d.Registry = nil }},
		{"encoder", func(d *Dependencies) { d.Encoder = nil }},
		{"sender", func(d *Dependencies) { d.Sender = nil }},
		{"enqueuer", func(d *Dependencies) { d.Enqueue = nil }},
	}
	for _, tc := range cases {
		deps := full
		tc.mut(&deps)
		if _, err := New(Config{}, deps); err == nil {
			t.Fatalf("expected error when %s is missing", tc.name)
		}
	}
}
