package stats

import (
	"fmt"
	"sync/atomic"
)

// Store maintains in-memory counters for one agent run.
type Store struct {
	tasksRun         atomic.Uint64
	taskErrors       atomic.Uint64
	packetsSent      atomic.Uint64
	sendFailures     atomic.Uint64
	reconnects       atomic.Uint64
	commandsAccepted atomic.Uint64
	commandsRejected atomic.Uint64
}

// NewStore constructs a Store with zeroed counters.
func NewStore() *Store {
	return &Store{}
}

// Snapshot captures the current counter values in a plain struct.
type Snapshot struct {
	TasksRun         uint64
	TaskErrors       uint64
	PacketsSent      uint64
	SendFailures     uint64
	Reconnects       uint64
	CommandsAccepted uint64
	CommandsRejected uint64
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		TasksRun:         s.tasksRun.Load(),
		TaskErrors:       s.taskErrors.Load(),
		PacketsSent:      s.packetsSent.Load(),
		SendFailures:     s.sendFailures.Load(),
		Reconnects:       s.reconnects.Load(),
		CommandsAccepted: s.commandsAccepted.Load(),
		CommandsRejected: s.commandsRejected.Load(),
	}
}

// String renders the snapshot as a single log-friendly line.
func (s Snapshot) String() string {
	return fmt.Sprintf("tasks=%d task_errors=%d sent=%d send_failures=%d reconnects=%d commands_accepted=%d commands_rejected=%d",
		s.TasksRun, s.TaskErrors, s.PacketsSent, s.SendFailures, s.Reconnects, s.CommandsAccepted, s.CommandsRejected)
}

// SendRecorder returns an implementation of SendRecorder backed by the store.
func (s *Store) SendRecorder() SendRecorder {
	return sendRecorder{store: s}
}

// TaskRecorder returns an implementation of TaskRecorder backed by the store.
func (s *Store) TaskRecorder() TaskRecorder {
	return taskRecorder{store: s}
}

// CommandRecorder returns an implementation of CommandRecorder backed by the store.
func (s *Store) CommandRecorder() CommandRecorder {
	return commandRecorder{store: s}
}

type sendRecorder struct {
	store *Store
}

func (r sendRecorder) IncPacketsSent()  { r.store.packetsSent.Add(1) }
func (r sendRecorder) IncSendFailures() { r.store.sendFailures.Add(1) }
func (r sendRecorder) IncReconnects()   { r.store.reconnects.Add(1) }

type taskRecorder struct {
	store *Store
}

func (r taskRecorder) IncTasksRun()   { r.store.tasksRun.Add(1) }
func (r taskRecorder) IncTaskErrors() { r.store.taskErrors.Add(1) }

type commandRecorder struct {
	store *Store
}

func (r commandRecorder) IncCommandsAccepted() { r.store.commandsAccepted.Add(1) }
func (r commandRecorder) IncCommandsRejected() { r.store.commandsRejected.Add(1) }
