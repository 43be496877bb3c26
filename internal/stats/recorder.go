package stats

// SendRecorder observes transport delivery outcomes.
type SendRecorder interface {
	IncPacketsSent()
	IncSendFailures()
	IncReconnects()
}

type NoopSendRecorder struct{}

func (NoopSendRecorder) IncPacketsSent()  {}
func (NoopSendRecorder) IncSendFailures() {}
func (NoopSendRecorder) IncReconnects()   {}

// TaskRecorder observes task executions and their failures.
type TaskRecorder interface {
	IncTasksRun()
	IncTaskErrors()
}

type NoopTaskRecorder struct{}

func (NoopTaskRecorder) IncTasksRun()   {}
func (NoopTaskRecorder) IncTaskErrors() {}

// CommandRecorder observes command-channel routing outcomes.
type CommandRecorder interface {
	IncCommandsAccepted()
	IncCommandsRejected()
}

type NoopCommandRecorder struct{}

func (NoopCommandRecorder) IncCommandsAccepted() {}
func (NoopCommandRecorder) IncCommandsRejected() {}
