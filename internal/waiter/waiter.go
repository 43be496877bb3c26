// Package waiter provides the scheduler's suspension point: either a plain
// sleep or a sleep that doubles as the command-accept window.
package waiter

import (
	"context"
	"time"

	"github.com/zhangjoto/agent/pkg/types"
)

// Waiter suspends the caller for up to timeout and returns a command if one
// arrived meanwhile. A nil command means the window elapsed; callers cannot
// distinguish a quiet window from a failed one, by contract.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) *types.Command
}

// Responder is the optional capability of replying to the connection that
// delivered the most recent command. The scheduler discovers it through a
// type assertion on its Waiter.
type Responder interface {
	Respond(ok bool, detail string)
}

// Simple waits out the full window and never produces a command.
type Simple struct{}

var _ Waiter = Simple{}

func (Simple) Wait(ctx context.Context, timeout time.Duration) *types.Command {
	sleep(ctx, timeout)
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
