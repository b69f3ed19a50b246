package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediahub/postpipe/app/dispatch"
)

// DispatchDueTask drains approved posts whose schedule has elapsed into
// the outbound transport.
type DispatchDueTask struct {
	Task
	dispatcher *dispatch.Dispatcher
}

func NewDispatchDueTask(dispatcher *dispatch.Dispatcher) *DispatchDueTask {
	return &DispatchDueTask{
		Task:       NewTask(TaskTypeDispatchDue, "due_posts"),
		dispatcher: dispatcher,
	}
}

func (t *DispatchDueTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := t.dispatcher.RunDue(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to dispatch due posts: %w", err)
	}

	if report.Due > 0 {
		slog.Info("Task completed",
			"type", "DispatchDue",
			"duration", t.Duration(),
			"due", report.Due,
			"posted", report.Posted,
			"failed", report.Failed)
	}

	return nil
}
