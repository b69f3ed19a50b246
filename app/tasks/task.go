package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type TaskType string

const (
	TaskTypeIngestSource TaskType = "ingest_source"
	TaskTypeDispatchDue  TaskType = "dispatch_due"
)

const DefaultMaxRetries = 3

// TaskInterface is implemented by every background task: the work itself
// plus access to the shared bookkeeping record.
type TaskInterface interface {
	Execute(ctx context.Context) error
	Meta() *Task
}

// Task is the bookkeeping embedded in every task type: identity, retry
// accounting and timing.
type Task struct {
	ID         string
	Type       TaskType
	Subject    string
	RetryCount int
	MaxRetries int
	startedAt  time.Time
}

func NewTask(taskType TaskType, subject string) Task {
	return Task{
		ID:         fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Intn(10000)),
		Type:       taskType,
		Subject:    subject,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) Meta() *Task { return t }

func (t *Task) CanRetry() bool { return t.RetryCount < t.MaxRetries }

func (t *Task) Start() { t.startedAt = time.Now() }

// Duration is the time elapsed since Start; zero for an unstarted task.
func (t *Task) Duration() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}
