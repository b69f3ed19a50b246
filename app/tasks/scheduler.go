package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/dispatch"
	"github.com/mediahub/postpipe/app/ingest"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler enqueues ingestion and dispatch tasks on a fixed interval and
// executes them on a single worker. One worker is deliberate: the store has
// a single writer connection.
type Scheduler struct {
	pipeline   *ingest.Pipeline
	dispatcher *dispatch.Dispatcher
	channels   *config.File
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	taskQueue  chan TaskInterface
}

func NewScheduler(pipeline *ingest.Pipeline, dispatcher *dispatch.Dispatcher,
	channels *config.File, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pipeline:   pipeline,
		dispatcher: dispatcher,
		channels:   channels,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
		taskQueue:  make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

// Stop cancels the scheduler context and waits for the worker to drain.
// The queue channel is left open: a sleeping retry goroutine may still
// attempt an enqueue, which the cancelled context turns into an error.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	sources := s.channels.Sources()
	slog.Debug("Enqueueing scheduled tasks", "sources", len(sources))

	for _, source := range sources {
		task := NewIngestSourceTask(source, s.pipeline)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue IngestSourceTask", "source", source.URL, "error", err)
		}
	}

	if err := s.EnqueueTask(NewDispatchDueTask(s.dispatcher)); err != nil {
		slog.Warn("Failed to enqueue DispatchDueTask", "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	meta := task.Meta()
	meta.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(meta.Type), "id", meta.ID, "subject", meta.Subject, "retry_count", meta.RetryCount, "error", err)

	if !meta.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(meta.Type), "id", meta.ID, "retry_count", meta.RetryCount, "max_retries", meta.MaxRetries, "last_error", err)
		return
	}

	meta.RetryCount++
	retryDelay := time.Duration(1<<uint(meta.RetryCount-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(meta.Type), "subject", meta.Subject, "retry_count", meta.RetryCount, "max_retries", meta.MaxRetries, "delay", retryDelay.String())

	go func() {
		time.Sleep(retryDelay)
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(meta.Type), "id", meta.ID)
		default:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(meta.Type), "id", meta.ID, "error", retryErr)
			}
		}
	}()
}
