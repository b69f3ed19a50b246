package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/ingest"
)

// IngestSourceTask pulls one feed source through the ingestion pipeline.
type IngestSourceTask struct {
	Task
	Source   config.FeedSource
	pipeline *ingest.Pipeline
}

func NewIngestSourceTask(source config.FeedSource, pipeline *ingest.Pipeline) *IngestSourceTask {
	return &IngestSourceTask{
		Task:     NewTask(TaskTypeIngestSource, source.URL),
		Source:   source,
		pipeline: pipeline,
	}
}

func (t *IngestSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := t.pipeline.RunSource(ctx, t.Source)
	if err != nil {
		return fmt.Errorf("failed to ingest source: %w", err)
	}

	slog.Info("Task completed",
		"type", "IngestSource",
		"source", t.Source.URL,
		"duration", t.Duration(),
		"new", report.NewItems,
		"classified", report.Classified,
		"skipped", report.Skipped,
		"drafted", report.Drafted)

	return nil
}
