package tasks

// TaskSchedulerInterface defines the interface for background task
// scheduling. Used by serve mode to run ingestion and dispatch on an
// interval without blocking the HTTP server.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
