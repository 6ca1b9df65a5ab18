package taskqueue

import "context"

// Client is the interface to the external task-execution service. Submission
// and query failures surface as *fleeterrors.ErrInfra, never as a test
// failure; the two are handled by different layers.
type Client interface {
	// Submit enqueues a new task and returns the id assigned by the queue.
	Submit(ctx context.Context, req *TaskRequest) (string, error)
	// QueryByParent returns every task ever tagged with parentID, including
	// terminal attempts that have since been superseded by a retry.
	QueryByParent(ctx context.Context, parentID string) ([]*Task, error)
}
