package taskqueue

import "time"

// TaskState is the queue-reported lifecycle state of one task attempt.
type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateCompleted TaskState = "COMPLETED"
	// The queue's own infrastructure failed the task (e.g. the bot died).
	TaskStateInfraFailed TaskState = "FAILED_INFRA"
	// The task was never picked up before its expiration elapsed.
	TaskStateExpired TaskState = "EXPIRED"
	// The task was killed, either by an operator or by an i/o or execution
	// timeout enforced by the queue.
	TaskStateKilled TaskState = "KILLED"
)

// Terminal reports whether no further state transition can occur.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateInfraFailed, TaskStateExpired, TaskStateKilled:
		return true
	}
	return false
}

// Task is one unit of remotely-executed work as reported by the queue.
// Task objects are owned by the queue; callers only read them and never
// mutate state locally, a fresh query is the sole source of truth.
type Task struct {
	ID    string
	Name  string
	State TaskState
	// Failure is distinct from State: a COMPLETED task whose payload reported
	// failure carries Failure == true.
	Failure bool
	// BotID identifies the physical resource the task ran on. Empty while
	// the task is still pending.
	BotID    string
	ParentID string
	Tags     map[string]string
}

// TaskRequest describes a task to submit.
type TaskRequest struct {
	Name    string
	Command []string
	// Dimensions the assigned bot must match, e.g. board and pool labels.
	Dimensions map[string]string
	Tags       map[string]string
	// ParentID tags the task with the suite run that owns it, so that
	// QueryByParent finds it later.
	ParentID         string
	Priority         int
	ExecutionTimeout time.Duration
	IOTimeout        time.Duration
	// Expiration bounds how long the task may sit unassigned before the
	// queue reports it EXPIRED.
	Expiration time.Duration
}
