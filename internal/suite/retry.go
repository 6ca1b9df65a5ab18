package suite

import "github.com/labfleet/labfleet/internal/taskqueue"

// ShouldRetry decides whether a task attempt should be resubmitted. It is a
// pure function: budgets are only decremented by the orchestrator after it
// returns true.
//
// All of the following must hold:
//   - retries are enabled for this run;
//   - the attempt ended unsuccessfully (completed with a payload failure, or
//     in one of the infra-terminal states);
//   - the id is still the active attempt of some record, so a superseded id
//     seen again in a later query cannot trigger a second retry;
//   - the record has per-test retries left;
//   - the shared suite-level budget is not exhausted.
func ShouldRetry(task *taskqueue.Task, record *RetryRecord, run *SuiteRun) bool {
	if !run.RetriesEnabled {
		return false
	}
	if !unsuccessfulTerminal(task) {
		return false
	}
	if record == nil || record.TaskID != task.ID {
		return false
	}
	if record.RemainingRetries <= 0 {
		return false
	}
	if run.MaxRetries <= 0 {
		return false
	}
	return true
}

// unsuccessfulTerminal reports whether the task settled without success.
// A completed task with Failure == false is a success and is never retried.
func unsuccessfulTerminal(task *taskqueue.Task) bool {
	switch task.State {
	case taskqueue.TaskStateCompleted:
		return task.Failure
	case taskqueue.TaskStateInfraFailed, taskqueue.TaskStateExpired, taskqueue.TaskStateKilled:
		return true
	}
	return false
}
