package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labfleet/labfleet/internal/taskqueue"
)

func TestShouldRetry_NeverOnSuccess(t *testing.T) {
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 10, true)
	record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 5}
	run.AddTest("task-1", record)

	task := &taskqueue.Task{ID: "task-1", State: taskqueue.TaskStateCompleted, Failure: false}
	assert.False(t, ShouldRetry(task, record, run))
}

func TestShouldRetry_UnsuccessfulTerminalStates(t *testing.T) {
	cases := []struct {
		state   taskqueue.TaskState
		failure bool
		retry   bool
	}{
		{taskqueue.TaskStateCompleted, true, true},
		{taskqueue.TaskStateCompleted, false, false},
		{taskqueue.TaskStateInfraFailed, false, true},
		{taskqueue.TaskStateExpired, false, true},
		{taskqueue.TaskStateKilled, false, true},
		{taskqueue.TaskStatePending, false, false},
		{taskqueue.TaskStateRunning, false, false},
	}
	for _, c := range cases {
		run := NewSuiteRun("suite-1", WaitAllPolicy{}, 10, true)
		record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 1}
		run.AddTest("task-1", record)

		task := &taskqueue.Task{ID: "task-1", State: c.state, Failure: c.failure}
		assert.Equal(t, c.retry, ShouldRetry(task, record, run),
			"state %s failure %v", c.state, c.failure)
	}
}

func TestShouldRetry_RespectsPerTestBudget(t *testing.T) {
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 10, true)
	record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 0}
	run.AddTest("task-1", record)

	task := &taskqueue.Task{ID: "task-1", State: taskqueue.TaskStateExpired}
	assert.False(t, ShouldRetry(task, record, run))
}

func TestShouldRetry_RespectsSuiteBudget(t *testing.T) {
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 0, true)
	record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 5}
	run.AddTest("task-1", record)

	task := &taskqueue.Task{ID: "task-1", State: taskqueue.TaskStateExpired}
	assert.False(t, ShouldRetry(task, record, run))
}

func TestShouldRetry_DisabledRetries(t *testing.T) {
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 10, false)
	record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 5}
	run.AddTest("task-1", record)

	task := &taskqueue.Task{ID: "task-1", State: taskqueue.TaskStateExpired}
	assert.False(t, ShouldRetry(task, record, run))
}

func TestShouldRetry_SupersededIdIsIgnored(t *testing.T) {
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 10, true)
	record := &RetryRecord{Spec: &TestSpec{Name: "t"}, RemainingRetries: 5}
	// The record's active attempt has moved on to task-2.
	run.AddTest("task-2", record)

	stale := &taskqueue.Task{ID: "task-1", State: taskqueue.TaskStateExpired}
	assert.False(t, ShouldRetry(stale, record, run))
	assert.Nil(t, run.TestByTaskID("task-1"))
}
