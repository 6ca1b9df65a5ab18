package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labfleet/labfleet/internal/taskqueue"
)

func runWithStates(t *testing.T, states []taskqueue.TaskState, failures []bool) *SuiteRun {
	t.Helper()
	run := NewSuiteRun("suite-1", WaitAllPolicy{}, 5, true)
	for i, state := range states {
		record := &RetryRecord{
			Spec:        &TestSpec{Name: string(rune('a' + i))},
			lastState:   state,
			lastFailure: failures[i],
			observed:    true,
		}
		run.AddTest(string(rune('a'+i))+"-task", record)
	}
	run.polled = true
	return run
}

func TestStateOf_AllSucceeded(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStateCompleted, taskqueue.TaskStateCompleted},
		[]bool{false, false})
	assert.Equal(t, SuiteSucceeded, StateOf(run, false))
	assert.Equal(t, 0, StateOf(run, false).ReturnCode())
}

func TestStateOf_TestFailure(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStateCompleted, taskqueue.TaskStateCompleted},
		[]bool{true, false})
	assert.Equal(t, SuiteFailed, StateOf(run, false))
	assert.Equal(t, 1, StateOf(run, false).ReturnCode())
}

func TestStateOf_InfraFailureOutranksTestFailure(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStateCompleted, taskqueue.TaskStateExpired},
		[]bool{true, false})
	assert.Equal(t, SuiteInfraFailure, StateOf(run, false))
	assert.Equal(t, 2, StateOf(run, false).ReturnCode())
}

func TestStateOf_TimedOut(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStateCompleted},
		[]bool{false})
	assert.Equal(t, SuiteTimedOut, StateOf(run, true))
	assert.Equal(t, 3, StateOf(run, true).ReturnCode())
}

func TestStateOf_PendingTasksMeanTimeout(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStatePending},
		[]bool{false})
	assert.Equal(t, SuiteTimedOut, StateOf(run, false))
}

func TestStateOf_ProvisionSuccessIgnoresChildFailures(t *testing.T) {
	run := NewSuiteRun("suite-1", ProvisionPolicy{Threshold: 1}, 5, true)
	run.AddTest("t1", &RetryRecord{
		Spec:      &TestSpec{Name: "provision", BotID: "d1"},
		lastState: taskqueue.TaskStateCompleted,
		observed:  true,
	})
	run.AddTest("t2", &RetryRecord{
		Spec:      &TestSpec{Name: "provision", BotID: "d2"},
		lastState: taskqueue.TaskStateCompleted,
		observed:  true,
	})
	run.AddTest("t3", &RetryRecord{
		Spec:        &TestSpec{Name: "provision", BotID: "d3"},
		lastState:   taskqueue.TaskStateCompleted,
		lastFailure: true,
		observed:    true,
	})
	run.polled = true

	assert.Equal(t, SuiteSucceeded, StateOf(run, false))
}

func TestResults_OrderedByName(t *testing.T) {
	run := runWithStates(t,
		[]taskqueue.TaskState{taskqueue.TaskStateCompleted, taskqueue.TaskStateCompleted, taskqueue.TaskStateCompleted},
		[]bool{false, false, false})
	results := Results(run)
	assert.Equal(t, "a", results[0].TestName)
	assert.Equal(t, "b", results[1].TestName)
	assert.Equal(t, "c", results[2].TestName)
}
