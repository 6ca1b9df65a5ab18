package suite

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/labfleet/labfleet/internal/taskqueue"
)

// SuiteState is the overall verdict of one suite run, derived from the child
// results after waiting completes. The distinctions matter because each
// implies a different remediation: failed tests point at the tests, infra
// failures at the lab, a timeout at the suite's own budget.
type SuiteState int

const (
	SuiteSucceeded SuiteState = iota
	SuiteFailed
	SuiteInfraFailure
	SuiteTimedOut
)

func (s SuiteState) String() string {
	switch s {
	case SuiteSucceeded:
		return "SUCCEEDED"
	case SuiteFailed:
		return "FAILED"
	case SuiteInfraFailure:
		return "INFRA_FAILURE"
	case SuiteTimedOut:
		return "TIMED_OUT"
	}
	return "UNKNOWN"
}

// ReturnCode maps the suite state to the process exit status.
func (s SuiteState) ReturnCode() int {
	switch s {
	case SuiteSucceeded:
		return 0
	case SuiteFailed:
		return 1
	case SuiteInfraFailure:
		return 2
	case SuiteTimedOut:
		return 3
	}
	return 2
}

// TestResult is the final outcome of one logical child test, including its
// full task-id lineage across retries.
type TestResult struct {
	TestName   string
	BotID      string
	State      taskqueue.TaskState
	Failure    bool
	RetryCount int
	// TaskIDs lists every attempt, oldest first; the last entry is the
	// attempt whose state is reported.
	TaskIDs []string
}

// Results collects the per-test outcomes of a run, ordered by test name.
func Results(run *SuiteRun) []TestResult {
	results := []TestResult{}
	for _, record := range run.Records() {
		results = append(results, TestResult{
			TestName:   record.Spec.Name,
			BotID:      record.botID(),
			State:      record.lastState,
			Failure:    record.lastFailure,
			RetryCount: len(record.PreviousRetriedIDs),
			TaskIDs:    append(append([]string{}, record.PreviousRetriedIDs...), record.TaskID),
		})
	}
	return results
}

// StateOf derives the suite verdict from the run. A provision suite that met
// its threshold succeeds regardless of individual child failures; there may
// well be children still running.
func StateOf(run *SuiteRun, timedOut bool) SuiteState {
	if provision, ok := run.Policy().(ProvisionPolicy); ok {
		if provision.FinishedWaiting(run) {
			return SuiteSucceeded
		}
	}
	if timedOut {
		return SuiteTimedOut
	}

	state := SuiteSucceeded
	for _, result := range Results(run) {
		switch result.State {
		case taskqueue.TaskStateCompleted:
			if result.Failure && state == SuiteSucceeded {
				state = SuiteFailed
			}
		case taskqueue.TaskStateInfraFailed, taskqueue.TaskStateExpired, taskqueue.TaskStateKilled:
			state = SuiteInfraFailure
		case taskqueue.TaskStatePending, taskqueue.TaskStateRunning:
			// Waiting ended with work still live; only the deadline does that.
			return SuiteTimedOut
		}
	}
	return state
}

// LogResults writes the final per-test report and returns the suite verdict.
func LogResults(suiteName string, run *SuiteRun, timedOut bool) SuiteState {
	state := StateOf(run, timedOut)
	results := Results(run)

	log.Infof("################# SUITE REPORTING #################")
	log.Infof("Suite %s %s", suiteName, state)

	width := 0
	for _, result := range results {
		if len(result.TestName) > width {
			width = len(result.TestName)
		}
	}
	for _, result := range results {
		padded := result.TestName + strings.Repeat(" ", width-len(result.TestName)+3)
		outcome := string(result.State)
		if result.State == taskqueue.TaskStateCompleted && result.Failure {
			outcome = outcome + " (failed)"
		}
		log.Infof("%s%s", padded, outcome)
		if result.RetryCount > 0 {
			log.Infof("%s  retry_count: %d", padded, result.RetryCount)
		}
		for idx, taskID := range result.TaskIDs {
			if idx > 0 {
				log.Infof("%s  attempt %d: %s", padded, idx, taskID)
			} else {
				log.Infof("%s  attempt 0: %s", padded, taskID)
			}
		}
	}

	if provision, ok := run.Policy().(ProvisionPolicy); ok && state == SuiteSucceeded {
		log.Infof("Provisioned devices:")
		for _, device := range provision.ProvisionedDevices(run) {
			log.Info(device)
		}
	}
	return state
}
