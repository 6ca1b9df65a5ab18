package suite

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labfleet/labfleet/internal/common/fleeterrors"
	"github.com/labfleet/labfleet/internal/common/util"
	"github.com/labfleet/labfleet/internal/taskqueue"
)

// Detailed progress is only logged this often while waiting; every other poll
// runs quietly.
const progressLogInterval = 5 * time.Minute

// Orchestrator drives one suite run: it submits a task per child test, polls
// the queue for completions, applies the retry policy and resubmits failed
// attempts until the run's completion policy is satisfied.
//
// A single orchestrator instance touches only its own SuiteRun, so no locking
// is needed; concurrent suites are separate processes coordinated solely
// through the task queue.
type Orchestrator struct {
	client taskqueue.Client
	clock  util.Clock
	// sleep is injectable so loop tests do not depend on wall-clock time.
	sleep func(context.Context, time.Duration) error
	// DryRun replaces every payload with an echo of itself.
	DryRun bool
}

func NewOrchestrator(client taskqueue.Client) *Orchestrator {
	return &Orchestrator{
		client: client,
		clock:  util.SystemClock{},
		sleep:  util.ContextSleep,
	}
}

// Start submits one task per spec and returns the tracking state for the new
// run. Submission failures are infra errors and propagate immediately; the
// caller may retry the whole suite invocation, this component does not.
func (o *Orchestrator) Start(
	ctx context.Context,
	suiteID string,
	specs []*TestSpec,
	policy CompletionPolicy,
	maxRetries int,
	retriesEnabled bool,
) (*SuiteRun, error) {
	if len(specs) == 0 {
		return nil, errors.WithStack(&fleeterrors.ErrInvalidArgument{
			Name:    "specs",
			Value:   specs,
			Message: "no tests to run",
		})
	}

	run := NewSuiteRun(suiteID, policy, maxRetries, retriesEnabled)
	for _, spec := range specs {
		taskID, err := o.scheduleTest(ctx, spec, suiteID)
		if err != nil {
			return nil, err
		}
		run.AddTest(taskID, &RetryRecord{
			Spec:             spec,
			RemainingRetries: spec.maxAttempts() - 1,
		})
	}
	return run, nil
}

// Resume rebuilds tracking state for an existing suite id from the queue's
// task history and schedules any spec that has no task yet. For each spec the
// non-terminal attempt (or the first attempt, if all are terminal) becomes the
// active id; every other attempt is recorded as superseded and the remaining
// retry count is reduced by the number of attempts already made.
func (o *Orchestrator) Resume(
	ctx context.Context,
	suiteID string,
	specs []*TestSpec,
	policy CompletionPolicy,
	maxRetries int,
	retriesEnabled bool,
) (*SuiteRun, error) {
	allTasks, err := o.client.QueryByParent(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	run := NewSuiteRun(suiteID, policy, maxRetries, retriesEnabled)
	for _, spec := range specs {
		attempts := attemptsOfSpec(spec, allTasks, policy.Mode(), o.DryRun)
		if len(attempts) == 0 {
			taskID, err := o.scheduleTest(ctx, spec, suiteID)
			if err != nil {
				return nil, err
			}
			run.AddTest(taskID, &RetryRecord{
				Spec:             spec,
				RemainingRetries: spec.maxAttempts() - 1,
			})
			continue
		}

		current, err := currentAttempt(attempts)
		if err != nil {
			return nil, err
		}
		if current == nil {
			current = attempts[0]
		}
		previous := []string{}
		for _, task := range attempts {
			if task.ID != current.ID {
				previous = append(previous, task.ID)
			}
		}
		run.AddTest(current.ID, &RetryRecord{
			Spec:               spec,
			RemainingRetries:   spec.maxAttempts() - len(attempts),
			PreviousRetriedIDs: previous,
		})
	}
	return run, nil
}

// attemptsOfSpec selects the attempts belonging to one logical test from a
// parent query result. Provision suites match on the pinned device, since all
// provision children share the same task name; everything else matches on the
// task name as submitted.
func attemptsOfSpec(spec *TestSpec, tasks []*taskqueue.Task, mode SuiteMode, dryRun bool) []*taskqueue.Task {
	matched := []*taskqueue.Task{}
	wantName := spec.Name
	if dryRun {
		wantName = dryRunNamePrefix + spec.Name
	}
	for _, task := range tasks {
		if mode == ModeProvision {
			if task.BotID == spec.BotID {
				matched = append(matched, task)
			}
		} else if task.Name == wantName {
			matched = append(matched, task)
		}
	}
	return matched
}

// currentAttempt returns the single non-terminal attempt, or nil if all
// attempts settled. Two live attempts of one test mean the queue and our
// bookkeeping disagree, which is a consistency error.
func currentAttempt(attempts []*taskqueue.Task) (*taskqueue.Task, error) {
	var current *taskqueue.Task
	for _, task := range attempts {
		if !task.State.Terminal() {
			if current != nil {
				return nil, errors.Errorf(
					"suite has two live attempts of the same test: %s, %s",
					current.ID, task.ID)
			}
			current = task
		}
	}
	return current, nil
}

// PollAndAdvance runs one iteration of the control loop: fetch a single
// consistent snapshot of all child tasks, record the observed states, then
// apply the retry policy and resubmit. The returned flag reports whether
// anything was retried in this pass; FinishedWaiting consults it, since a
// pass that retried something can never have finished the suite.
func (o *Orchestrator) PollAndAdvance(ctx context.Context, run *SuiteRun) (bool, error) {
	tasks, err := o.client.QueryByParent(ctx, run.SuiteID)
	if err != nil {
		return false, err
	}

	// Decisions are computed from this one snapshot before any resubmission
	// happens; interleaving queries and retries could double-retry a task.
	toRetry := []*taskqueue.Task{}
	for _, task := range tasks {
		record := run.TestByTaskID(task.ID)
		if record == nil {
			// A superseded or foreign id; present because the queue keeps
			// history, but not live.
			continue
		}
		record.lastState = task.State
		record.lastFailure = task.Failure
		if task.BotID != "" {
			record.lastBotID = task.BotID
		}
		record.observed = true

		// The budget check inside ShouldRetry sees the budget as of the start
		// of the pass; the length guard stops this pass from overcommitting
		// a budget shared by several failing tasks.
		if ShouldRetry(task, record, run) && len(toRetry) < run.MaxRetries {
			toRetry = append(toRetry, task)
		}
	}

	for _, task := range toRetry {
		if err := o.retryTest(ctx, run, task.ID); err != nil {
			return false, err
		}
	}

	run.polled = true
	run.retriedLastPass = len(toRetry) > 0
	return run.retriedLastPass, nil
}

// FinishedWaiting reports whether the run's completion policy is satisfied.
// Idempotent between polls.
func (o *Orchestrator) FinishedWaiting(run *SuiteRun) bool {
	return run.policy.FinishedWaiting(run)
}

// RunToCompletion polls until the completion policy is satisfied or the
// wall-clock budget elapses. A timeout is an orchestrator-level error
// carrying the number of still-outstanding tasks, never a silent success.
func (o *Orchestrator) RunToCompletion(
	ctx context.Context,
	run *SuiteRun,
	pollInterval time.Duration,
	timeout time.Duration,
) error {
	deadline := o.clock.Now().Add(timeout)
	lastProgressLog := time.Time{}

	for {
		if o.clock.Now().After(deadline) {
			return errors.WithStack(&fleeterrors.ErrSuiteTimeout{
				Budget:      timeout,
				Outstanding: run.Outstanding(),
			})
		}

		if _, err := o.PollAndAdvance(ctx, run); err != nil {
			return err
		}
		if o.FinishedWaiting(run) {
			log.Infof("Finished waiting for suite %s", run.SuiteID)
			return nil
		}

		if o.clock.Now().Sub(lastProgressLog) >= progressLogInterval {
			log.WithField("suiteId", run.SuiteID).Infof(
				"Waiting for %d of %d tasks", run.Outstanding(), len(run.active))
			lastProgressLog = o.clock.Now()
		}

		if err := o.sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) scheduleTest(ctx context.Context, spec *TestSpec, suiteID string) (string, error) {
	log.Infof("Scheduling test %s", spec.Name)
	taskID, err := o.client.Submit(ctx, spec.taskRequest(suiteID, o.DryRun))
	if err != nil {
		return "", err
	}
	taskSubmissions.Inc()
	return taskID, nil
}

// retryTest resubmits the test whose attempt taskID just failed. The old id
// is dropped from the active set immediately, before the next poll can see
// it again. A submission failure here propagates; the orchestrator never
// retries a retry submission.
func (o *Orchestrator) retryTest(ctx context.Context, run *SuiteRun, taskID string) error {
	record := run.TestByTaskID(taskID)
	log.Infof("Retrying test %s, remaining %d retries.",
		record.Spec.Name, record.RemainingRetries-1)

	newTaskID, err := o.scheduleTest(ctx, record.Spec, run.SuiteID)
	if err != nil {
		return err
	}

	run.RemoveTest(taskID)
	run.AddTest(newTaskID, &RetryRecord{
		Spec:               record.Spec,
		RemainingRetries:   record.RemainingRetries - 1,
		PreviousRetriedIDs: append(record.PreviousRetriedIDs, taskID),
	})
	run.MaxRetries--
	taskRetries.Inc()
	return nil
}
