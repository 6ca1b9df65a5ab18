package suite

import (
	"sort"

	"github.com/labfleet/labfleet/internal/taskqueue"
)

// RetryRecord tracks the retry lineage of one logical child test: which task
// id is currently being monitored, how many retries remain, and which ids
// were superseded by earlier retries.
type RetryRecord struct {
	Spec *TestSpec
	// TaskID is the currently-active attempt. All ids in PreviousRetriedIDs
	// are terminal and no longer monitored.
	TaskID             string
	RemainingRetries   int
	PreviousRetriedIDs []string

	// Last observed queue state of the active attempt, refreshed on every
	// poll. observed is false until the attempt is first seen in a query.
	lastState   taskqueue.TaskState
	lastFailure bool
	lastBotID   string
	observed    bool
}

// finishedSuccessfully reports whether the active attempt was last seen
// terminal with no payload failure.
func (r *RetryRecord) finishedSuccessfully() bool {
	return r.observed && r.lastState == taskqueue.TaskStateCompleted && !r.lastFailure
}

func (r *RetryRecord) terminal() bool {
	return r.observed && r.lastState.Terminal()
}

// botID returns the device the active attempt last ran on, falling back to
// the spec's pinned device while the attempt is still pending.
func (r *RetryRecord) botID() string {
	if r.lastBotID != "" {
		return r.lastBotID
	}
	return r.Spec.BotID
}

// SuiteRun is the aggregate state of one suite execution. It is owned by a
// single orchestrator instance and must not be shared between goroutines.
type SuiteRun struct {
	// SuiteID tags every child task so they can be found by a parent query.
	SuiteID string
	// MaxRetries is the shared suite-level retry budget, decremented every
	// time any child is retried. Once it reaches zero no child is retried
	// again, regardless of per-test budgets.
	MaxRetries int
	// RetriesEnabled disables the retry machinery entirely when false.
	RetriesEnabled bool

	policy CompletionPolicy

	// active maps the currently-monitored task id of each logical test to
	// its record. Superseded ids are never keys here; mutation happens the
	// moment a retry is decided, so a stale id can never be re-processed.
	active map[string]*RetryRecord

	// Outcome of the most recent poll, consulted by FinishedWaiting so that
	// repeated calls without an intervening poll agree with each other.
	polled          bool
	retriedLastPass bool
}

func NewSuiteRun(suiteID string, policy CompletionPolicy, maxRetries int, retriesEnabled bool) *SuiteRun {
	return &SuiteRun{
		SuiteID:        suiteID,
		MaxRetries:     maxRetries,
		RetriesEnabled: retriesEnabled,
		policy:         policy,
		active:         map[string]*RetryRecord{},
	}
}

func (run *SuiteRun) Policy() CompletionPolicy { return run.policy }

// AddTest registers taskID as the active attempt of record's logical test.
func (run *SuiteRun) AddTest(taskID string, record *RetryRecord) {
	record.TaskID = taskID
	run.active[taskID] = record
}

// RemoveTest drops taskID from the active set. Called when the attempt has
// been superseded by a retry.
func (run *SuiteRun) RemoveTest(taskID string) {
	delete(run.active, taskID)
}

// TestByTaskID returns the record whose active attempt is taskID, or nil if
// the id is unknown or superseded.
func (run *SuiteRun) TestByTaskID(taskID string) *RetryRecord {
	return run.active[taskID]
}

// Records returns the active records ordered by test name for deterministic
// iteration and reporting.
func (run *SuiteRun) Records() []*RetryRecord {
	records := make([]*RetryRecord, 0, len(run.active))
	for _, record := range run.active {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Spec.Name != records[j].Spec.Name {
			return records[i].Spec.Name < records[j].Spec.Name
		}
		return records[i].TaskID < records[j].TaskID
	})
	return records
}

// Outstanding counts active attempts not yet seen in a terminal state.
func (run *SuiteRun) Outstanding() int {
	count := 0
	for _, record := range run.active {
		if !record.terminal() {
			count++
		}
	}
	return count
}
