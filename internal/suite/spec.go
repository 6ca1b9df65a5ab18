package suite

import (
	"time"

	"github.com/labfleet/labfleet/internal/taskqueue"
)

const (
	dronePool          = "lab-drones"
	dutReadyState      = "ready"
	buildTagKey        = "build"
	poolLabelPrefix    = "lab-pool-"
	echoBinary         = "/bin/echo"
	dryRunNamePrefix   = "Echo "
	defaultMaxAttempts = 1
)

// TestSpec is the static description of one child test of a suite.
type TestSpec struct {
	// Name of the test, also used as the task name on the queue.
	Name string
	// Build identifies the image the device must run.
	Build string
	Board string
	Model string
	Pool  string
	// BotID pins the test to one specific device. Set for provision suites,
	// where each child targets a known device.
	BotID string
	// Command is the payload the assigned bot executes.
	Command  []string
	Priority int
	// MaxAttempts is the test's declared total attempt allowance; a value of
	// 2 permits the original run plus one retry.
	MaxAttempts      int
	ExecutionTimeout time.Duration
	IOTimeout        time.Duration
	Expiration       time.Duration
}

func (spec *TestSpec) maxAttempts() int {
	if spec.MaxAttempts < defaultMaxAttempts {
		return defaultMaxAttempts
	}
	return spec.MaxAttempts
}

// taskRequest builds the queue submission for one attempt of this test.
// In dry-run mode the payload is replaced with an echo of itself and the task
// is renamed so dry runs are recognisable in queue listings.
func (spec *TestSpec) taskRequest(suiteID string, dryRun bool) *taskqueue.TaskRequest {
	name := spec.Name
	command := spec.Command
	if dryRun {
		name = dryRunNamePrefix + spec.Name
		command = append([]string{echoBinary}, spec.Command...)
	}

	dimensions := map[string]string{
		"pool":        dronePool,
		"label-pool":  poolLabelPrefix + spec.Pool,
		"label-board": spec.Board,
		"dut_state":   dutReadyState,
	}
	if spec.Model != "" {
		dimensions["label-model"] = spec.Model
	}
	if spec.BotID != "" {
		dimensions["id"] = spec.BotID
	}

	return &taskqueue.TaskRequest{
		Name:             name,
		Command:          command,
		Dimensions:       dimensions,
		Tags:             map[string]string{buildTagKey: spec.Build},
		ParentID:         suiteID,
		Priority:         spec.Priority,
		ExecutionTimeout: spec.ExecutionTimeout,
		IOTimeout:        spec.IOTimeout,
		Expiration:       spec.Expiration,
	}
}
