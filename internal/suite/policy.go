package suite

// SuiteMode distinguishes the two kinds of suite run.
type SuiteMode int

const (
	// ModeWaitAll waits for every child test to settle.
	ModeWaitAll SuiteMode = iota
	// ModeProvision stops early once enough devices succeeded.
	ModeProvision
)

// CompletionPolicy decides when a suite run is finished waiting. The decision
// is derived purely from state recorded by the most recent poll, so calling
// FinishedWaiting repeatedly without an intervening poll always returns the
// same answer.
type CompletionPolicy interface {
	Mode() SuiteMode
	FinishedWaiting(run *SuiteRun) bool
}

// WaitAllPolicy finishes when every active attempt is terminal and the most
// recent poll retried nothing. Both conditions matter: an attempt can be
// terminal and about to be superseded by a retry in the same pass, in which
// case the suite is not done.
type WaitAllPolicy struct{}

func (WaitAllPolicy) Mode() SuiteMode { return ModeWaitAll }

func (WaitAllPolicy) FinishedWaiting(run *SuiteRun) bool {
	if !run.polled || run.retriedLastPass {
		return false
	}
	for _, record := range run.active {
		if !record.terminal() {
			return false
		}
	}
	return true
}

// ProvisionPolicy finishes as soon as more than Threshold distinct devices
// have completed their task successfully. Individual failures are ignored and
// still-pending tasks are not waited for.
type ProvisionPolicy struct {
	Threshold int
}

func (ProvisionPolicy) Mode() SuiteMode { return ModeProvision }

func (p ProvisionPolicy) FinishedWaiting(run *SuiteRun) bool {
	if !run.polled {
		return false
	}
	return len(p.ProvisionedDevices(run)) > p.Threshold
}

// ProvisionedDevices returns the distinct devices whose active attempt
// finished successfully.
func (p ProvisionPolicy) ProvisionedDevices(run *SuiteRun) []string {
	devices := map[string]bool{}
	for _, record := range run.active {
		if record.finishedSuccessfully() && record.botID() != "" {
			devices[record.botID()] = true
		}
	}
	result := make([]string, 0, len(devices))
	for device := range devices {
		result = append(result, device)
	}
	return result
}
