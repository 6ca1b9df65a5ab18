package hostscheduler

// Job is a queued work item waiting for a host assignment.
type Job struct {
	ID string
	// Requirements the assigned host must satisfy, e.g. board and pool
	// labels. Matching against them is the HostMatcher's concern.
	Requirements map[string]string
}

// FrontendTask is a maintenance or repair task created directly against a
// host, outside of any job. Its host must be leased before the task may run,
// and before new jobs get a chance to claim the host.
type FrontendTask struct {
	ID     string
	HostID string
	// JobID is empty for tasks with no associated job yet; only those are
	// leased by the scheduler.
	JobID string
}

// HostAssignment pairs a host with an active job claiming it.
type HostAssignment struct {
	HostID string
	JobID  string
}

// LeaseStore is the shared record of which hosts are claimed. The lease flag
// is the only shared mutable state between scheduler processes; at most one
// job or task may hold it at a time.
type LeaseStore interface {
	// FindUnusedHealthy returns the leased hosts that are healthy and no
	// longer referenced by any active work, i.e. the hosts whose lease can
	// be released. Always a fresh snapshot.
	FindUnusedHealthy() ([]string, error)
	// SetLeased sets or clears the lease flag on the given hosts.
	SetLeased(leased bool, hostIDs []string) error
	// FilterUnleased returns the subset of hostIDs not currently leased.
	FilterUnleased(hostIDs []string) ([]string, error)
}

// JobQueryManager answers the queries the scheduler tick needs. Backed by
// whatever system owns job state; the scheduler only reads from it.
type JobQueryManager interface {
	// PendingJobs returns jobs still needing a host assignment.
	PendingJobs() ([]*Job, error)
	// PendingFrontendTasks returns pending maintenance tasks, including
	// those already tied to a job.
	PendingFrontendTasks() ([]*FrontendTask, error)
	// OverlappingAssignments returns every (host, job) pair for hosts
	// claimed by more than one active job at once.
	OverlappingAssignments() ([]HostAssignment, error)
}

// HostMatcher acquires a free host satisfying a job's requirements. The
// constraint-matching logic lives behind this interface.
type HostMatcher interface {
	// AcquireHost returns the matched host id, or ok == false if no host is
	// currently available for the job.
	AcquireHost(job *Job) (hostID string, ok bool, err error)
}

// JobActivator marks a job active once it has a host, handing it off to
// execution.
type JobActivator interface {
	MarkActive(job *Job, hostID string) error
}

// Notifier reports conditions that deserve human attention but must not
// abort the scheduling tick.
type Notifier interface {
	Notify(subject string, body string)
}
