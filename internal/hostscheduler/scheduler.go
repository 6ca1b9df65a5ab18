package hostscheduler

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const metricsPrefix = "labfleet_hostscheduler_"

var hostsReleased = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "hosts_released_total",
	Help: "Number of host leases released because nothing referenced them",
})

var hostsLeased = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "hosts_leased_total",
	Help: "Number of host leases set, for frontend tasks and job assignments",
})

var jobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "jobs_scheduled_total",
	Help: "Number of jobs handed a host",
})

var duplicateAssignments = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "duplicate_host_assignments_total",
	Help: "Occurrences of a host claimed by more than one active job",
})

// Scheduler is the per-tick contract. Implementations must tolerate being
// substituted by the no-op variant when host acquisition happens inline
// elsewhere.
type Scheduler interface {
	Tick() error
}

// HostScheduler runs the host-lease control loop. Each tick releases leases
// nothing references any more, leases hosts for pending frontend tasks, and
// assigns free hosts to queued jobs. The tick keeps no state of its own
// between runs; everything is recomputed from the store and the job queries.
type HostScheduler struct {
	store     LeaseStore
	jobs      JobQueryManager
	matcher   HostMatcher
	activator JobActivator
	notifier  Notifier
}

func NewHostScheduler(
	store LeaseStore,
	jobs JobQueryManager,
	matcher HostMatcher,
	activator JobActivator,
	notifier Notifier,
) *HostScheduler {
	return &HostScheduler{
		store:     store,
		jobs:      jobs,
		matcher:   matcher,
		activator: activator,
		notifier:  notifier,
	}
}

// Tick runs one scheduling pass. Frontend-task leasing runs before job
// scheduling so maintenance work is not starved by new assignments; release
// runs first and works from its own fresh snapshot. Step failures are
// collected rather than short-circuiting, a broken step must not stop the
// others.
func (s *HostScheduler) Tick() error {
	var result *multierror.Error
	if err := s.ReleaseHosts(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.LeaseFrontendTaskHosts(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.ScheduleJobs(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.CheckHostAssignments(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ReleaseHosts clears the lease on every healthy host no active work refers
// to. Unconditional; it runs every tick.
func (s *HostScheduler) ReleaseHosts() error {
	hostIDs, err := s.store.FindUnusedHealthy()
	if err != nil {
		return errors.WithMessage(err, "failed to find releasable hosts")
	}
	if len(hostIDs) == 0 {
		return nil
	}
	if err := s.store.SetLeased(false, hostIDs); err != nil {
		return errors.WithMessage(err, "failed to release host leases")
	}
	hostsReleased.Add(float64(len(hostIDs)))
	log.Infof("Released leases on %s", strings.Join(hostIDs, ","))
	return nil
}

// LeaseFrontendTaskHosts leases the target host of every pending frontend
// task that has no associated job and whose host is not already leased.
// Leasing an already-leased host would be safe as well, release is driven by
// reference counting, but skipping it keeps the lease churn down.
func (s *HostScheduler) LeaseFrontendTaskHosts() error {
	tasks, err := s.jobs.PendingFrontendTasks()
	if err != nil {
		return errors.WithMessage(err, "failed to query pending frontend tasks")
	}

	hostIDs := []string{}
	seen := map[string]bool{}
	for _, task := range tasks {
		if task.JobID == "" && task.HostID != "" && !seen[task.HostID] {
			seen[task.HostID] = true
			hostIDs = append(hostIDs, task.HostID)
		}
	}
	if len(hostIDs) == 0 {
		return nil
	}

	toLease, err := s.store.FilterUnleased(hostIDs)
	if err != nil {
		return errors.WithMessage(err, "failed to filter unleased hosts")
	}
	if len(toLease) == 0 {
		return nil
	}
	if err := s.store.SetLeased(true, toLease); err != nil {
		return errors.WithMessage(err, "failed to lease hosts for frontend tasks")
	}
	hostsLeased.Add(float64(len(toLease)))
	log.Infof("Leased %s for frontend tasks", strings.Join(toLease, ","))
	return nil
}

// ScheduleJobs assigns a matching free host to each job waiting for one and
// marks the job active. Jobs with no available host stay queued for the next
// tick.
func (s *HostScheduler) ScheduleJobs() error {
	pending, err := s.jobs.PendingJobs()
	if err != nil {
		return errors.WithMessage(err, "failed to query pending jobs")
	}

	var result *multierror.Error
	for _, job := range pending {
		hostID, ok, err := s.matcher.AcquireHost(job)
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "failed to acquire a host for job %s", job.ID))
			continue
		}
		if !ok {
			continue
		}
		if err := s.store.SetLeased(true, []string{hostID}); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "failed to lease host %s for job %s", hostID, job.ID))
			continue
		}
		hostsLeased.Inc()
		if err := s.activator.MarkActive(job, hostID); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "failed to activate job %s on host %s", job.ID, hostID))
			continue
		}
		jobsScheduled.Inc()
		log.WithField("jobId", job.ID).Infof("Scheduled job on host %s", hostID)
	}
	return result.ErrorOrNil()
}

// CheckHostAssignments detects hosts claimed by more than one active job.
// Correct locking in the other steps makes this impossible, so an occurrence
// is reported for a human to look at, never auto-corrected and never a tick
// failure.
func (s *HostScheduler) CheckHostAssignments() error {
	overlapping, err := s.jobs.OverlappingAssignments()
	if err != nil {
		return errors.WithMessage(err, "failed to query overlapping assignments")
	}
	if len(overlapping) == 0 {
		return nil
	}

	byHost := map[string][]string{}
	for _, assignment := range overlapping {
		byHost[assignment.HostID] = append(byHost[assignment.HostID], assignment.JobID)
	}
	lines := []string{}
	for hostID, jobIDs := range byHost {
		lines = append(lines, fmt.Sprintf("host %s is assigned to jobs %s", hostID, strings.Join(jobIDs, ",")))
	}
	duplicateAssignments.Add(float64(len(byHost)))
	s.notifier.Notify("Duplicate host assignments", strings.Join(lines, "\n"))
	return nil
}

// DummyHostScheduler does nothing on tick. Used when host acquisition is
// handled inline by the job execution path.
type DummyHostScheduler struct{}

func (DummyHostScheduler) Tick() error { return nil }

// LogNotifier reports notifications through the log only.
type LogNotifier struct{}

func (LogNotifier) Notify(subject string, body string) {
	log.WithField("subject", subject).Warn(body)
}
