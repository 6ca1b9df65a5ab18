package repository

import (
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/labfleet/labfleet/internal/common/fleeterrors"
	"github.com/labfleet/labfleet/internal/hostscheduler"
)

const (
	pendingJobsKey       = "Job:Pending"
	frontendTasksKey     = "FrontendTask:Pending"
	activeAssignmentsKey = "Job:Active"
)

// RedisJobQueue is a thin adapter over the job state the frontend maintains
// in Redis: pending jobs and frontend tasks as JSON list entries, active
// assignments as a job-to-host hash. It implements both the query surface the
// scheduler ticks against and the activation step that hands a job off.
type RedisJobQueue struct {
	db *redis.Client
}

func NewRedisJobQueue(db *redis.Client) *RedisJobQueue {
	return &RedisJobQueue{db: db}
}

// EnqueueJob appends a job to the pending queue. Called by the frontend.
func (q *RedisJobQueue) EnqueueJob(job *hostscheduler.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	return q.wrap(q.db.RPush(pendingJobsKey, data).Err(), "EnqueueJob")
}

// EnqueueFrontendTask appends a maintenance task to the pending queue.
func (q *RedisJobQueue) EnqueueFrontendTask(task *hostscheduler.FrontendTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return errors.WithStack(err)
	}
	return q.wrap(q.db.RPush(frontendTasksKey, data).Err(), "EnqueueFrontendTask")
}

func (q *RedisJobQueue) PendingJobs() ([]*hostscheduler.Job, error) {
	entries, err := q.db.LRange(pendingJobsKey, 0, -1).Result()
	if err != nil {
		return nil, q.wrap(err, "PendingJobs")
	}
	jobs := make([]*hostscheduler.Job, 0, len(entries))
	for _, entry := range entries {
		job := &hostscheduler.Job{}
		if err := json.Unmarshal([]byte(entry), job); err != nil {
			return nil, q.wrap(err, "PendingJobs")
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisJobQueue) PendingFrontendTasks() ([]*hostscheduler.FrontendTask, error) {
	entries, err := q.db.LRange(frontendTasksKey, 0, -1).Result()
	if err != nil {
		return nil, q.wrap(err, "PendingFrontendTasks")
	}
	tasks := make([]*hostscheduler.FrontendTask, 0, len(entries))
	for _, entry := range entries {
		task := &hostscheduler.FrontendTask{}
		if err := json.Unmarshal([]byte(entry), task); err != nil {
			return nil, q.wrap(err, "PendingFrontendTasks")
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// MarkActive removes the job from the pending queue, records its host
// assignment and marks the host referenced so release leaves it alone.
func (q *RedisJobQueue) MarkActive(job *hostscheduler.Job, hostID string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	pipe := q.db.TxPipeline()
	pipe.LRem(pendingJobsKey, 1, data)
	pipe.HSet(activeAssignmentsKey, job.ID, hostID)
	pipe.SAdd(referencedHostsKey, hostID)
	_, err = pipe.Exec()
	return q.wrap(err, "MarkActive")
}

// CompleteJob drops the job's assignment and its reference on the host.
// The next release pass may then clear the host's lease.
func (q *RedisJobQueue) CompleteJob(jobID string) error {
	hostID, err := q.db.HGet(activeAssignmentsKey, jobID).Result()
	if err == redis.Nil {
		return errors.WithStack(&fleeterrors.ErrNotFound{Type: "job", Value: jobID})
	}
	if err != nil {
		return q.wrap(err, "CompleteJob")
	}
	pipe := q.db.TxPipeline()
	pipe.HDel(activeAssignmentsKey, jobID)
	pipe.SRem(referencedHostsKey, hostID)
	_, err = pipe.Exec()
	return q.wrap(err, "CompleteJob")
}

// OverlappingAssignments returns the (host, job) pairs of every host claimed
// by more than one active job.
func (q *RedisJobQueue) OverlappingAssignments() ([]hostscheduler.HostAssignment, error) {
	assignments, err := q.db.HGetAll(activeAssignmentsKey).Result()
	if err != nil {
		return nil, q.wrap(err, "OverlappingAssignments")
	}

	byHost := map[string][]string{}
	for jobID, hostID := range assignments {
		byHost[hostID] = append(byHost[hostID], jobID)
	}
	overlapping := []hostscheduler.HostAssignment{}
	for hostID, jobIDs := range byHost {
		if len(jobIDs) < 2 {
			continue
		}
		for _, jobID := range jobIDs {
			overlapping = append(overlapping, hostscheduler.HostAssignment{HostID: hostID, JobID: jobID})
		}
	}
	return overlapping, nil
}

func (q *RedisJobQueue) wrap(err error, method string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&fleeterrors.ErrInfra{
		Service: "jobqueue",
		Method:  method,
		Message: err.Error(),
	})
}
