package fake

import (
	"context"
	"sync"

	"github.com/labfleet/labfleet/internal/common/util"
	"github.com/labfleet/labfleet/internal/taskqueue"
)

// Client is an in-memory task queue for tests. Task state only changes when a
// test calls SetState, mirroring the real queue where the caller never
// mutates tasks.
type Client struct {
	mu    sync.Mutex
	tasks map[string]*taskqueue.Task
	order []string

	// Requests records every submission in order.
	Requests []*taskqueue.TaskRequest
	// SubmitError, when set, is returned by every Submit call.
	SubmitError error
	// QueryError, when set, is returned by every QueryByParent call.
	QueryError error
}

func NewClient() *Client {
	return &Client{tasks: map[string]*taskqueue.Task{}}
}

func (c *Client) Submit(ctx context.Context, req *taskqueue.TaskRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitError != nil {
		return "", c.SubmitError
	}
	id := util.NewULID()
	c.tasks[id] = &taskqueue.Task{
		ID:       id,
		Name:     req.Name,
		State:    taskqueue.TaskStatePending,
		ParentID: req.ParentID,
		BotID:    req.Dimensions["id"],
		Tags:     req.Tags,
	}
	c.order = append(c.order, id)
	c.Requests = append(c.Requests, req)
	return id, nil
}

func (c *Client) QueryByParent(ctx context.Context, parentID string) ([]*taskqueue.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QueryError != nil {
		return nil, c.QueryError
	}
	result := []*taskqueue.Task{}
	for _, id := range c.order {
		task := c.tasks[id]
		if task.ParentID == parentID {
			copied := *task
			result = append(result, &copied)
		}
	}
	return result, nil
}

// SetState moves a task to state with the given failure flag.
func (c *Client) SetState(id string, state taskqueue.TaskState, failure bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := c.tasks[id]
	task.State = state
	task.Failure = failure
}

// SetBot records the bot the task was assigned to.
func (c *Client) SetBot(id string, botID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[id].BotID = botID
}

// TaskIDs returns the ids of all submitted tasks in submission order.
func (c *Client) TaskIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}
