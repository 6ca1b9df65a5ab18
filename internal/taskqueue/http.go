package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labfleet/labfleet/internal/common/fleeterrors"
)

const (
	submitPath      = "/tasks/new"
	listByTagPath   = "/tasks/list"
	requestIdHeader = "X-Request-Id"
)

// HttpClient talks to a task queue over its REST surface. Transient transport
// failures (connection errors, 5xx) are retried a bounded number of times
// with exponential backoff before being reported as infra errors; 4xx
// responses are never retried.
type HttpClient struct {
	BaseUrl string
	// MaxAttempts bounds transport-level retries per call. This budget is
	// unrelated to the suite-level test-retry budget.
	MaxAttempts uint
	RetryDelay  time.Duration
	client      *http.Client
}

func NewHttpClient(baseUrl string, requestTimeout time.Duration) *HttpClient {
	return &HttpClient{
		BaseUrl:     baseUrl,
		MaxAttempts: 4,
		RetryDelay:  500 * time.Millisecond,
		client:      &http.Client{Timeout: requestTimeout},
	}
}

type submitRequest struct {
	Name                 string            `json:"name"`
	Command              []string          `json:"command"`
	Dimensions           map[string]string `json:"dimensions"`
	Tags                 map[string]string `json:"tags"`
	ParentId             string            `json:"parent_id,omitempty"`
	Priority             int               `json:"priority"`
	ExecutionTimeoutSecs int               `json:"execution_timeout_secs"`
	IoTimeoutSecs        int               `json:"io_timeout_secs"`
	ExpirationSecs       int               `json:"expiration_secs"`
}

type submitResponse struct {
	TaskId string `json:"task_id"`
}

type taskItem struct {
	TaskId   string            `json:"task_id"`
	Name     string            `json:"name"`
	State    string            `json:"state"`
	Failure  bool              `json:"failure"`
	BotId    string            `json:"bot_id"`
	ParentId string            `json:"parent_id"`
	Tags     map[string]string `json:"tags"`
}

type listResponse struct {
	Items []taskItem `json:"items"`
}

func (c *HttpClient) Submit(ctx context.Context, req *TaskRequest) (string, error) {
	body, err := json.Marshal(&submitRequest{
		Name:                 req.Name,
		Command:              req.Command,
		Dimensions:           req.Dimensions,
		Tags:                 req.Tags,
		ParentId:             req.ParentID,
		Priority:             req.Priority,
		ExecutionTimeoutSecs: int(req.ExecutionTimeout.Seconds()),
		IoTimeoutSecs:        int(req.IOTimeout.Seconds()),
		ExpirationSecs:       int(req.Expiration.Seconds()),
	})
	if err != nil {
		return "", errors.WithStack(err)
	}

	var rv submitResponse
	err = c.do(ctx, http.MethodPost, submitPath, nil, body, &rv)
	if err != nil {
		return "", errors.WithMessagef(err, "failed to submit task %s", req.Name)
	}
	if rv.TaskId == "" {
		return "", errors.WithStack(&fleeterrors.ErrInfra{
			Service: "taskqueue",
			Method:  "Submit",
			Message: "queue returned an empty task id",
		})
	}
	return rv.TaskId, nil
}

func (c *HttpClient) QueryByParent(ctx context.Context, parentID string) ([]*Task, error) {
	query := url.Values{"parent_id": []string{parentID}}
	var rv listResponse
	err := c.do(ctx, http.MethodGet, listByTagPath, query, nil, &rv)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to list tasks of parent %s", parentID)
	}

	tasks := make([]*Task, 0, len(rv.Items))
	for _, item := range rv.Items {
		tasks = append(tasks, &Task{
			ID:       item.TaskId,
			Name:     item.Name,
			State:    TaskState(item.State),
			Failure:  item.Failure,
			BotID:    item.BotId,
			ParentID: item.ParentId,
			Tags:     item.Tags,
		})
	}
	return tasks, nil
}

// do performs one HTTP call with bounded retries and decodes the JSON
// response into out. The same idempotency key is sent on every attempt so
// that a retried submit cannot create a duplicate task.
func (c *HttpClient) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	endpoint := c.BaseUrl + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	requestId := uuid.NewString()

	err := retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
			if err != nil {
				return retry.Unrecoverable(errors.WithStack(err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(requestIdHeader, requestId)

			resp, err := c.client.Do(req)
			if err != nil {
				return errors.WithStack(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return errors.Errorf("queue returned status %d", resp.StatusCode)
			}
			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(errors.WithStack(&fleeterrors.ErrNotFound{
					Type:  "endpoint",
					Value: path,
				}))
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(errors.Errorf("queue rejected request with status %d", resp.StatusCode))
			}
			return errors.WithStack(json.NewDecoder(resp.Body).Decode(out))
		},
		retry.Attempts(c.MaxAttempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		// A custom RetryIf replaces the library's default recoverability
		// check, so the Unrecoverable markings above must be re-applied here
		// alongside the cancellation check.
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retry.IsRecoverable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithField("attempt", n).Warnf("Task queue call %s %s failed: %s", method, path, err)
		}),
	)
	if err != nil {
		if fleeterrors.IsNotFound(err) {
			return err
		}
		return errors.WithStack(&fleeterrors.ErrInfra{
			Service: "taskqueue",
			Method:  fmt.Sprintf("%s %s", method, path),
			Message: err.Error(),
		})
	}
	return nil
}
