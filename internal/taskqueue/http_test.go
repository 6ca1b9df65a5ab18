package taskqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfleet/labfleet/internal/common/fleeterrors"
)

func newTestClient(server *httptest.Server) *HttpClient {
	client := NewHttpClient(server.URL, 5*time.Second)
	client.RetryDelay = time.Millisecond
	return client
}

func TestSubmit_ReturnsTaskId(t *testing.T) {
	var received submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks/new", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(submitResponse{TaskId: "task-1"})
	}))
	defer server.Close()

	taskID, err := newTestClient(server).Submit(context.Background(), &TaskRequest{
		Name:             "platform_Suspend",
		Command:          []string{"autoserv", "--test", "platform_Suspend"},
		Dimensions:       map[string]string{"pool": "lab-drones"},
		ParentID:         "suite-1",
		ExecutionTimeout: 90 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)
	assert.Equal(t, "platform_Suspend", received.Name)
	assert.Equal(t, "suite-1", received.ParentId)
	assert.Equal(t, 90, received.ExecutionTimeoutSecs)
}

func TestSubmit_EmptyTaskIdIsInfraError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{})
	}))
	defer server.Close()

	_, err := newTestClient(server).Submit(context.Background(), &TaskRequest{Name: "t"})
	assert.True(t, fleeterrors.IsInfra(err))
}

func TestQueryByParent_DecodesTasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/list", r.URL.Path)
		assert.Equal(t, "suite-1", r.URL.Query().Get("parent_id"))
		_ = json.NewEncoder(w).Encode(listResponse{Items: []taskItem{
			{TaskId: "task-1", Name: "t1", State: "COMPLETED", Failure: true, BotId: "bot-1", ParentId: "suite-1"},
			{TaskId: "task-2", Name: "t2", State: "RUNNING"},
		}})
	}))
	defer server.Close()

	tasks, err := newTestClient(server).QueryByParent(context.Background(), "suite-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, TaskStateCompleted, tasks[0].State)
	assert.True(t, tasks[0].Failure)
	assert.Equal(t, "bot-1", tasks[0].BotID)
	assert.Equal(t, TaskStateRunning, tasks[1].State)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	attempts := 0
	requestIds := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		requestIds[r.Header.Get("X-Request-Id")] = true
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(submitResponse{TaskId: "task-1"})
	}))
	defer server.Close()

	taskID, err := newTestClient(server).Submit(context.Background(), &TaskRequest{Name: "t"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)
	assert.Equal(t, 3, attempts)
	// Every attempt reused the same idempotency key.
	assert.Len(t, requestIds, 1)
}

func TestDo_ExhaustedRetriesAreInfraErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server).Submit(context.Background(), &TaskRequest{Name: "t"})
	assert.True(t, fleeterrors.IsInfra(err))
	assert.Equal(t, 4, attempts)
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server).Submit(context.Background(), &TaskRequest{Name: "t"})
	assert.True(t, fleeterrors.IsInfra(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_NotFoundSurfacesAsNotFound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server).QueryByParent(context.Background(), "suite-1")
	assert.True(t, fleeterrors.IsNotFound(err))
	assert.Equal(t, 1, attempts)
}
