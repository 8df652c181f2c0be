package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/discovery"
	"github.com/chorusdev/chorus/internal/lockmgr"
	"github.com/chorusdev/chorus/internal/ops"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	locks := lockmgr.New(db, nil)
	opsManager, err := ops.New(db, 0, nil)
	require.NoError(t, err)
	finder := discovery.New(db)

	srv := NewServer(db, locks, opsManager, finder, zerolog.Nop(), Config{})
	return httptest.NewServer(NewRouter(srv))
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestProjectAndTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]string{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var project types.Project
	decodeBody(t, resp, &project)
	require.NotEmpty(t, project.ID)

	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/tasks", map[string]string{
		"name": "root task", "task_type": string(types.TaskFeature),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var task types.EnrichedTask
	decodeBody(t, resp, &task)
	require.Equal(t, types.StatusTodo, task.Status)
	require.Equal(t, types.ReadinessNeedsSizing, task.Readiness)

	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/backlog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var backlog []types.EnrichedTask
	decodeBody(t, resp, &backlog)
	require.Len(t, backlog, 0, "an unsized task needs sizing, so it is not in the backlog")
}

func TestCreateProjectRejectsEmptyName(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]string{"name": ""})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var envelope errorEnvelope
	decodeBody(t, resp, &envelope)
	require.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	require.NotEmpty(t, envelope.Error.RequestID)
}

func TestGetTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/tasks/tsk_doesnotexist", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLockAcquireReleaseFlow(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]string{"name": "demo"})
	var project types.Project
	decodeBody(t, resp, &project)

	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/tasks", map[string]string{
		"name": "t", "task_type": string(types.TaskFeature),
	})
	var task types.EnrichedTask
	decodeBody(t, resp, &task)

	resp = doJSON(t, http.MethodPost, ts.URL+"/tasks/"+task.ID+"/lock", map[string]string{
		"caller_label": "agent-1", "lock_purpose": string(types.PurposeSizing),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var lock types.TaskLock
	decodeBody(t, resp, &lock)
	require.Equal(t, "agent-1", lock.CallerLabel)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/tasks/"+task.ID+"/lock?caller_label=agent-2", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
