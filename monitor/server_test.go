package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koji-project/adjutant/node"
	"github.com/koji-project/adjutant/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	containers := registry.NewContainerRegistry(time.Hour)
	tasks := registry.NewTaskRegistry(time.Hour)
	return New(Config{
		WorkerID:   "w1",
		Bind:       "127.0.0.1:0",
		Containers: containers,
		Tasks:      tasks,
		Capacity:   node.LocalCapacity(4),
	})
}

func TestStatusEndpointScenario6(t *testing.T) {
	s := newTestServer(t)

	s.tasks.Register(registry.TaskInfo{ID: 1, Status: registry.TaskRunning})
	s.tasks.Register(registry.TaskInfo{ID: 2, Status: registry.TaskRunning})
	s.tasks.Register(registry.TaskInfo{ID: 3, Status: registry.TaskRunning})
	s.tasks.Register(registry.TaskInfo{ID: 4, Status: registry.TaskRunning})
	s.tasks.Register(registry.TaskInfo{ID: 5, Status: registry.TaskRunning})
	s.tasks.Unregister(3, registry.TaskCompleted)
	s.tasks.Unregister(4, registry.TaskCompleted)
	s.tasks.Unregister(5, registry.TaskFailed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	var body statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.ActiveTasks)
	assert.Equal(t, 2, body.TasksCompletedToday)
	assert.Equal(t, "healthy", body.Status)
}

func TestContainerDetailNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers/does-not-exist", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Error)
}

func TestUnknownPathReturnsJSONNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestTaskLogsTailsLastNLines(t *testing.T) {
	s := newTestServer(t)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "container.log")
	content := ""
	for i := 1; i <= 10; i++ {
		content += "line " + strconv.Itoa(i) + "\n"
	}
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	s.tasks.Register(registry.TaskInfo{ID: 9, Status: registry.TaskRunning, LogPath: logPath})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/9/logs?tail=3", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "9"})
	rr := httptest.NewRecorder()
	s.handleTaskLogs(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "line 8\nline 9\nline 10\n", rr.Body.String())
}
