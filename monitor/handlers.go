package monitor

import (
	"bufio"
	"container/list"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

type errorEnvelope struct {
	Error     bool   `json:"error"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorEnvelope{Error: true, ErrorCode: http.StatusNotFound, Message: message})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeNotFound(w, "no such endpoint")
}

type statusResponse struct {
	WorkerID            string `json:"worker_id"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
	Status              string `json:"status"`
	Capacity            int    `json:"capacity"`
	ActiveTasks         int    `json:"active_tasks"`
	ContainersActive    int    `json:"containers_active"`
	TasksCompletedToday int    `json:"tasks_completed_today"`
	LastTaskTime        string `json:"last_task_time,omitempty"`
}

// handleStatus serves GET /api/v1/status, triggering a TTL cleanup
// pass on both registries first.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.containers.Cleanup()
	s.tasks.Cleanup()

	now := time.Now()
	activeTasks := s.tasks.List(true)
	activeContainers := s.containers.List(true)

	var lastTaskTime string
	for _, t := range s.tasks.List(false) {
		if t.FinishedAt.IsZero() {
			continue
		}
		if lastTaskTime == "" || t.FinishedAt.Format(time.RFC3339) > lastTaskTime {
			lastTaskTime = t.FinishedAt.Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		WorkerID:            s.workerID,
		UptimeSeconds:       int64(now.Sub(s.startedAt).Seconds()),
		Status:              "healthy",
		Capacity:            s.capacity.Slots,
		ActiveTasks:         len(activeTasks),
		ContainersActive:    len(activeContainers),
		TasksCompletedToday: s.tasks.CompletedToday(now),
		LastTaskTime:        lastTaskTime,
	})
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	active := s.containers.List(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"containers": active,
		"total":      len(active),
	})
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, ok := s.containers.Get(id)
	if !ok {
		writeNotFound(w, "no such container")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	active := s.tasks.List(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": active,
		"total": len(active),
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeNotFound(w, "invalid task id")
		return
	}
	info, ok := s.tasks.Get(id)
	if !ok {
		writeNotFound(w, "no such task")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTaskLogs serves GET /api/v1/tasks/{id}/logs?tail=N: the last N
// lines (default 100) of the task's log file as plain text.
func (s *Server) handleTaskLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeNotFound(w, "invalid task id")
		return
	}

	info, ok := s.tasks.Get(id)
	if !ok || info.LogPath == "" {
		writeNotFound(w, "no such task log")
		return
	}

	tail := 100
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			tail = n
		}
	}

	lines, err := tailLines(info.LogPath, tail)
	if err != nil {
		writeNotFound(w, "log file missing")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, line := range lines {
		_, _ = w.Write([]byte(line))
		_, _ = w.Write([]byte("\n"))
	}
}

// tailLines reads the last n lines of path, keeping memory bounded to
// n lines via a ring buffer rather than loading the whole file.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := list.New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring.PushBack(scanner.Text())
		if ring.Len() > n {
			ring.Remove(ring.Front())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, ring.Len())
	for e := ring.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out, nil
}
