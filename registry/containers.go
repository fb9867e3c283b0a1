// Package registry holds the thread-safe in-memory state of active
// and recently-finished containers and tasks, queried concurrently by
// task execution and by the monitoring server.
package registry

import (
	"sync"
	"time"

	"github.com/koji-project/adjutant/container"
)

// ContainerStatus is the lifecycle status of a registered container.
type ContainerStatus string

const (
	ContainerRunning ContainerStatus = "running"
	ContainerExited  ContainerStatus = "exited"
	ContainerRemoved ContainerStatus = "removed"
)

// ContainerInfo is a snapshot of a registered container's state.
type ContainerInfo struct {
	ID         string
	TaskID     int64
	Image      string
	Status     ContainerStatus
	Mounts     []container.VolumeMount
	Limits     container.ResourceLimits
	StartedAt  time.Time
	FinishedAt time.Time
}

// ContainerRegistry is a thread-safe map of container id to
// ContainerInfo, with TTL-based history expiry.
type ContainerRegistry struct {
	mu         sync.RWMutex
	containers map[string]*ContainerInfo
	historyTTL time.Duration
}

// NewContainerRegistry builds an empty registry retaining removed
// entries for historyTTL before Cleanup drops them.
func NewContainerRegistry(historyTTL time.Duration) *ContainerRegistry {
	return &ContainerRegistry{
		containers: make(map[string]*ContainerInfo),
		historyTTL: historyTTL,
	}
}

// Register records a newly created container.
func (r *ContainerRegistry) Register(info ContainerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := info
	r.containers[info.ID] = &cp
}

// Unregister marks a container removed, setting FinishedAt, and
// retains it for historyTTL before Cleanup drops it.
func (r *ContainerRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.containers[id]; ok {
		c.Status = ContainerRemoved
		c.FinishedAt = nowFunc()
	}
}

// UpdateStatus changes a registered container's status in place.
func (r *ContainerRegistry) UpdateStatus(id string, status ContainerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.containers[id]; ok {
		c.Status = status
	}
}

// Get returns a copy of the container's info, or false if absent.
func (r *ContainerRegistry) Get(id string) (ContainerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[id]
	if !ok {
		return ContainerInfo{}, false
	}
	return *c, true
}

// List returns all registered containers, or only the active ones
// (status != removed) when activeOnly is set.
func (r *ContainerRegistry) List(activeOnly bool) []ContainerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ContainerInfo, 0, len(r.containers))
	for _, c := range r.containers {
		if activeOnly && c.Status == ContainerRemoved {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Cleanup drops removed entries whose FinishedAt+historyTTL has
// elapsed.
func (r *ContainerRegistry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := nowFunc()
	for id, c := range r.containers {
		if c.Status == ContainerRemoved && c.FinishedAt.Add(r.historyTTL).Before(now) {
			delete(r.containers, id)
		}
	}
}

// Clear empties the registry; test support only.
func (r *ContainerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = make(map[string]*ContainerInfo)
}

// nowFunc is a seam for tests that need to control expiry timing.
var nowFunc = time.Now
