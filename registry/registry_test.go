package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContainerRegistryConcurrentRegisterIsSafe(t *testing.T) {
	r := NewContainerRegistry(time.Hour)
	const producers = 20
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Register(ContainerInfo{ID: fmt.Sprintf("p%d-c%d", p, i), Status: ContainerRunning})
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, r.List(false), producers*perProducer)
}

func TestTaskRegistryConcurrentRegisterIsSafe(t *testing.T) {
	r := NewTaskRegistry(time.Hour)
	const producers = 20
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := int64(p*perProducer + i)
				r.Register(TaskInfo{ID: id, Status: TaskRunning})
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, r.List(false), producers*perProducer)
}

func TestContainerRegistryListActiveOnlyExcludesRemoved(t *testing.T) {
	r := NewContainerRegistry(time.Hour)
	r.Register(ContainerInfo{ID: "a", Status: ContainerRunning})
	r.Register(ContainerInfo{ID: "b", Status: ContainerRunning})
	r.Unregister("b")

	active := r.List(true)
	assert.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)
}

func TestContainerRegistryCleanupDropsExpiredRemoved(t *testing.T) {
	r := NewContainerRegistry(time.Millisecond)
	r.Register(ContainerInfo{ID: "a", Status: ContainerRunning})
	r.Unregister("a")

	old := nowFunc
	nowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { nowFunc = old }()

	r.Cleanup()
	assert.Empty(t, r.List(false))
}

func TestContainerRegistryCleanupKeepsRunning(t *testing.T) {
	r := NewContainerRegistry(time.Nanosecond)
	r.Register(ContainerInfo{ID: "a", Status: ContainerRunning})

	old := nowFunc
	nowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { nowFunc = old }()

	r.Cleanup()
	assert.Len(t, r.List(false), 1, "running containers never expire regardless of TTL")
}

func TestTaskRegistryCompletedTodayExcludesFailed(t *testing.T) {
	r := NewTaskRegistry(time.Hour)
	now := time.Now()
	r.Register(TaskInfo{ID: 1, Status: TaskRunning})
	r.Register(TaskInfo{ID: 2, Status: TaskRunning})
	r.Register(TaskInfo{ID: 3, Status: TaskRunning})
	r.Unregister(1, TaskCompleted)
	r.Unregister(2, TaskCompleted)
	r.Unregister(3, TaskFailed)

	assert.Equal(t, 2, r.CompletedToday(now))
}

func TestRegistryClearResetsState(t *testing.T) {
	r := NewContainerRegistry(time.Hour)
	r.Register(ContainerInfo{ID: "a", Status: ContainerRunning})
	r.Clear()
	assert.Empty(t, r.List(false))
}
