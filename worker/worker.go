// Package worker ties configuration, the container runtime, the
// policy resolver, and the registries together into the single
// dispatch entry point a task arrives through.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-collections/collections/queue"

	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/node"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/registry"
	"github.com/koji-project/adjutant/task"
	"github.com/koji-project/adjutant/task/adapters"
)

// Worker holds everything a task dispatch needs: the container
// runtime, the policy resolver, the container/task registries, and a
// snapshot of local node capacity.
type Worker struct {
	Name string

	Runtime  container.Runtime
	Policy   *policy.Resolver
	Session  hub.Session
	Capacity node.Capacity

	Containers *registry.ContainerRegistry
	Tasks      *registry.TaskRegistry

	// pending holds the ids of tasks whose Dispatch call is in progress.
	// Dispatch enqueues its task id on entry and dequeues the oldest
	// entry on return; each task runs on the calling goroutine.
	pending queue.Queue
}

// New constructs a Worker wired to the given collaborators.
func New(name string, rt container.Runtime, resolver *policy.Resolver, session hub.Session, capacity node.Capacity, historyTTL time.Duration) *Worker {
	return &Worker{
		Name:       name,
		Runtime:    rt,
		Policy:     resolver,
		Session:    session,
		Capacity:   capacity,
		Containers: registry.NewContainerRegistry(historyTTL),
		Tasks:      registry.NewTaskRegistry(historyTTL),
	}
}

// Dispatch selects the adapter for kind, registers the task in the
// task registry around the call, and returns the adapter's
// (exitCode, result).
func (w *Worker) Dispatch(ctx context.Context, tc task.Context, kind task.Kind, params any) (int, any, error) {
	w.pending.Enqueue(tc.TaskID)
	defer w.pending.Dequeue()

	w.Tasks.Register(registry.TaskInfo{
		ID:        tc.TaskID,
		Kind:      string(kind),
		Status:    registry.TaskRunning,
		StartedAt: time.Now(),
	})

	code, result, err := w.run(ctx, tc, kind, params)

	status := registry.TaskCompleted
	if err != nil || code != 0 {
		status = registry.TaskFailed
	}
	w.Tasks.Unregister(tc.TaskID, status)

	return code, result, err
}

func (w *Worker) run(ctx context.Context, tc task.Context, kind task.Kind, params any) (int, any, error) {
	switch kind {
	case task.KindBuildArch:
		p, ok := params.(adapters.BuildArchParams)
		if !ok {
			return 1, nil, fmt.Errorf("buildArch: invalid parameter type %T", params)
		}
		a := &adapters.BuildArchAdapter{Runtime: w.Runtime, Policy: w.Policy, Session: w.Session}
		return a.Run(ctx, tc, p)

	case task.KindCreaterepo:
		p, ok := params.(adapters.CreaterepoParams)
		if !ok {
			return 1, nil, fmt.Errorf("createrepo: invalid parameter type %T", params)
		}
		a := &adapters.CreaterepoAdapter{Runtime: w.Runtime, Policy: w.Policy}
		return a.Run(ctx, tc, p)

	case task.KindRebuildSRPM:
		p, ok := params.(adapters.RebuildSRPMParams)
		if !ok {
			return 1, nil, fmt.Errorf("rebuildSRPM: invalid parameter type %T", params)
		}
		a := &adapters.RebuildSRPMAdapter{Runtime: w.Runtime, Policy: w.Policy, Session: w.Session}
		return a.Run(ctx, tc, p)

	case task.KindBuildSRPMFromSCM:
		p, ok := params.(adapters.BuildSRPMFromSCMParams)
		if !ok {
			return 1, nil, fmt.Errorf("buildSRPMFromSCM: invalid parameter type %T", params)
		}
		a := &adapters.BuildSRPMFromSCMAdapter{Runtime: w.Runtime, Policy: w.Policy, Session: w.Session}
		return a.Run(ctx, tc, p)

	default:
		return 1, nil, fmt.Errorf("unknown task kind %q", kind)
	}
}
