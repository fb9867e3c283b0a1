package adapters

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koji-project/adjutant/container"
)

// fakeRuntime is a minimal container.Runtime test double. onExec, when
// set, scripts the result of every Exec call by call index; otherwise
// the Exec call whose index equals failExecAt returns exit code 1 and
// every other call returns 0 (the adapter is expected to stop calling
// Exec once it aborts).
type fakeRuntime struct {
	mu          sync.Mutex
	execCalls   int
	removeCalls int32

	failExecAt int // -1 means never fail
	createdID  string

	onExec func(call int, command []string) (int, error)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{failExecAt: -1, createdID: "fake-container-1"}
}

func (f *fakeRuntime) EnsureImageAvailable(ctx context.Context, image string, policy container.ImagePullPolicy) error {
	return nil
}

func (f *fakeRuntime) Create(ctx context.Context, spec container.ContainerSpec) (container.ContainerHandle, error) {
	return container.ContainerHandle{ID: f.createdID}, nil
}

func (f *fakeRuntime) Start(ctx context.Context, handle container.ContainerHandle) error {
	return nil
}

func (f *fakeRuntime) Wait(ctx context.Context, handle container.ContainerHandle) (int, error) {
	return 0, nil
}

func (f *fakeRuntime) Remove(ctx context.Context, handle container.ContainerHandle, force bool) error {
	atomic.AddInt32(&f.removeCalls, 1)
	return nil
}

func (f *fakeRuntime) StreamLogs(ctx context.Context, handle container.ContainerHandle, sink container.LogSink, follow bool) {
}

func (f *fakeRuntime) Exec(ctx context.Context, handle container.ContainerHandle, command []string, sink container.LogSink, env map[string]string) (int, error) {
	f.mu.Lock()
	call := f.execCalls
	f.execCalls++
	f.mu.Unlock()

	if f.onExec != nil {
		return f.onExec(call, command)
	}
	if f.failExecAt >= 0 && call == f.failExecAt {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeRuntime) CopyTo(ctx context.Context, handle container.ContainerHandle, srcFile string, destPath string) error {
	return nil
}

func (f *fakeRuntime) Run(ctx context.Context, spec container.ContainerSpec, sink container.LogSink, attach bool) (container.ContainerRunResult, error) {
	return container.ContainerRunResult{Handle: container.ContainerHandle{ID: f.createdID}, ExitCode: 0}, nil
}
