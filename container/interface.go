// Package container defines the runtime abstraction that drives an
// external OCI engine (Podman, reached over its Docker-compatible Engine
// API) through its socket. Everything outside this package depends only
// on the types and the Runtime interface declared here; the concrete
// engine client lives in engine.go.
package container

import (
	"context"
	"fmt"
	"time"
)

// VolumeMount binds a host path into the container.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
	// Label is an access-control label (e.g. SELinux "Z"/"z") passed
	// through to the engine. Empty means no label is applied.
	Label string
}

// ResourceLimits caps what a container may consume. Zero values mean
// "no limit" for that dimension.
type ResourceLimits struct {
	MemoryBytes int64
	CPUQuota    int64
	CPUShare    float64
	PidsLimit   int64
	CPUSet      string
}

// ContainerSpec is an immutable launch descriptor. Once constructed, no
// field should be mutated by callers.
type ContainerSpec struct {
	Image           string
	Command         []string
	Env             map[string]string
	WorkingDir      string
	Mounts          []VolumeMount
	User            string
	Group           string
	NetworkEnabled  bool
	Resources       *ResourceLimits
	RemoveAfterExit bool
	Labels          map[string]string
}

// ContainerHandle is an opaque container identifier. Equality is by
// string value.
type ContainerHandle struct {
	ID string
}

func (h ContainerHandle) String() string { return h.ID }

// ContainerRunResult is the outcome of Runtime.Run.
type ContainerRunResult struct {
	Handle     ContainerHandle
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ImagePullPolicy controls whether Runtime.EnsureImageAvailable pulls.
type ImagePullPolicy string

const (
	PullAlways       ImagePullPolicy = "always"
	PullIfNotPresent ImagePullPolicy = "if-not-present"
	PullNever        ImagePullPolicy = "never"
)

// LogSink receives demultiplexed stdout/stderr chunks from a running or
// exec'd container. StreamLogs calls it from its own writer goroutine
// and Exec calls it on the caller's goroutine, so a sink passed to both
// can receive concurrent calls.
type LogSink interface {
	WriteStdout(p []byte) error
	WriteStderr(p []byte) error
}

// ErrorKind classifies container-runtime failures into a small,
// stable taxonomy callers can switch on.
type ErrorKind string

const (
	ErrImageUnavailable    ErrorKind = "ImageUnavailable"
	ErrImagePullTimeout    ErrorKind = "ImagePullTimeout"
	ErrContainerStartTmo   ErrorKind = "ContainerStartTimeout"
	ErrContainerRemoveFail ErrorKind = "ContainerRemoveFailed"
	ErrNotFound            ErrorKind = "NotFound"
	ErrInvalidArgument     ErrorKind = "InvalidArgument"
	ErrBuildStepFailed     ErrorKind = "BuildStepFailed"
	ErrHubUnavailable      ErrorKind = "HubUnavailable"
	ErrGeneric             ErrorKind = "ContainerError"
)

// Error is the single error type every engine-API failure is converted
// to. The underlying cause is preserved for errors.Unwrap / errors.Is.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Timeouts bundles the pull/start/stop-grace durations the engine
// enforces on container lifecycle operations.
type Timeouts struct {
	Pull      time.Duration
	Start     time.Duration
	StopGrace time.Duration
}

// Runtime is the capability set a task adapter needs from the
// container engine.
type Runtime interface {
	EnsureImageAvailable(ctx context.Context, image string, policy ImagePullPolicy) error
	Create(ctx context.Context, spec ContainerSpec) (ContainerHandle, error)
	Start(ctx context.Context, handle ContainerHandle) error
	Wait(ctx context.Context, handle ContainerHandle) (int, error)
	Remove(ctx context.Context, handle ContainerHandle, force bool) error
	StreamLogs(ctx context.Context, handle ContainerHandle, sink LogSink, follow bool)
	Exec(ctx context.Context, handle ContainerHandle, command []string, sink LogSink, env map[string]string) (int, error)
	CopyTo(ctx context.Context, handle ContainerHandle, srcFile string, destPath string) error
	Run(ctx context.Context, spec ContainerSpec, sink LogSink, attach bool) (ContainerRunResult, error)
}
