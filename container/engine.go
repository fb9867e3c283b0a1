package container

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/sockets"
	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("adjutant/container")

// Engine drives an OCI engine reachable through a Docker-compatible
// Engine API, typically a Podman socket. It is the only file in this
// module allowed to import the docker client packages directly; every
// other caller depends on the Runtime interface.
type Engine struct {
	cli       *dockerclient.Client
	timeouts  Timeouts
	workerID  string
	baseLabel map[string]string
	log       *logrus.Entry
}

// EngineOptions configures a new Engine.
type EngineOptions struct {
	SocketURI string // e.g. "unix:///var/run/podman.sock"
	Timeouts  Timeouts
	WorkerID  string
	Labels    map[string]string
	Logger    *logrus.Entry
}

// NewEngine dials the engine socket and negotiates the API version.
func NewEngine(opts EngineOptions) (*Engine, error) {
	sockPath := strings.TrimPrefix(opts.SocketURI, "unix://")
	transport := &http.Transport{}
	if err := sockets.ConfigureTransport(transport, "unix", sockPath); err != nil {
		return nil, newErr(ErrGeneric, "configure engine transport", err)
	}
	httpClient := &http.Client{Transport: transport}

	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHTTPClient(httpClient),
		dockerclient.WithHost(opts.SocketURI),
		dockerclient.WithAPIVersionNegotiation(),
		dockerclient.WithDialContext(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial("unix", sockPath)
		}),
	)
	if err != nil {
		return nil, newErr(ErrGeneric, "create engine client", err)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Engine{
		cli:       cli,
		timeouts:  opts.Timeouts,
		workerID:  opts.WorkerID,
		baseLabel: opts.Labels,
		log:       log,
	}, nil
}

func (e *Engine) EnsureImageAvailable(ctx context.Context, image string, policy ImagePullPolicy) error {
	ctx, span := tracer.Start(ctx, "container.ensure_image_available", oteltrace.WithAttributes(
		attribute.String("image", image), attribute.String("policy", string(policy)),
	))
	defer span.End()

	present, err := e.hasImage(ctx, image)
	if err != nil {
		span.RecordError(err)
		return newErr(ErrGeneric, "check image presence", err)
	}

	if policy == PullNever {
		if !present {
			err := newErr(ErrImageUnavailable, "image not present and pull policy is never: "+image, nil)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}

	if policy == PullAlways || !present {
		return e.pullWithDeadline(ctx, image)
	}
	return nil
}

func (e *Engine) hasImage(ctx context.Context, image string) (bool, error) {
	images, err := e.cli.ImageList(ctx, dockerimage.ListOptions{})
	if err != nil {
		return false, err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == image {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *Engine) pullWithDeadline(ctx context.Context, image string) error {
	deadline := time.Now().Add(e.timeouts.Pull)
	var lastErr error
	for time.Now().Before(deadline) {
		pullCtx, cancel := context.WithDeadline(ctx, deadline)
		reader, err := e.cli.ImagePull(pullCtx, image, dockerimage.PullOptions{})
		if err == nil {
			_, copyErr := io.Copy(io.Discard, reader)
			reader.Close()
			cancel()
			if copyErr == nil {
				return nil
			}
			lastErr = copyErr
		} else {
			lastErr = err
		}
		cancel()

		select {
		case <-ctx.Done():
			return newErr(ErrImagePullTimeout, "image pull canceled: "+image, ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return newErr(ErrImagePullTimeout, "image pull deadline exceeded: "+image, lastErr)
}

func (e *Engine) Create(ctx context.Context, spec ContainerSpec) (ContainerHandle, error) {
	ctx, span := tracer.Start(ctx, "container.create", oteltrace.WithAttributes(attribute.String("image", spec.Image)))
	defer span.End()

	cfg := &dockercontainer.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Env:        mapToEnvSlice(spec.Env),
		WorkingDir: spec.WorkingDir,
		Labels:     e.buildLabels(spec),
		Tty:        false,
	}
	if spec.User != "" {
		if spec.Group != "" {
			cfg.User = spec.User + ":" + spec.Group
		} else {
			cfg.User = spec.User
		}
	}

	hostCfg := &dockercontainer.HostConfig{
		Binds:           e.buildBinds(spec),
		NetworkMode:     networkMode(spec.NetworkEnabled),
		AutoRemove:      false,
		PublishAllPorts: false,
	}
	if spec.Resources != nil {
		hostCfg.Resources = dockercontainer.Resources{
			Memory:   spec.Resources.MemoryBytes,
			NanoCPUs: int64(spec.Resources.CPUShare * 1e9),
			PidsLimit: func() *int64 {
				if spec.Resources.PidsLimit == 0 {
					return nil
				}
				v := spec.Resources.PidsLimit
				return &v
			}(),
			CpusetCpus: spec.Resources.CPUSet,
		}
		e.log.Debugf("container resources: memory=%s cpus=%.2f",
			units.BytesSize(float64(spec.Resources.MemoryBytes)), spec.Resources.CPUShare)
	}

	name := "adjutant-" + uuid.NewString()
	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		span.RecordError(err)
		return ContainerHandle{}, newErr(ErrGeneric, "create container", err)
	}
	return ContainerHandle{ID: resp.ID}, nil
}

// buildLabels applies the base worker-id label plus any task-id found
// in the spec's environment.
func (e *Engine) buildLabels(spec ContainerSpec) map[string]string {
	labels := map[string]string{}
	for k, v := range e.baseLabel {
		labels[k] = v
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	if e.workerID != "" {
		labels["io.koji.adjutant.worker_id"] = e.workerID
	}
	if taskID, ok := spec.Env["KOJI_TASK_ID"]; ok {
		labels["io.koji.adjutant.task_id"] = taskID
	}
	return labels
}

func (e *Engine) buildBinds(spec ContainerSpec) []string {
	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		label := m.Label
		if label == "" && m.Target == "/mnt/koji" {
			label = "Z"
		}
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		bind := m.Source + ":" + m.Target + ":" + mode
		if label != "" {
			bind += "," + label
		}
		binds = append(binds, bind)
	}
	return binds
}

func networkMode(enabled bool) dockercontainer.NetworkMode {
	if enabled {
		return "bridge"
	}
	return "none"
}

func mapToEnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func (e *Engine) Start(ctx context.Context, handle ContainerHandle) error {
	ctx, span := tracer.Start(ctx, "container.start", oteltrace.WithAttributes(attribute.String("container_id", handle.ID)))
	defer span.End()

	startCtx, cancel := context.WithTimeout(ctx, e.timeouts.Start)
	defer cancel()

	if err := e.cli.ContainerStart(startCtx, handle.ID, dockercontainer.StartOptions{}); err != nil {
		span.RecordError(err)
		return newErr(ErrGeneric, "start container", err)
	}

	waitCh, errCh := e.cli.ContainerWait(startCtx, handle.ID, dockercontainer.WaitConditionNotRunning)
	select {
	case <-waitCh:
	case err := <-errCh:
		if err != nil {
			// A wait error here typically means the container already
			// exited or is still running; treat absence of a hard
			// start failure as success and let Wait() observe the
			// final state later.
			e.log.Debugf("start wait observation: %v", err)
		}
	case <-startCtx.Done():
		return newErr(ErrContainerStartTmo, "container start timed out", startCtx.Err())
	default:
		// Not yet in a terminal state; poll inspect until start
		// timeout, blocking until the container is running, exited, or
		// dead.
		return e.pollUntilStarted(startCtx, handle)
	}
	return nil
}

func (e *Engine) pollUntilStarted(ctx context.Context, handle ContainerHandle) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return newErr(ErrContainerStartTmo, "container start timed out", ctx.Err())
		case <-ticker.C:
			info, err := e.cli.ContainerInspect(ctx, handle.ID)
			if err != nil {
				continue
			}
			switch info.State.Status {
			case "running", "exited", "dead":
				return nil
			}
		}
	}
}

func (e *Engine) Wait(ctx context.Context, handle ContainerHandle) (int, error) {
	ctx, span := tracer.Start(ctx, "container.wait", oteltrace.WithAttributes(attribute.String("container_id", handle.ID)))
	defer span.End()

	waitCh, errCh := e.cli.ContainerWait(ctx, handle.ID, dockercontainer.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.StatusCode < 0 {
			return 1, nil
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		span.RecordError(err)
		return 1, newErr(ErrGeneric, "wait for container", err)
	case <-ctx.Done():
		return 1, newErr(ErrGeneric, "wait canceled", ctx.Err())
	}
}

func (e *Engine) Remove(ctx context.Context, handle ContainerHandle, force bool) error {
	ctx, span := tracer.Start(ctx, "container.remove", oteltrace.WithAttributes(
		attribute.String("container_id", handle.ID), attribute.Bool("force", force),
	))
	defer span.End()

	err := e.cli.ContainerRemove(ctx, handle.ID, dockercontainer.RemoveOptions{Force: force})
	if err == nil {
		return nil
	}
	if dockerclient.IsErrNotFound(err) {
		return nil
	}
	if !force {
		stopCtx, cancel := context.WithTimeout(ctx, e.timeouts.StopGrace)
		timeoutSecs := int(e.timeouts.StopGrace.Seconds())
		_ = e.cli.ContainerStop(stopCtx, handle.ID, dockercontainer.StopOptions{Timeout: &timeoutSecs})
		cancel()
		if err2 := e.cli.ContainerRemove(ctx, handle.ID, dockercontainer.RemoveOptions{Force: true}); err2 != nil {
			if dockerclient.IsErrNotFound(err2) {
				return nil
			}
			span.RecordError(err2)
			return newErr(ErrContainerRemoveFail, "remove container after graceful stop", err2)
		}
		return nil
	}
	span.RecordError(err)
	return newErr(ErrContainerRemoveFail, "force-remove container", err)
}

func (e *Engine) StreamLogs(ctx context.Context, handle ContainerHandle, sink LogSink, follow bool) {
	pump := newLogPump(e.log)
	pump.start(ctx, func(stdoutW, stderrW io.Writer) error {
		logs, err := e.cli.ContainerLogs(ctx, handle.ID, dockercontainer.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     follow,
		})
		if err != nil {
			return err
		}
		defer logs.Close()
		_, err = stdcopy.StdCopy(stdoutW, stderrW, logs)
		return err
	}, sink)
}

func (e *Engine) Exec(ctx context.Context, handle ContainerHandle, command []string, sink LogSink, env map[string]string) (int, error) {
	ctx, span := tracer.Start(ctx, "container.exec", oteltrace.WithAttributes(
		attribute.String("container_id", handle.ID), attribute.StringSlice("command", command),
	))
	defer span.End()

	execResp, err := e.cli.ContainerExecCreate(ctx, handle.ID, dockercontainer.ExecOptions{
		Cmd:          command,
		Env:          mapToEnvSlice(env),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		span.RecordError(err)
		return 1, newErr(ErrGeneric, "exec create", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		span.RecordError(err)
		return 1, newErr(ErrGeneric, "exec attach", err)
	}
	defer attachResp.Close()

	if _, err := stdcopy.StdCopy(stdoutSinkWriter{sink}, stderrSinkWriter{sink}, attachResp.Reader); err != nil && err != io.EOF {
		span.RecordError(err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		span.RecordError(err)
		return 1, newErr(ErrGeneric, "exec inspect", err)
	}
	return inspect.ExitCode, nil
}

func (e *Engine) CopyTo(ctx context.Context, handle ContainerHandle, srcFile string, destPath string) error {
	ctx, span := tracer.Start(ctx, "container.copy_to", oteltrace.WithAttributes(
		attribute.String("container_id", handle.ID), attribute.String("dest", destPath),
	))
	defer span.End()

	info, err := os.Stat(srcFile)
	if err != nil {
		return newErr(ErrInvalidArgument, "source file does not exist: "+srcFile, err)
	}
	if !info.Mode().IsRegular() {
		return newErr(ErrInvalidArgument, "source is not a regular file: "+srcFile, nil)
	}

	data, err := os.ReadFile(srcFile)
	if err != nil {
		return newErr(ErrGeneric, "read source file", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: baseName(destPath),
		Mode: int64(info.Mode().Perm()),
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return newErr(ErrGeneric, "write tar header", err)
	}
	if _, err := tw.Write(data); err != nil {
		return newErr(ErrGeneric, "write tar body", err)
	}
	if err := tw.Close(); err != nil {
		return newErr(ErrGeneric, "close tar archive", err)
	}

	destDir := dirName(destPath)
	if err := e.cli.CopyToContainer(ctx, handle.ID, destDir, &buf, dockercontainer.CopyToContainerOptions{}); err != nil {
		span.RecordError(err)
		return newErr(ErrGeneric, "copy to container", err)
	}
	return nil
}

func (e *Engine) Run(ctx context.Context, spec ContainerSpec, sink LogSink, attach bool) (ContainerRunResult, error) {
	if err := e.EnsureImageAvailable(ctx, spec.Image, PullIfNotPresent); err != nil {
		return ContainerRunResult{}, err
	}
	handle, err := e.Create(ctx, spec)
	if err != nil {
		return ContainerRunResult{}, err
	}
	startedAt := time.Now().UTC()

	runErr := func() error {
		if err := e.Start(ctx, handle); err != nil {
			return err
		}
		if attach {
			e.StreamLogs(ctx, handle, sink, false)
		}
		return nil
	}()
	if runErr != nil {
		_ = e.Remove(ctx, handle, true)
		return ContainerRunResult{}, runErr
	}

	exitCode, waitErr := e.Wait(ctx, handle)
	finishedAt := time.Now().UTC()
	if spec.RemoveAfterExit {
		_ = e.Remove(ctx, handle, true)
	}
	if waitErr != nil {
		return ContainerRunResult{Handle: handle, StartedAt: startedAt, FinishedAt: finishedAt}, waitErr
	}
	return ContainerRunResult{
		Handle:     handle,
		ExitCode:   exitCode,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

type stdoutSinkWriter struct{ sink LogSink }

func (w stdoutSinkWriter) Write(p []byte) (int, error) {
	if err := w.sink.WriteStdout(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type stderrSinkWriter struct{ sink LogSink }

func (w stderrSinkWriter) Write(p []byte) (int, error) {
	if err := w.sink.WriteStderr(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func dirName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			if i == 0 {
				return "/"
			}
			return p[:i]
		}
	}
	return "."
}
