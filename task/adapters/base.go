// Package adapters implements one adapter per task.Kind, each
// translating hub task parameters into a container.ContainerSpec and
// driving execution through container.Runtime using policy, buildroot,
// and scm as needed.
package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/logsink"
	"github.com/koji-project/adjutant/task"
)

const (
	defaultUser  = "builder"
	defaultGroup = "builder"
)

// Artifacts is the classified content of a build's result directory.
type Artifacts struct {
	SRPMs []string
	RPMs  []string
	Logs  []string
}

// mountsFromConfig parses the "src:dst:mode:label" strings config.
// ContainerMounts returns into VolumeMounts, and appends the task's
// own work-directory mount.
func mountsFromConfig(tc task.Context) []container.VolumeMount {
	var mounts []container.VolumeMount
	for _, raw := range config.ContainerMounts() {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 {
			logrus.Warnf("ignoring malformed container mount %q", raw)
			continue
		}
		m := container.VolumeMount{Source: parts[0], Target: parts[1]}
		if len(parts) > 2 {
			m.ReadOnly = parts[2] == "ro"
		}
		if len(parts) > 3 {
			m.Label = parts[3]
		}
		mounts = append(mounts, m)
	}
	mounts = append(mounts, container.VolumeMount{
		Source: tc.WorkDir,
		Target: tc.ContainerWorkDir(),
		Label:  tc.MountLabel,
	})
	return mounts
}

// baseEnv merges the task's base environment with extras, giving
// extras precedence.
func baseEnv(tc task.Context, extra map[string]string) map[string]string {
	env := map[string]string{}
	for k, v := range tc.BaseEnv {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

// pullPolicy translates the configured string into the container
// package's enum, defaulting to if-not-present on an unrecognized
// value.
func pullPolicy() container.ImagePullPolicy {
	switch config.ImagePullPolicy() {
	case string(container.PullAlways):
		return container.PullAlways
	case string(container.PullNever):
		return container.PullNever
	default:
		return container.PullIfNotPresent
	}
}

// execPatternResult is the outcome of runExecPattern: the exit code of
// a failing init command or of the build command, and the container
// handle, retained for diagnostics.
type execPatternResult struct {
	handle   container.ContainerHandle
	exitCode int
}

// execStep is a single exec-pattern command plus a human label used in
// error wrapping.
type execStep struct {
	label   string
	command []string
}

// fileToCopy is one host-to-container file placement performed after
// the container starts and before any exec step runs.
type fileToCopy struct {
	hostPath string
	destPath string
}

// runExecPattern drives the long-lived "sleep infinity" container
// lifecycle common to every adapter that requires buildroot
// initialization: ensure image, create, start, attach a non-following
// log stream, copy config files in, exec init commands in order
// (aborting on the first non-zero exit), exec the build command, and
// force-remove the container on every path.
func runExecPattern(ctx context.Context, rt container.Runtime, spec container.ContainerSpec, sink container.LogSink, files []fileToCopy, initCommands [][]string, buildCommand []string) (execPatternResult, error) {
	if err := rt.EnsureImageAvailable(ctx, spec.Image, pullPolicy()); err != nil {
		return execPatternResult{}, fmt.Errorf("ensure image available: %w", err)
	}

	handle, err := rt.Create(ctx, spec)
	if err != nil {
		return execPatternResult{}, fmt.Errorf("create container: %w", err)
	}

	result := execPatternResult{handle: handle}
	defer func() {
		if rmErr := rt.Remove(ctx, handle, true); rmErr != nil {
			logrus.WithError(rmErr).WithField("container", handle.String()).Warn("force-remove failed")
		}
	}()

	if err := rt.Start(ctx, handle); err != nil {
		return result, fmt.Errorf("start container: %w", err)
	}
	rt.StreamLogs(ctx, handle, sink, false)

	for _, f := range files {
		if err := rt.CopyTo(ctx, handle, f.hostPath, f.destPath); err != nil {
			return result, fmt.Errorf("copy %s: %w", f.hostPath, err)
		}
	}

	for i, cmd := range initCommands {
		code, err := rt.Exec(ctx, handle, cmd, sink, nil)
		if err != nil {
			return result, fmt.Errorf("init command %d (%v): %w", i, cmd, err)
		}
		if code != 0 {
			result.exitCode = code
			return result, fmt.Errorf("init command %d (%v) exited %d", i, cmd, code)
		}
	}

	code, err := rt.Exec(ctx, handle, buildCommand, sink, nil)
	result.exitCode = code
	if err != nil {
		return result, fmt.Errorf("build command: %w", err)
	}
	return result, nil
}

// classifyArtifacts scans resultDir (a host path) and buckets files by
// suffix into srpms, rpms, logs. Paths are returned relative to
// sharedRoot, matching the "work/<task_id>/result/<name>" shape.
func classifyArtifacts(sharedRoot, resultDir string, keepSRPM bool) (Artifacts, error) {
	entries, err := os.ReadDir(resultDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Artifacts{}, nil
		}
		return Artifacts{}, err
	}

	var a Artifacts
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		rel, err := filepath.Rel(sharedRoot, filepath.Join(resultDir, name))
		if err != nil {
			rel = name
		}
		switch {
		case strings.HasSuffix(name, ".src.rpm"):
			if keepSRPM {
				a.SRPMs = append(a.SRPMs, rel)
			}
		case strings.HasSuffix(name, ".rpm"):
			a.RPMs = append(a.RPMs, rel)
		case strings.HasSuffix(name, ".log"):
			a.Logs = append(a.Logs, rel)
		}
	}
	sort.Strings(a.SRPMs)
	sort.Strings(a.RPMs)
	sort.Strings(a.Logs)
	return a, nil
}

func resultDirFor(tc task.Context) string {
	return filepath.Join(tc.WorkDir, "result")
}

func boolEnvString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// sinkFor builds the default log sink for a task: a logrus entry
// tagged with the task id, fanned out to an append-mode file under
// the shared-storage log root.
func sinkFor(ctx context.Context, tc task.Context) container.LogSink {
	entry := logrus.WithField("task_id", tc.TaskID)
	logPath := filepath.Join(tc.SharedRoot, "logs", itoa64(tc.TaskID), "container.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		entry.WithError(err).Warn("could not create task log directory")
	}
	return logsink.New(entry, logPath)
}

// writeHostFile writes content to path (creating parent directories),
// used to place the generated repo and macros files on the host side
// of the bind-mounted work directory before copy-to.
func writeHostFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
