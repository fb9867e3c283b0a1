package adapters

import (
	"context"
	"path/filepath"

	"github.com/koji-project/adjutant/buildroot"
	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/task"
)

// BuildArchParams are the hub-supplied parameters for task.KindBuildArch.
type BuildArchParams struct {
	PackageFilename string
	BuildTag        string
	Arch            string
	KeepSRPM        bool
	RepoID          int
}

// BuildArchAdapter implements task.KindBuildArch: SRPM → RPMs.
type BuildArchAdapter struct {
	Runtime container.Runtime
	Policy  *policy.Resolver
	Session hub.Session
}

// Run drives the build-architecture task to completion. A non-nil
// error is wrapped into the (1, empty result) failure outcome;
// callers should still check err for diagnostics.
func (a *BuildArchAdapter) Run(ctx context.Context, tc task.Context, p BuildArchParams) (int, task.BuildArchResult, error) {
	if p.RepoID == 0 {
		return 1, task.BuildArchResult{}, &container.Error{Kind: container.ErrInvalidArgument, Message: "repo_id is required"}
	}

	image := a.Policy.ResolveImage(ctx, p.BuildTag, p.Arch, string(task.KindBuildArch), tc.EventID)

	init := &buildroot.Initializer{Session: a.Session}
	srpmHostPath := filepath.Join(tc.WorkDir, "work", p.PackageFilename)
	data, err := init.Initialize(ctx, srpmHostPath, p.BuildTag, p.Arch, tc.ContainerWorkDir(), p.RepoID, tc.TaskID, tc.EventID, "", "")
	if err != nil {
		return 1, task.BuildArchResult{}, err
	}

	repoHostPath := filepath.Join(tc.WorkDir, "koji.repo")
	macrosHostPath := filepath.Join(tc.WorkDir, "macros.koji")
	if err := writeHostFile(repoHostPath, data.RepoFileContent); err != nil {
		return 1, task.BuildArchResult{}, err
	}
	if err := writeHostFile(macrosHostPath, data.MacrosFileContent); err != nil {
		return 1, task.BuildArchResult{}, err
	}

	env := baseEnv(tc, map[string]string{
		"KOJI_TASK_ID":   itoa64(tc.TaskID),
		"KOJI_BUILD_TAG": p.BuildTag,
		"KOJI_ARCH":      p.Arch,
		"KOJI_REPO_ID":   itoa64(int64(p.RepoID)),
		"KOJI_KEEP_SRPM": boolEnvString(p.KeepSRPM),
	})

	spec := container.ContainerSpec{
		Image:          image,
		Command:        []string{"sleep", "infinity"},
		Env:            env,
		WorkingDir:     tc.ContainerWorkDir(),
		Mounts:         mountsFromConfig(tc),
		User:           defaultUser,
		Group:          defaultGroup,
		NetworkEnabled: config.NetworkEnabled(),
		Labels:         config.ContainerLabels(),
	}

	sink := sinkFor(ctx, tc)

	files := []fileToCopy{
		{hostPath: repoHostPath, destPath: buildroot.RepoFileDest},
		{hostPath: macrosHostPath, destPath: buildroot.MacrosFileDest},
	}

	_, runErr := runExecPattern(ctx, a.Runtime, spec, sink, files, data.InitCommands, data.BuildCommand)
	if runErr != nil {
		return 1, task.BuildArchResult{}, runErr
	}

	artifacts, err := classifyArtifacts(tc.SharedRoot, resultDirFor(tc), p.KeepSRPM)
	if err != nil {
		return 1, task.BuildArchResult{}, err
	}

	return 0, task.BuildArchResult{
		RPMs:    artifacts.RPMs,
		SRPMs:   artifacts.SRPMs,
		Logs:    artifacts.Logs,
		Brootid: tc.TaskID,
	}, nil
}
