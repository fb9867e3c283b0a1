package adapters

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/buildroot"
	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/scm"
	"github.com/koji-project/adjutant/task"
)

// BuildSRPMFromSCMParams are the hub-supplied parameters for
// task.KindBuildSRPMFromSCM.
type BuildSRPMFromSCMParams struct {
	SCMURL   string
	BuildTag string
	RepoID   int
}

// BuildSRPMFromSCMAdapter implements task.KindBuildSRPMFromSCM: checks
// out a git source and builds an SRPM from it. Network is enabled;
// arch is fixed to noarch.
type BuildSRPMFromSCMAdapter struct {
	Runtime container.Runtime
	Policy  *policy.Resolver
	Session hub.Session
}

func (a *BuildSRPMFromSCMAdapter) Run(ctx context.Context, tc task.Context, p BuildSRPMFromSCMParams) (int, task.SRPMResult, error) {
	const arch = "noarch"
	image := a.Policy.ResolveImage(ctx, p.BuildTag, arch, string(task.KindBuildSRPMFromSCM), tc.EventID)

	checkout, err := scm.Dispatch(p.SCMURL)
	if err != nil {
		return 1, task.SRPMResult{}, err
	}

	// Step 1: an empty placeholder SRPM path, so the initializer skips
	// SRPM BuildRequires extraction and resolves only the hub-provided
	// buildroot packages.
	placeholderPath := ""

	init := &buildroot.Initializer{Session: a.Session}
	data, err := init.Initialize(ctx, placeholderPath, p.BuildTag, arch, tc.ContainerWorkDir(), p.RepoID, tc.TaskID, tc.EventID, "", "")
	if err != nil {
		return 1, task.SRPMResult{}, err
	}

	repoHostPath := filepath.Join(tc.WorkDir, "koji.repo")
	macrosHostPath := filepath.Join(tc.WorkDir, "macros.koji")
	if err := writeHostFile(repoHostPath, data.RepoFileContent); err != nil {
		return 1, task.SRPMResult{}, err
	}
	if err := writeHostFile(macrosHostPath, data.MacrosFileContent); err != nil {
		return 1, task.SRPMResult{}, err
	}

	cTopdir := tc.ContainerWorkDir()
	sourceContainerDir := path.Join(cTopdir, "source")

	commitContainerPath := path.Join(cTopdir, "resolved_commit")
	commitHostPath := filepath.Join(tc.WorkDir, "resolved_commit")

	checkoutCmds := scm.CheckoutCommands(checkout, sourceContainerDir)
	revParseCmd := scm.RevParseCommand(sourceContainerDir, commitContainerPath)
	initCommands := append(append([][]string{}, data.InitCommands...), checkoutCmds...)
	initCommands = append(initCommands, revParseCmd)

	env := baseEnv(tc, map[string]string{
		"KOJI_TASK_ID":   itoa64(tc.TaskID),
		"KOJI_BUILD_TAG": p.BuildTag,
		"KOJI_ARCH":      arch,
		"KOJI_REPO_ID":   itoa64(int64(p.RepoID)),
	})

	spec := container.ContainerSpec{
		Image:          image,
		Command:        []string{"sleep", "infinity"},
		Env:            env,
		WorkingDir:     cTopdir,
		Mounts:         mountsFromConfig(tc),
		User:           defaultUser,
		Group:          defaultGroup,
		NetworkEnabled: true,
		Labels:         config.ContainerLabels(),
	}

	sink := sinkFor(ctx, tc)
	files := []fileToCopy{
		{hostPath: repoHostPath, destPath: buildroot.RepoFileDest},
		{hostPath: macrosHostPath, destPath: buildroot.MacrosFileDest},
	}

	buildCmd := detectBuildCommand(sourceContainerDir, cTopdir)

	_, runErr := runExecPattern(ctx, a.Runtime, spec, sink, files, initCommands, buildCmd)
	if runErr != nil {
		return 1, task.SRPMResult{}, runErr
	}

	artifacts, err := classifyArtifacts(tc.SharedRoot, resultDirFor(tc), true)
	if err != nil {
		return 1, task.SRPMResult{}, err
	}
	if len(artifacts.SRPMs) == 0 {
		return 1, task.SRPMResult{}, fmt.Errorf("build produced no SRPM")
	}
	srpmOut := artifacts.SRPMs[0]

	basename := path.Base(checkout.URL)

	commit := checkout.Commit
	if resolved, err := scm.ReadResolvedCommit(commitHostPath); err != nil {
		logrus.WithError(err).WithField("task_id", tc.TaskID).Warn("failed to read resolved commit, falling back to URL fragment")
	} else {
		commit = resolved
	}

	return 0, task.SRPMResult{
		SRPM:    srpmOut,
		Logs:    artifacts.Logs,
		Brootid: tc.TaskID,
		Source: task.SourceInfo{
			Source: basename,
			URL:    checkout.URL,
			Commit: commit,
			Branch: checkout.Branch,
		},
	}, nil
}

// detectBuildCommand emits a single in-container shell step that
// prefers `make -C <source> srpm` when the checked-out Makefile
// defines a "srpm:" target, falling back to rpmbuild -bs with the
// usual macro set. The choice is made inside the container, after the
// checkout init commands have populated sourceContainerDir — the
// source tree does not exist on the host at command-construction time.
func detectBuildCommand(sourceContainerDir, containerTopdir string) []string {
	makefilePath := path.Join(sourceContainerDir, "Makefile")
	rpmbuild := fmt.Sprintf(
		"rpmbuild -bs --define '_topdir %s' --define '_sourcedir %s' --define '_srcrpmdir %s/result' %s",
		containerTopdir, sourceContainerDir, containerTopdir, path.Join(sourceContainerDir, "*.spec"),
	)
	script := fmt.Sprintf(
		"if [ -f %s ] && grep -q '^srpm:' %s; then make -C %s srpm; else %s; fi",
		makefilePath, makefilePath, sourceContainerDir, rpmbuild,
	)
	return []string{"sh", "-c", script}
}
