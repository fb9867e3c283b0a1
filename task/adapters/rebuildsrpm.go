package adapters

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/buildroot"
	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/task"
)

// RebuildSRPMParams are the hub-supplied parameters for
// task.KindRebuildSRPM.
type RebuildSRPMParams struct {
	SRPMPath string
	BuildTag string
	RepoID   int
}

// RebuildSRPMAdapter implements task.KindRebuildSRPM: SRPM → SRPM with
// dist tags. Buildroot initialization is mandatory and network is
// disabled.
type RebuildSRPMAdapter struct {
	Runtime container.Runtime
	Policy  *policy.Resolver
	Session hub.Session
}

func (a *RebuildSRPMAdapter) Run(ctx context.Context, tc task.Context, p RebuildSRPMParams) (int, task.SRPMResult, error) {
	const arch = "noarch"
	image := a.Policy.ResolveImage(ctx, p.BuildTag, arch, string(task.KindRebuildSRPM), tc.EventID)

	init := &buildroot.Initializer{Session: a.Session}
	srpmHostPath := filepath.Join(tc.WorkDir, p.SRPMPath)
	data, err := init.Initialize(ctx, srpmHostPath, p.BuildTag, arch, tc.ContainerWorkDir(), p.RepoID, tc.TaskID, tc.EventID, "", "")
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

	basename := filepath.Base(p.SRPMPath)
	srpmDest := path.Join(tc.ContainerWorkDir(), "srpm", basename)

	cTopdir := tc.ContainerWorkDir()
	unpackCmd := []string{"rpm", "-ivh", "--define", fmt.Sprintf("_topdir %s", cTopdir), srpmDest}
	rebuildCmd := []string{
		"rpmbuild", "-bs",
		"--define", fmt.Sprintf("_topdir %s", cTopdir),
		"--define", fmt.Sprintf("_sourcedir %s/SOURCES", cTopdir),
		"--define", fmt.Sprintf("_builddir %s/build", cTopdir),
		"--define", fmt.Sprintf("_srcrpmdir %s/result", cTopdir),
		path.Join(cTopdir, "SPECS", "*.spec"),
	}

	initCommands := append(append([][]string{}, data.InitCommands...), unpackCmd)

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
		WorkingDir:     tc.ContainerWorkDir(),
		Mounts:         mountsFromConfig(tc),
		User:           defaultUser,
		Group:          defaultGroup,
		NetworkEnabled: false,
		Labels:         config.ContainerLabels(),
	}

	sink := sinkFor(ctx, tc)
	files := []fileToCopy{
		{hostPath: repoHostPath, destPath: buildroot.RepoFileDest},
		{hostPath: macrosHostPath, destPath: buildroot.MacrosFileDest},
		{hostPath: srpmHostPath, destPath: srpmDest},
	}

	_, runErr := runExecPattern(ctx, a.Runtime, spec, sink, files, initCommands, rebuildCmd)
	if runErr != nil {
		return 1, task.SRPMResult{}, runErr
	}

	artifacts, err := classifyArtifacts(tc.SharedRoot, resultDirFor(tc), true)
	if err != nil {
		return 1, task.SRPMResult{}, err
	}
	if len(artifacts.SRPMs) == 0 {
		return 1, task.SRPMResult{}, fmt.Errorf("rebuild produced no SRPM")
	}
	srpmOut := artifacts.SRPMs[0]
	if len(artifacts.SRPMs) > 1 {
		logrus.WithField("task_id", tc.TaskID).Warnf("rebuild produced %d SRPMs, using first: %s", len(artifacts.SRPMs), srpmOut)
	}

	if err := validateNVR(filepath.Join(tc.SharedRoot, srpmOut)); err != nil {
		return 1, task.SRPMResult{}, err
	}

	return 0, task.SRPMResult{
		SRPM:    srpmOut,
		Logs:    artifacts.Logs,
		Brootid: tc.TaskID,
		Source: task.SourceInfo{
			Source: basename,
			URL:    basename,
		},
	}, nil
}

// validateNVR checks that the rebuilt SRPM's header NVR matches its
// file basename, when the rpm tool is available. Validation is
// skipped (not failed) when the rpm tool cannot be queried.
func validateNVR(srpmPath string) error {
	nvr, err := queryNVR(srpmPath)
	if err != nil {
		logrus.WithError(err).Warn("rpm NVR query unavailable, skipping validation")
		return nil
	}
	base := filepath.Base(srpmPath)
	expected := nvr + ".src.rpm"
	if base != expected {
		return fmt.Errorf("SRPM NVR mismatch: header %q, filename %q", expected, base)
	}
	return nil
}

func queryNVR(srpmPath string) (string, error) {
	if _, err := os.Stat(srpmPath); err != nil {
		return "", err
	}
	out, err := runRPMQuery(srpmPath)
	if err != nil {
		return "", err
	}
	return out, nil
}
