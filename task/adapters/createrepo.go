package adapters

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/task"
)

// CreaterepoParams are the hub-supplied parameters for
// task.KindCreaterepo.
type CreaterepoParams struct {
	RepoID    int
	Arch      string
	OldRepo   string
	Pkglist   string
	Groupdata string
	Repodir   string
}

// CreaterepoAdapter implements task.KindCreaterepo: a single
// createrepo_c invocation against a repo directory.
type CreaterepoAdapter struct {
	Runtime container.Runtime
	Policy  *policy.Resolver
}

// Run invokes createrepo_c with a single command-in-container run
// (the "run convenience", not the exec pattern).
func (a *CreaterepoAdapter) Run(ctx context.Context, tc task.Context, p CreaterepoParams) (int, task.CreaterepoResult, error) {
	image := a.Policy.ResolveImage(ctx, "", p.Arch, string(task.KindCreaterepo), tc.EventID)

	outputDir := filepath.Join(tc.ContainerWorkDir(), "repo")
	cmd := buildCreaterepoCommand(p, outputDir)

	spec := container.ContainerSpec{
		Image:          image,
		Command:        cmd,
		Env:            baseEnv(tc, nil),
		WorkingDir:     tc.ContainerWorkDir(),
		Mounts:         mountsFromConfig(tc),
		User:           defaultUser,
		Group:          defaultGroup,
		NetworkEnabled: config.NetworkEnabled(),
		Labels:         config.ContainerLabels(),
	}

	sink := sinkFor(ctx, tc)
	runResult, err := a.Runtime.Run(ctx, spec, sink, true)
	if err != nil {
		return 1, task.CreaterepoResult{}, err
	}
	if runResult.ExitCode != 0 {
		return runResult.ExitCode, task.CreaterepoResult{}, nil
	}

	files, err := listRepodataFiles(filepath.Join(tc.WorkDir, "repo", "repodata"))
	if err != nil {
		return 1, task.CreaterepoResult{}, err
	}

	uploadPath := filepath.Join("work", itoa64(tc.TaskID), "repo")
	return 0, task.CreaterepoResult{UploadPath: uploadPath, Files: files}, nil
}

// buildCreaterepoCommand assembles the createrepo_c invocation:
// verbose, explicit output dir, -i only when a pkglist is given, -g
// when groupdata exists, --update (and --skip-stat) when an old repo
// dir exists; final positional is the repo directory when a pkglist
// is present, otherwise the output dir.
func buildCreaterepoCommand(p CreaterepoParams, outputDir string) []string {
	cmd := []string{"createrepo_c", "--verbose", "-o", outputDir}
	if p.Pkglist != "" {
		cmd = append(cmd, "-i", p.Pkglist)
	}
	if p.Groupdata != "" {
		if _, err := os.Stat(p.Groupdata); err == nil {
			cmd = append(cmd, "-g", p.Groupdata)
		}
	}
	if p.OldRepo != "" {
		if info, err := os.Stat(p.OldRepo); err == nil && info.IsDir() {
			cmd = append(cmd, "--update", "--skip-stat")
		}
	}
	if p.Pkglist != "" && p.Repodir != "" {
		cmd = append(cmd, p.Repodir)
	} else {
		cmd = append(cmd, outputDir)
	}
	return cmd
}

func listRepodataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
