// Package buildroot turns hub configuration plus an SRPM into the
// in-container package repository, macro, and dependency state needed
// for a reproducible RPM build.
package buildroot

import (
	"context"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/hub"
)

const (
	RepoFileDest   = "/etc/yum.repos.d/koji.repo"
	MacrosFileDest = "/etc/rpm/macros.koji"
)

// InitData is the output bundle of Initialize.
type InitData struct {
	RepoFileContent   string
	RepoFileDest      string
	MacrosFileContent string
	MacrosFileDest    string
	InitCommands      [][]string
	BuildCommand      []string
	Environment       map[string]string
	Dependencies      []string
	TagID             int
	TagName           string
}

// Initializer orchestrates buildroot initialization against a hub
// session.
type Initializer struct {
	Session hub.Session
}

// Initialize computes everything a build needs to start: resolved
// tag, dependency list, repo config, macros/environment, and the
// init/build command sequence. workDir is the container-side work
// directory (e.g. "/work/123"), not a host path.
func (in *Initializer) Initialize(ctx context.Context, srpmPath, buildTag string, arch, workDir string, repoID int, taskID int64, eventID *int, baseURL, dist string) (*InitData, error) {
	tagID, tagName, err := in.resolveTag(ctx, buildTag, eventID)
	if err != nil {
		logrus.WithError(err).Warnf("could not resolve tag %q to id, using as-is", buildTag)
		tagName = buildTag
	}

	deps := ResolveBuildDependencies(ctx, in.Session, tagID, tagName, arch, srpmPath, eventID)

	repoContent, err := GenerateRepoConfig(ctx, in.Session, tagID, tagName, repoID, arch, baseURL)
	if err != nil {
		return nil, fmt.Errorf("generate repo config: %w", err)
	}

	env := SetupEnvironment(workDir, taskID, tagName, arch, repoID, dist)
	macros := GenerateMacros(workDir, dist)
	macrosContent := FormatMacrosFile(macros)

	initCmds := buildInitCommands(workDir, deps)
	srpmFilename := path.Base(srpmPath)
	buildCmd := buildBuildCommand(workDir, srpmFilename, macros)

	return &InitData{
		RepoFileContent:   repoContent,
		RepoFileDest:      RepoFileDest,
		MacrosFileContent: macrosContent,
		MacrosFileDest:    MacrosFileDest,
		InitCommands:      initCmds,
		BuildCommand:      buildCmd,
		Environment:       env,
		Dependencies:      deps,
		TagID:             tagID,
		TagName:           tagName,
	}, nil
}

func (in *Initializer) resolveTag(ctx context.Context, buildTag string, eventID *int) (int, string, error) {
	tag, err := in.Session.GetTag(ctx, buildTag, eventID, true)
	if err != nil {
		return 0, buildTag, err
	}
	if tag == nil {
		return 0, buildTag, fmt.Errorf("tag not found: %s", buildTag)
	}
	return tag.ID, tag.Name, nil
}

// buildInitCommands emits a mkdir step followed by a conditional dnf
// install.
func buildInitCommands(workDir string, deps []string) [][]string {
	cmds := [][]string{
		{"mkdir", "-p",
			path.Join(workDir, "work"),
			path.Join(workDir, "build"),
			path.Join(workDir, "BUILDROOT"),
			path.Join(workDir, "result"),
		},
	}
	if len(deps) > 0 {
		install := []string{
			"dnf", "install", "-y",
			"--setopt=install_weak_deps=False",
			"--setopt=skip_missing_names_on_install=False",
			"--setopt=keepcache=True",
		}
		cmds = append(cmds, append(install, deps...))
	}
	return cmds
}

// buildBuildCommand assembles the rpmbuild --rebuild invocation with
// one --define flag per macro, in a fixed order.
func buildBuildCommand(workDir, srpmFilename string, macros Macros) []string {
	srpmPath := path.Join(workDir, "work", srpmFilename)
	cmd := []string{"rpmbuild", "--rebuild", srpmPath}
	asMap := macros.asMap()
	for _, name := range orderedNames {
		cmd = append(cmd, "--define", fmt.Sprintf("%s %s", name, asMap[name]))
	}
	return cmd
}
