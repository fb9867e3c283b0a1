package buildroot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koji-project/adjutant/hub"
)

func newFakeSession() *hub.FakeSession {
	fs := hub.NewFakeSession()
	fs.Tags["f39-build"] = &hub.Tag{
		ID:   7,
		Name: "f39-build",
		Extra: map[string]any{
			"buildroot_packages": "gcc, make,  rpm-build",
		},
	}
	fs.BuildConfigs["f39-build"] = &hub.BuildConfig{
		InstallGroups: []string{"build"},
		ExtraPackages: []string{"bash"},
	}
	fs.Repos[42] = &hub.RepoInfo{ID: 42, CreateEvent: 100, TagID: 7}
	return fs
}

func TestInitializeProducesConsistentBundle(t *testing.T) {
	init := &Initializer{Session: newFakeSession()}
	data, err := init.Initialize(context.Background(), "/work/123/work/foo-1-1.src.rpm", "f39-build", "x86_64", "/work/123", 42, 123, nil, "", "")
	require.NoError(t, err)

	assert.Equal(t, 7, data.TagID)
	assert.Equal(t, "f39-build", data.TagName)
	assert.ElementsMatch(t, []string{"@build", "bash", "gcc", "make", "rpm-build"}, data.Dependencies)

	assert.Equal(t, RepoFileDest, data.RepoFileDest)
	assert.Contains(t, data.RepoFileContent, "[koji-f39-build]")

	assert.Equal(t, MacrosFileDest, data.MacrosFileDest)
	roundTrip := ParseMacrosFile(data.MacrosFileContent)
	assert.Equal(t, "/work/123", roundTrip["_topdir"])
	assert.Equal(t, ".almalinux10", roundTrip["dist"])

	require.Len(t, data.InitCommands, 2, "mkdir step plus dnf install since deps are non-empty")
	assert.Equal(t, "mkdir", data.InitCommands[0][0])
	assert.Equal(t, "dnf", data.InitCommands[1][0])

	assert.Equal(t, "rpmbuild", data.BuildCommand[0])
	assert.Equal(t, "--rebuild", data.BuildCommand[1])
	assert.Contains(t, data.BuildCommand, "--define")

	assert.Equal(t, "123", data.Environment["KOJI_TASK_ID"])
	assert.Equal(t, "x86_64", data.Environment["KOJI_ARCH"])
}

func TestInitializeNoDepsSkipsInstallStep(t *testing.T) {
	fs := hub.NewFakeSession()
	fs.Tags["empty-tag"] = &hub.Tag{ID: 9, Name: "empty-tag", Extra: map[string]any{}}
	fs.BuildConfigs["empty-tag"] = &hub.BuildConfig{}
	fs.Repos[1] = &hub.RepoInfo{ID: 1, CreateEvent: 1, TagID: 9}

	init := &Initializer{Session: fs}
	data, err := init.Initialize(context.Background(), "", "empty-tag", "x86_64", "/work/9", 1, 9, nil, "", "")
	require.NoError(t, err)

	assert.Empty(t, data.Dependencies)
	require.Len(t, data.InitCommands, 1, "no packages to install means only the mkdir step")
}

func TestBuildCommandDefinesMacrosInFixedOrder(t *testing.T) {
	macros := GenerateMacros("/work/1", ".fc40")
	cmd := buildBuildCommand("/work/1", "foo-1-1.src.rpm", macros)

	var defines []string
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == "--define" && i+1 < len(cmd) {
			defines = append(defines, cmd[i+1])
		}
	}
	require.Len(t, defines, len(orderedNames))
	for i, name := range orderedNames {
		assert.Contains(t, defines[i], name)
	}
}
