package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/policy"
)

func TestCreaterepoUsesRunConvenienceAndListsRepodata(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	workDir := t.TempDir()
	repodata := filepath.Join(workDir, "repo", "repodata")
	require.NoError(t, os.MkdirAll(repodata, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repodata, "primary.xml.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repodata, "repomd.xml"), []byte("x"), 0o644))

	sess := hub.NewFakeSession()
	rt := newFakeRuntime()
	a := &CreaterepoAdapter{Runtime: rt, Policy: policy.NewResolver(sess)}

	tc := newContext(55, workDir, workDir)
	code, result, err := a.Run(context.Background(), tc, CreaterepoParams{RepoID: 42, Arch: "x86_64"})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.ElementsMatch(t, []string{"primary.xml.gz", "repomd.xml"}, result.Files)
	assert.Equal(t, 0, rt.execCalls, "createrepo uses the run convenience, not the exec pattern")
}

func TestBuildCreaterepoCommandOmitsOptionalFlagsWhenAbsent(t *testing.T) {
	cmd := buildCreaterepoCommand(CreaterepoParams{}, "/work/1/repo")
	assert.Equal(t, []string{"createrepo_c", "--verbose", "-o", "/work/1/repo", "/work/1/repo"}, cmd)
}

func TestBuildCreaterepoCommandAddsPkglistAndRepodir(t *testing.T) {
	cmd := buildCreaterepoCommand(CreaterepoParams{Pkglist: "pkgs.txt", Repodir: "/work/1/repo"}, "/work/1/out")
	assert.Contains(t, cmd, "-i")
	assert.Equal(t, "/work/1/repo", cmd[len(cmd)-1])
}
