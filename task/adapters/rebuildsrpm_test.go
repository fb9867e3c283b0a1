package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/policy"
)

func TestRebuildSRPMHappyPathPicksFirstSRPMAndSkipsValidationGracefully(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "result"), 0o755))
	srpmPath := filepath.Join(workDir, "result", "test-1.0-2.fc40.src.rpm")
	require.NoError(t, os.WriteFile(srpmPath, []byte("srpm-bytes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "work"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "work", "test-1.0-1.src.rpm"), []byte("x"), 0o644))

	sess := setupSession()
	rt := newFakeRuntime()
	a := &RebuildSRPMAdapter{Runtime: rt, Policy: policy.NewResolver(sess), Session: sess}

	tc := newContext(77, workDir, workDir)
	code, result, err := a.Run(context.Background(), tc, RebuildSRPMParams{
		SRPMPath: "work/test-1.0-1.src.rpm",
		BuildTag: "f39-build",
		RepoID:   42,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "result/test-1.0-2.fc40.src.rpm", result.SRPM)
	assert.Equal(t, int64(77), result.Brootid)
	assert.Equal(t, "test-1.0-1.src.rpm", result.Source.Source)
}

func TestRebuildSRPMNoOutputIsFailure(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "work"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "work", "test-1.0-1.src.rpm"), []byte("x"), 0o644))

	sess := setupSession()
	rt := newFakeRuntime()
	a := &RebuildSRPMAdapter{Runtime: rt, Policy: policy.NewResolver(sess), Session: sess}

	tc := newContext(78, workDir, workDir)
	code, _, err := a.Run(context.Background(), tc, RebuildSRPMParams{
		SRPMPath: "work/test-1.0-1.src.rpm",
		BuildTag: "f39-build",
		RepoID:   42,
	})

	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
