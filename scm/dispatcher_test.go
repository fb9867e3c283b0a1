package scm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURLNoFragmentDefaultsToMain(t *testing.T) {
	c, err := ParseURL("https://github.com/example/proj.git")
	require.NoError(t, err)
	assert.Equal(t, "main", c.Ref)
	assert.Equal(t, RefBranch, c.RefType)
	assert.Equal(t, "main", c.Branch)
}

func TestParseURLCommitFragment(t *testing.T) {
	c, err := ParseURL("https://github.com/example/proj.git#abc1234")
	require.NoError(t, err)
	assert.Equal(t, RefCommit, c.RefType)
	assert.Equal(t, "abc1234", c.Commit)
}

func TestParseURLTagFragments(t *testing.T) {
	for _, ref := range []string{"v1.2.3", "2.0.1"} {
		c, err := ParseURL("git://example.com/proj#" + ref)
		require.NoError(t, err)
		assert.Equal(t, RefTag, c.RefType, "ref %q should classify as tag", ref)
	}
}

func TestParseURLBranchFragment(t *testing.T) {
	c, err := ParseURL("https://gitlab.com/example/proj#feature/widget")
	require.NoError(t, err)
	assert.Equal(t, RefBranch, c.RefType)
	assert.Equal(t, "feature/widget", c.Branch)
}

func TestParseURLUnsupportedScheme(t *testing.T) {
	_, err := ParseURL("svn://example.com/repo")
	assert.ErrorAs(t, err, &ErrUnsupportedSCM{})
}

func TestCheckoutCommandsCommitUsesFullCloneThenCheckout(t *testing.T) {
	c := &Checkout{URL: "https://github.com/example/proj.git", Commit: "deadbeef", RefType: RefCommit}
	cmds := CheckoutCommands(c, "/work/1/source")
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"git", "clone", c.URL, "/work/1/source"}, cmds[0])
	assert.Equal(t, []string{"git", "-C", "/work/1/source", "checkout", "deadbeef"}, cmds[1])
}

func TestCheckoutCommandsBranchUsesShallowClone(t *testing.T) {
	c := &Checkout{URL: "https://github.com/example/proj.git", Ref: "main", RefType: RefBranch, Branch: "main"}
	cmds := CheckoutCommands(c, "/work/1/source")
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"git", "clone", "--depth", "1", "--branch", "main", c.URL, "/work/1/source"}, cmds[0])
}

func TestReadResolvedCommitTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commit.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc123\n"), 0o644))

	commit, err := ReadResolvedCommit(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", commit)
}
