package policy

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/hub"
)

// countingSession wraps a FakeSession and counts getTag calls, so
// tests can assert that a cached resolution doesn't re-hit the hub.
type countingSession struct {
	*hub.FakeSession
	getTagCalls int64
}

func (c *countingSession) GetTag(ctx context.Context, nameOrID string, eventID *int, strict bool) (*hub.Tag, error) {
	atomic.AddInt64(&c.getTagCalls, 1)
	return c.FakeSession.GetTag(ctx, nameOrID, eventID, strict)
}

func newSessionWithPolicy(rulesJSON string) *countingSession {
	fs := hub.NewFakeSession()
	fs.Tags["f39-build"] = &hub.Tag{
		ID:   1,
		Name: "f39-build",
		Extra: map[string]any{
			"adjutant_image_policy": rulesJSON,
		},
	}
	fs.Tags["other-tag"] = &hub.Tag{
		ID:   2,
		Name: "other-tag",
		Extra: map[string]any{
			"adjutant_image_policy": rulesJSON,
		},
	}
	return &countingSession{FakeSession: fs}
}

const scenarioPolicy = `{"rules": [
  {"type":"default","image":"D"},
  {"type":"task_type","task_type":"buildArch","image":"B"},
  {"type":"tag","tag":"f39-build","image":"T"},
  {"type":"tag_arch","tag":"f39-build","arch":"x86_64","image":"TA"}
]}`

func setup(t *testing.T) {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)
}

func TestResolvePrecedence(t *testing.T) {
	setup(t)
	sess := newSessionWithPolicy(scenarioPolicy)
	r := NewResolver(sess)
	ctx := context.Background()

	assert.Equal(t, "TA", r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil))
	assert.Equal(t, "T", r.ResolveImage(ctx, "f39-build", "aarch64", "buildArch", nil))
	assert.Equal(t, "B", r.ResolveImage(ctx, "other-tag", "x86_64", "buildArch", nil))
	assert.Equal(t, "D", r.ResolveImage(ctx, "other-tag", "x86_64", "createrepo", nil))
}

func TestResolveCacheFidelity(t *testing.T) {
	setup(t)
	sess := newSessionWithPolicy(scenarioPolicy)
	r := NewResolver(sess)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	}
	r.ResolveImage(ctx, "f39-build", "aarch64", "buildArch", nil)

	assert.Equal(t, int64(2), atomic.LoadInt64(&sess.getTagCalls),
		"expected exactly one hub call per distinct (tag, arch) key")
}

func TestResolveFailedFetchIsNotCached(t *testing.T) {
	setup(t)
	sess := newSessionWithPolicy(scenarioPolicy)
	sess.GetTagErr = assertErr{}
	r := NewResolver(sess)
	ctx := context.Background()

	img := r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	assert.Equal(t, config.TaskImageDefault(), img)

	sess.GetTagErr = nil
	img2 := r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	assert.Equal(t, "TA", img2)
	assert.Equal(t, int64(2), atomic.LoadInt64(&sess.getTagCalls), "failed fetch must not be cached, so retry happens")
}

func TestResolvePolicyDisabledUsesConfigDefault(t *testing.T) {
	setup(t)
	t.Setenv("KOJI_ADJUTANT_POLICY_ENABLED", "false")
	sess := newSessionWithPolicy(scenarioPolicy)
	r := NewResolver(sess)
	img := r.ResolveImage(context.Background(), "f39-build", "x86_64", "buildArch", nil)
	assert.Equal(t, config.TaskImageDefault(), img)
	assert.Equal(t, int64(0), atomic.LoadInt64(&sess.getTagCalls))
}

func TestWrappedAndUnwrappedPolicyEquivalent(t *testing.T) {
	setup(t)
	wrapped := `{"adjutant_image_policy": ` + scenarioPolicy + `}`
	sessA := newSessionWithPolicy(scenarioPolicy)
	sessB := newSessionWithPolicy(wrapped)

	rA := NewResolver(sessA)
	rB := NewResolver(sessB)
	ctx := context.Background()

	imgA := rA.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	imgB := rB.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	assert.Equal(t, imgA, imgB)
}

func TestInvalidateCache(t *testing.T) {
	setup(t)
	sess := newSessionWithPolicy(scenarioPolicy)
	r := NewResolver(sess)
	ctx := context.Background()

	r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	require.Equal(t, int64(1), atomic.LoadInt64(&sess.getTagCalls))

	r.InvalidateCache("f39-build", "x86_64")
	r.ResolveImage(ctx, "f39-build", "x86_64", "buildArch", nil)
	assert.Equal(t, int64(2), atomic.LoadInt64(&sess.getTagCalls))
}

type assertErr struct{}

func (assertErr) Error() string { return "hub unavailable" }
