// Package hub declares the opaque interface to the Koji build hub that
// this worker consults for tags, build configs, and repo metadata. The
// hub's task-queue transport and RPC wire format are out of scope;
// this package exists only so the policy resolver, buildroot
// initializer, and task adapters have something concrete to depend on
// and fakes can substitute in tests.
package hub

import "context"

// Tag is the subset of hub tag fields this worker consumes.
type Tag struct {
	ID    int
	Name  string
	Extra map[string]any
}

// BuildConfig is the subset of hub build-config fields this worker
// consumes.
type BuildConfig struct {
	InstallGroups []string
	ExtraPackages []string
	Extra         map[string]any
}

// RepoInfo is the subset of hub repo-info fields this worker consumes.
type RepoInfo struct {
	ID          int
	CreateEvent int
	TagID       int
}

// Session is the opaque hub RPC endpoint. Implementations talk
// whatever wire protocol the real hub uses; this worker only needs
// these four calls.
type Session interface {
	GetTag(ctx context.Context, nameOrID string, eventID *int, strict bool) (*Tag, error)
	GetBuildConfig(ctx context.Context, nameOrID string, eventID *int) (*BuildConfig, error)
	GetRepo(ctx context.Context, tagID int, eventID *int) (*RepoInfo, error)
	RepoInfo(ctx context.Context, repoID int, strict bool) (*RepoInfo, error)
}
