package hub

import "context"

// FakeSession is an in-memory Session test double. It lets
// policy/buildroot/adapter tests exercise hub-dependent code paths
// without a real Koji hub.
type FakeSession struct {
	Tags         map[string]*Tag
	BuildConfigs map[string]*BuildConfig
	Repos        map[int]*RepoInfo
	GetTagErr    error
	GetBCErr     error
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		Tags:         map[string]*Tag{},
		BuildConfigs: map[string]*BuildConfig{},
		Repos:        map[int]*RepoInfo{},
	}
}

func (f *FakeSession) GetTag(_ context.Context, nameOrID string, _ *int, _ bool) (*Tag, error) {
	if f.GetTagErr != nil {
		return nil, f.GetTagErr
	}
	t, ok := f.Tags[nameOrID]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (f *FakeSession) GetBuildConfig(_ context.Context, nameOrID string, _ *int) (*BuildConfig, error) {
	if f.GetBCErr != nil {
		return nil, f.GetBCErr
	}
	bc, ok := f.BuildConfigs[nameOrID]
	if !ok {
		return nil, nil
	}
	return bc, nil
}

func (f *FakeSession) GetRepo(_ context.Context, tagID int, _ *int) (*RepoInfo, error) {
	for _, r := range f.Repos {
		if r.TagID == tagID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *FakeSession) RepoInfo(_ context.Context, repoID int, _ bool) (*RepoInfo, error) {
	r, ok := f.Repos[repoID]
	if !ok {
		return nil, nil
	}
	return r, nil
}
