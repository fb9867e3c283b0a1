package buildroot

import (
	"context"
	"fmt"
	"strings"

	"github.com/koji-project/adjutant/hub"
)

// defaultBaseURL is used when no topurl/session base is available,
// matching the "/mnt/koji" local fallback in the original source.
const defaultBaseURL = "/mnt/koji"

// RepoDescriptor is the resolved repository metadata needed to render
// the in-container repo file.
type RepoDescriptor struct {
	TagName string
	RepoID  int
	Arch    string
	BaseURL string
}

// GenerateRepoConfig renders the single-section repo file body.
func GenerateRepoConfig(ctx context.Context, session hub.Session, tagID int, tagName string, repoID int, arch string, baseURL string) (string, error) {
	info, err := session.RepoInfo(ctx, repoID, true)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", fmt.Errorf("repo not found: %d", repoID)
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	repoPath := fmt.Sprintf("%s/repos/%s/%d/%s/", strings.TrimRight(baseURL, "/"), tagName, repoID, arch)

	var fullURL string
	if strings.HasPrefix(baseURL, "http") {
		fullURL = repoPath
	} else {
		fullURL = "file://" + repoPath
	}

	return fmt.Sprintf(`[koji-%s]
name=Koji Repository for %s
baseurl=%s
enabled=1
gpgcheck=0
priority=10
skip_if_unavailable=0
`, tagName, tagName, fullURL), nil
}
