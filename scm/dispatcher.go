// Package scm classifies source-control URLs and produces the
// in-container checkout commands needed to materialize them.
package scm

import (
	"fmt"
	"regexp"
	"strings"
)

// RefType is the inferred kind of a git ref fragment.
type RefType string

const (
	RefCommit RefType = "commit"
	RefTag    RefType = "tag"
	RefBranch RefType = "branch"
)

// Checkout is the resolved metadata describing a source checkout.
type Checkout struct {
	URL     string
	Commit  string
	Branch  string
	Ref     string
	RefType RefType
}

var (
	gitSchemeRe = regexp.MustCompile(`^(git://|git\+https?://)`)
	gitHostRe   = regexp.MustCompile(`^https?://([^/]*\.)?(github\.com|gitlab\.com)/`)
	gitSuffixRe = regexp.MustCompile(`^https?://.*\.git(#.*)?$`)

	commitHashRe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	versionTagRe = regexp.MustCompile(`^\d+(\.\d+)*`)
)

// ErrUnsupportedSCM is returned when the URL scheme is not recognized.
type ErrUnsupportedSCM struct {
	URL string
}

func (e ErrUnsupportedSCM) Error() string {
	return fmt.Sprintf("unsupported SCM URL: %s", e.URL)
}

// IsGitURL reports whether rawURL (without its fragment) looks like a
// git source.
func IsGitURL(rawURL string) bool {
	base := rawURL
	if idx := strings.Index(base, "#"); idx >= 0 {
		base = base[:idx]
	}
	return gitSchemeRe.MatchString(base) || gitHostRe.MatchString(base) || gitSuffixRe.MatchString(rawURL)
}

// ParseURL splits a scm URL into its base URL and ref, inferring ref
// type from the fragment.
func ParseURL(rawURL string) (*Checkout, error) {
	if !IsGitURL(rawURL) {
		return nil, ErrUnsupportedSCM{URL: rawURL}
	}

	base := rawURL
	ref := ""
	if idx := strings.Index(rawURL, "#"); idx >= 0 {
		base = rawURL[:idx]
		ref = rawURL[idx+1:]
	}

	if ref == "" {
		return &Checkout{URL: base, Ref: "main", RefType: RefBranch, Branch: "main"}, nil
	}

	rt := classifyRef(ref)
	c := &Checkout{URL: base, Ref: ref, RefType: rt}
	switch rt {
	case RefCommit:
		c.Commit = ref
	case RefBranch:
		c.Branch = ref
	}
	return c, nil
}

func classifyRef(ref string) RefType {
	if commitHashRe.MatchString(ref) {
		return RefCommit
	}
	if strings.HasPrefix(ref, "v") || versionTagRe.MatchString(ref) {
		return RefTag
	}
	return RefBranch
}

// CheckoutCommands returns the in-container command sequence needed
// to materialize the checkout at destDir: a full clone plus explicit
// checkout for commits, a shallow single-branch clone for branches
// and tags.
func CheckoutCommands(c *Checkout, destDir string) [][]string {
	if c.RefType == RefCommit {
		return [][]string{
			{"git", "clone", c.URL, destDir},
			{"git", "-C", destDir, "checkout", c.Commit},
		}
	}
	return [][]string{
		{"git", "clone", "--depth", "1", "--branch", c.Ref, c.URL, destDir},
	}
}

// RevParseCommand returns the command whose stdout, captured via a
// redirect into a file beneath the bind-mounted work dir, yields the
// resolved commit hash for destDir. Commit resolution goes through a
// file write/read rather than direct exec-output capture.
func RevParseCommand(destDir, outputPath string) []string {
	return []string{"sh", "-c", fmt.Sprintf("git -C %s rev-parse HEAD > %s", destDir, outputPath)}
}
