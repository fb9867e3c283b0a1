package buildroot

import (
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/hub"
)

// ExtractBuildRequiresFromSRPM shells out to `rpm -qp --requires` and
// keeps only the package-name part of each BuildRequires clause,
// dropping version constraints.
func ExtractBuildRequiresFromSRPM(srpmPath string) ([]string, error) {
	out, err := exec.Command("rpm", "-qp", "--requires", srpmPath).Output()
	if err != nil {
		return nil, err
	}

	var result []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "BuildRequires:") {
			continue
		}
		reqLine := strings.TrimSpace(strings.TrimPrefix(line, "BuildRequires:"))
		fields := strings.Fields(reqLine)
		if len(fields) > 0 {
			result = append(result, fields[0])
		}
	}
	return result, nil
}

// splitPackageList splits a buildroot_packages value that may be a
// whitespace- or comma-delimited string: commas are normalized to
// spaces, then the result is split on whitespace.
func splitPackageList(s string) []string {
	normalized := strings.ReplaceAll(s, ",", " ")
	return strings.Fields(normalized)
}

// GetBuildrootPackages reads install groups, extra packages, and
// tag-defined buildroot_packages from the hub.
func GetBuildrootPackages(ctx context.Context, session hub.Session, tagID int, tagName string, eventID *int) []string {
	var packages []string

	bc, err := session.GetBuildConfig(ctx, tagName, eventID)
	if err != nil || bc == nil {
		logrus.WithError(err).WithField("tag_id", tagID).Warn("failed to get build config for buildroot packages")
		return packages
	}

	packages = append(packages, bc.ExtraPackages...)

	tag, err := session.GetTag(ctx, tagName, eventID, true)
	if err == nil && tag != nil {
		if raw, ok := tag.Extra["buildroot_packages"]; ok {
			switch v := raw.(type) {
			case []string:
				packages = append(packages, v...)
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						packages = append(packages, s)
					}
				}
			case string:
				packages = append(packages, splitPackageList(v)...)
			}
		}
	}

	for _, group := range bc.InstallGroups {
		packages = append(packages, "@"+group)
	}

	return packages
}

// ResolveBuildDependencies unions SRPM BuildRequires with hub-provided
// buildroot packages and returns a sorted, de-duplicated list so
// diagnostic output is stable across runs.
func ResolveBuildDependencies(ctx context.Context, session hub.Session, tagID int, tagName, arch string, srpmPath string, eventID *int) []string {
	deps := map[string]struct{}{}

	if srpmPath != "" {
		if srpmDeps, err := ExtractBuildRequiresFromSRPM(srpmPath); err == nil {
			for _, d := range srpmDeps {
				deps[d] = struct{}{}
			}
		} else {
			logrus.WithError(err).Warn("failed to extract SRPM BuildRequires")
		}
	}

	for _, d := range GetBuildrootPackages(ctx, session, tagID, tagName, eventID) {
		deps[d] = struct{}{}
	}

	return sortedDeps(deps)
}
