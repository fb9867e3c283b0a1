package buildroot

import (
	"fmt"
	"path"
	"sort"
)

// Macros is the RPM macro set for a single build, keyed in
// deterministic emission order.
type Macros struct {
	Dist         string
	Topdir       string
	Builddir     string
	Rpmdir       string
	Srcrpmdir    string
	Sourcedir    string
	Specdir      string
	Buildrootdir string
}

// orderedNames is the emission order for the macros file and for
// --define flags on the build command.
var orderedNames = []string{
	"dist", "_topdir", "_builddir", "_rpmdir", "_srcrpmdir", "_sourcedir", "_specdir", "_buildrootdir",
}

func (m Macros) asMap() map[string]string {
	return map[string]string{
		"dist":          m.Dist,
		"_topdir":       m.Topdir,
		"_builddir":     m.Builddir,
		"_rpmdir":       m.Rpmdir,
		"_srcrpmdir":    m.Srcrpmdir,
		"_sourcedir":    m.Sourcedir,
		"_specdir":      m.Specdir,
		"_buildrootdir": m.Buildrootdir,
	}
}

// GenerateMacros builds the macro set for a build rooted at workDir
// (a container-side path, e.g. "/work/123").
func GenerateMacros(workDir, dist string) Macros {
	if dist == "" {
		dist = ".almalinux10"
	}
	return Macros{
		Dist:         dist,
		Topdir:       workDir,
		Builddir:     path.Join(workDir, "build"),
		Rpmdir:       path.Join(workDir, "result"),
		Srcrpmdir:    path.Join(workDir, "result"),
		Sourcedir:    path.Join(workDir, "work"),
		Specdir:      path.Join(workDir, "work"),
		Buildrootdir: path.Join(workDir, "BUILDROOT"),
	}
}

// FormatMacrosFile renders the macros file body as "%name value" lines,
// terminated by a trailing newline.
func FormatMacrosFile(m Macros) string {
	asMap := m.asMap()
	out := ""
	for _, name := range orderedNames {
		out += fmt.Sprintf("%%%s %s\n", name, asMap[name])
	}
	return out
}

// ParseMacrosFile is the inverse of FormatMacrosFile, used by tests to
// assert the round-trip property.
func ParseMacrosFile(content string) map[string]string {
	out := map[string]string{}
	start := 0
	for start < len(content) {
		end := start
		for end < len(content) && content[end] != '\n' {
			end++
		}
		line := content[start:end]
		start = end + 1
		if len(line) == 0 || line[0] != '%' {
			continue
		}
		line = line[1:]
		sp := -1
		for i, r := range line {
			if r == ' ' {
				sp = i
				break
			}
		}
		if sp < 0 {
			continue
		}
		out[line[:sp]] = line[sp+1:]
	}
	return out
}

// SetupEnvironment computes the environment variables exported into
// the build container.
func SetupEnvironment(workDir string, taskID int64, buildTag, arch string, repoID int, dist string) map[string]string {
	m := GenerateMacros(workDir, dist)
	env := map[string]string{
		"KOJI_TASK_ID":   fmt.Sprintf("%d", taskID),
		"KOJI_BUILD_TAG": buildTag,
		"KOJI_ARCH":      arch,
		"KOJI_REPO_ID":   fmt.Sprintf("%d", repoID),
		"BUILDROOT":      m.Buildrootdir,
		"RPM_BUILD_DIR":  m.Builddir,
		"_topdir":        m.Topdir,
		"LANG":           "en_US.UTF-8",
		"LC_ALL":         "en_US.UTF-8",
		"TZ":             "UTC",
		"HOME":           workDir,
	}
	for name, value := range m.asMap() {
		env["RPM_"+name] = value
	}
	return env
}

// sortedDeps is a small helper kept here (rather than in
// dependencies.go) since it's shared by the dependency resolver and
// any test asserting the round-trip/stable-sort property.
func sortedDeps(deps map[string]struct{}) []string {
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
