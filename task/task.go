// Package task defines the task-execution domain types shared by
// every adapter: the dispatch key, the per-task execution context,
// and the four result envelopes an adapter produces.
package task

import "strconv"

// Kind is the dispatch key selecting which adapter handles a task.
type Kind string

const (
	KindBuildArch        Kind = "buildArch"
	KindCreaterepo       Kind = "createrepo"
	KindRebuildSRPM      Kind = "rebuildSRPM"
	KindBuildSRPMFromSCM Kind = "buildSRPMFromSCM"
)

// Context carries the per-task identity and filesystem layout handed
// to every adapter: task id, absolute host work directory, absolute
// shared-storage root, base environment, and the SELinux-style mount
// label applied to the work-directory mount when set (the
// shared-storage mount takes its label from the configured mounts).
type Context struct {
	TaskID     int64
	WorkDir    string
	SharedRoot string
	BaseEnv    map[string]string
	MountLabel string
	EventID    *int
}

// ContainerWorkDir returns the well-known in-container path the work
// directory is bind-mounted to, derived from the task id.
func (c Context) ContainerWorkDir() string {
	return "/work/" + strconv.FormatInt(c.TaskID, 10)
}

// BuildArchResult is the result envelope for KindBuildArch.
type BuildArchResult struct {
	RPMs    []string `json:"rpms"`
	SRPMs   []string `json:"srpms"`
	Logs    []string `json:"logs"`
	Brootid int64    `json:"brootid"`
}

// CreaterepoResult is the result envelope for KindCreaterepo: an
// upload path paired with the list of files left in the repodata
// directory.
type CreaterepoResult struct {
	UploadPath string   `json:"uploadpath"`
	Files      []string `json:"files"`
}

// SourceInfo describes the provenance of a source archive or SCM
// checkout bundled into an SRPM result.
type SourceInfo struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// SRPMResult is the shared result envelope for KindRebuildSRPM and
// KindBuildSRPMFromSCM.
type SRPMResult struct {
	SRPM    string     `json:"srpm"`
	Logs    []string   `json:"logs"`
	Brootid int64      `json:"brootid"`
	Source  SourceInfo `json:"source"`
}
