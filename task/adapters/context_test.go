package adapters

import "github.com/koji-project/adjutant/task"

// newContext builds a task.Context rooted at workDir/sharedRoot for
// adapter tests, where the bind-mounted work dir and the
// shared-storage root coincide (a TempDir per test).
func newContext(taskID int64, workDir, sharedRoot string) task.Context {
	return task.Context{
		TaskID:     taskID,
		WorkDir:    workDir,
		SharedRoot: sharedRoot,
		BaseEnv:    map[string]string{},
	}
}
