package logsink

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesBothLoggerAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "container.log")

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	entry := logger.WithField("task_id", 42)

	s := New(entry, path)
	defer s.Close()

	require.NoError(t, s.WriteStdout([]byte("hello world\n")))
	require.NoError(t, s.WriteStderr([]byte("boom\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
	assert.Contains(t, string(data), "boom")
}

func TestFileSinkEmptyLinesSuppressedInLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "container.log")

	logger := logrus.New()
	var logged bytes.Buffer
	logger.SetOutput(&logged)
	entry := logger.WithField("task_id", 1)
	s := New(entry, path)
	defer s.Close()

	// Should not panic or log empty entries; the append file still
	// receives the raw bytes including blank lines.
	require.NoError(t, s.WriteStdout([]byte("\n\nline\n\n")))
	assert.Equal(t, 1, strings.Count(logged.String(), "\n"), "only the non-empty line is logged")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n\nline\n\n", string(data))
}

func TestFileSinkBadPathDegradesGracefully(t *testing.T) {
	logger := logrus.New()
	entry := logger.WithField("task_id", 1)

	s := New(entry, "/nonexistent-dir-xyz/container.log")
	defer s.Close()

	assert.NoError(t, s.WriteStdout([]byte("still works\n")), "logger path must still succeed when file path fails")
}
