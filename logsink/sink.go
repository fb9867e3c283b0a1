// Package logsink implements the default container.LogSink: a fan-out
// to a line-oriented logger and an append-mode log file.
package logsink

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileSink fans stdout/stderr chunks out to a *logrus.Entry (decoded
// as UTF-8 with the replacement character, empty lines suppressed)
// and to an append-mode file under the shared-storage log root.
// Either failure path is independent and non-fatal.
type FileSink struct {
	entry *logrus.Entry

	mu   sync.Mutex
	file *os.File
}

// New opens an append-mode log file at path (creating the file, but not
// its parent directories) and returns a FileSink tagged with entry's
// fields. If the file cannot be opened, the sink logs only.
func New(entry *logrus.Entry, path string) *FileSink {
	s := &FileSink{entry: entry}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		entry.WithError(err).WithField("path", path).Warn("could not open task log file, file sink disabled")
		return s
	}
	s.file = f
	return s
}

// Close releases the underlying file handle, if any.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// WriteStdout implements container.LogSink.
func (s *FileSink) WriteStdout(p []byte) error {
	s.write(p, false)
	return nil
}

// WriteStderr implements container.LogSink.
func (s *FileSink) WriteStderr(p []byte) error {
	s.write(p, true)
	return nil
}

func (s *FileSink) write(p []byte, stderr bool) {
	s.logLines(p, stderr)
	s.appendFile(p)
}

func (s *FileSink) logLines(p []byte, stderr bool) {
	text := strings.ToValidUTF8(string(p), "�")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if stderr {
			s.entry.Error(line)
		} else {
			s.entry.Info(line)
		}
	}
}

func (s *FileSink) appendFile(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	if _, err := s.file.Write(p); err != nil {
		s.entry.WithError(err).Warn("task log file write failed")
	}
}
