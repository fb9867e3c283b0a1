package scm

import (
	"os"
	"strings"
)

// ReadResolvedCommit reads the commit hash written by the
// RevParseCommand redirect at hostOutputPath (the host-side path
// corresponding to the in-container redirect target, reached through
// the bind-mounted work dir).
func ReadResolvedCommit(hostOutputPath string) (string, error) {
	data, err := os.ReadFile(hostOutputPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Dispatch resolves a raw SCM URL into a Checkout, returning
// ErrUnsupportedSCM for anything that isn't recognized as a git
// source. It is the single entry point adapters call before emitting
// checkout commands.
func Dispatch(rawURL string) (*Checkout, error) {
	return ParseURL(rawURL)
}
