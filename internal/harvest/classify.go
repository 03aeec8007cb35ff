package harvest

import (
	"errors"
	"strings"
)

// crashSignatures are fragments of the extraction service's recurring crash:
// unbounded recursion inside its terminal-color wrapper on stdout.
var crashSignatures = []string{
	"maximum recursion depth exceeded",
	"recursion",
	"colorama",
	"ansitowin32.py",
}

// connectivityHints mark failures that may mean the service itself went away.
var connectivityHints = []string{
	"connection",
	"timeout",
}

// Classify decides whether errText carries the known crash signature.
// Matching is case-insensitive substring matching.
func Classify(errText string) FailureKind {
	if containsAny(errText, crashSignatures) {
		return FailureKnownCrash
	}
	return FailureTransient
}

// IsConnectivity reports whether err looks like a transport-level failure
// against the extraction service.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == FailureTransport {
		return true
	}
	return containsAny(err.Error(), connectivityHints)
}

// IsIndexNotFound reports whether an index page failure signals the end of the index.
func IsIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIndexNotFound) {
		return true
	}
	return containsAny(err.Error(), []string{"404", "not found"})
}

func containsAny(text string, fragments []string) bool {
	lower := strings.ToLower(text)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
