package server

import (
	"errors"
)

var (
	// ErrLookupFailed wraps a follower lookup failure that aborted a tree build. The current
	// artifact is left untouched.
	ErrLookupFailed = errors.New("follower lookup failed")

	// ErrInvalidArtifact if a directly submitted artifact is not a word tree document.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrPublisherClosed if a submission arrives after, or is pending during, shutdown.
	ErrPublisherClosed = errors.New("publisher is closed")
)
