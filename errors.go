package framegraph

import (
	"errors"
	"fmt"
)

// Sentinel errors. Programmer errors are raised with panic(err) where err
// wraps one of these, so tests can recover and match them with errors.Is.
var (
	// ErrInvalidHandle is raised for a zero Handle or one that does not
	// refer to a resource of the current frame.
	ErrInvalidHandle = errors.New("framegraph: invalid handle")

	// ErrStaleHandle is raised when a handle names a version that a later
	// write has superseded, or a handle from an earlier frame.
	ErrStaleHandle = errors.New("framegraph: stale handle")

	// ErrDoubleWrite is raised when one pass writes the same subresource
	// twice.
	ErrDoubleWrite = errors.New("framegraph: subresource written twice by one pass")

	// ErrAttachmentConflict is raised when a subresource is bound as both a
	// color and a depth attachment, a color slot is bound twice, or a
	// non-graphics pass declares attachments.
	ErrAttachmentConflict = errors.New("framegraph: conflicting attachment")

	// ErrNotCompiled is raised by Execute before Compile.
	ErrNotCompiled = errors.New("framegraph: graph not compiled")

	// ErrWrongPhase is raised for declarations after Compile or a second
	// Compile in one frame.
	ErrWrongPhase = errors.New("framegraph: call not allowed in this phase")
)

func fail(sentinel error, format string, args ...any) {
	panic(fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}
