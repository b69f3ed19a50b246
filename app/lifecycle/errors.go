package lifecycle

import "errors"

var (
	// ErrNotFound reports a missing post or thread order.
	ErrNotFound = errors.New("post or thread not found")
	// ErrEmptyMessage rejects creating a thread with no text.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrLastThread guards the invariant that every post keeps at least
	// one thread.
	ErrLastThread = errors.New("cannot delete the only thread of a post")
	// ErrInvalidTransition rejects status changes that move backwards,
	// e.g. approving a posted post.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState rejects operations outside their permitted status,
	// e.g. deleting a non-draft post.
	ErrInvalidState = errors.New("operation not permitted in current status")
	// ErrNoOriginLink means auto image capture was requested for a post
	// that is not tied to ingested content.
	ErrNoOriginLink = errors.New("post has no origin content link")
	// ErrImageNotFound means a manually attached image path does not exist
	// on the local filesystem.
	ErrImageNotFound = errors.New("image file not found")
)
