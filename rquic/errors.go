package rquic

import "fmt"

// StreamErrorCode classifies a [StreamError] per spec §7's error
// taxonomy (items 1 to 3).
type StreamErrorCode string

const (
	// ErrCodeTransient is a transport/server hiccup; the stream's own
	// backoff governs the retry, matching §7 item 1.
	ErrCodeTransient StreamErrorCode = "transient"

	// ErrCodePermanent marks a write the server will never accept as
	// written (§7 item 2): the batch is popped and rejected, not retried.
	ErrCodePermanent StreamErrorCode = "permanent"

	// ErrCodeAborted marks a handshake the server aborted outright
	// (§7 item 3): the stream token is cleared before the next attempt.
	ErrCodeAborted StreamErrorCode = "aborted"
)

// StreamError is the typed error [Datastore.IsPermanentWriteError] and
// [Datastore.IsAborted] classify by Code. The wire format in this package
// has no error frame, and the stream readers never construct a
// StreamError: a failed read reaches OnWatchStreamClose/OnWriteStreamClose
// as the underlying error, and a clean end of stream as nil.
type StreamError struct {
	Code    StreamErrorCode
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("rquic: %s: %s", e.Code, e.Message)
}
