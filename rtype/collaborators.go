package rtype

import "context"

// LocalStore is the persistence layer the Remote Store reads and writes
// through. Its implementation is out of scope for this module; only the
// contract is.
type LocalStore interface {
	// NextMutationBatchAfter returns the first queued mutation batch with
	// a BatchId greater than after, or ok==false if none is queued.
	// Monotone in after.
	NextMutationBatchAfter(ctx context.Context, after BatchId) (batch MutationBatch, ok bool, err error)

	// RemoteDocumentKeys returns the set of document keys the local
	// store currently believes target is tracking from the server.
	RemoteDocumentKeys(ctx context.Context, target TargetId) (map[DocumentKey]struct{}, error)

	// LastRemoteSnapshotVersion returns the most recent snapshot version
	// the local store has durably applied.
	LastRemoteSnapshotVersion(ctx context.Context) (SnapshotVersion, error)

	// LastStreamToken returns the persisted write-stream token, or nil
	// if none is stored.
	LastStreamToken(ctx context.Context) ([]byte, error)

	// SetLastStreamToken persists token verbatim; a nil token clears it.
	SetLastStreamToken(ctx context.Context, token []byte) error
}

// Datastore is the transport factory and error classifier. Its
// implementation (including wire encoding) is out of scope for this
// module; only the contract is. See package rquic for a concrete
// QUIC-backed instance.
type Datastore interface {
	CreateWatchStream() WatchStream
	CreateWriteStream() WriteStream

	// IsPermanentWriteError reports whether err should be surfaced to the
	// caller instead of retried.
	IsPermanentWriteError(err error) bool

	// IsAborted reports whether err indicates the backend aborted the
	// operation outright (distinct from a plain permanent error, per
	// §4.5 handle_handshake_error).
	IsAborted(err error) bool

	// CreateTransaction returns a new Transaction bound directly to the
	// backend, independent of the watch/write streams (§4.6 transaction()).
	CreateTransaction(ctx context.Context) (Transaction, error)
}

// Transaction is an opaque handle to a backend-native transaction. The
// Remote Store only brokers its creation; it never inspects or drives
// one, since transactions run outside the watch/write streams entirely.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WatchStream is the bidirectional stream of listen/unlisten requests and
// server-pushed watch changes. Its delegate methods (WatchStreamDelegate)
// are called back into the Remote Store as events arrive.
type WatchStream interface {
	Start(delegate WatchStreamDelegate)
	Stop()
	IsStarted() bool
	IsOpen() bool

	// MarkIdle hints that the transport may close the connection if it
	// stays idle, used when no active targets remain.
	MarkIdle()

	WatchQuery(ctx context.Context, qd QueryData) error
	UnwatchTarget(ctx context.Context, target TargetId) error
}

// WatchStreamDelegate receives callbacks from a [WatchStream].
type WatchStreamDelegate interface {
	OnWatchStreamOpen()
	OnWatchStreamChange(change WatchChange, snapshotVersion SnapshotVersion)
	OnWatchStreamClose(err error)
}

// WriteStream is the bidirectional stream used to commit mutation
// batches after a handshake establishes a stream token.
type WriteStream interface {
	Start(delegate WriteStreamDelegate)
	Stop()
	IsStarted() bool
	HandshakeComplete() bool
	LastStreamToken() []byte

	// SetLastStreamToken installs token as the token WriteHandshake sends
	// on the next handshake, and is what LastStreamToken subsequently
	// reports. Used both to load a persisted token at enable_network and
	// to clear it after an aborted/permanent handshake error (§4.5/§7).
	SetLastStreamToken(token []byte)

	WriteHandshake(ctx context.Context) error
	WriteMutations(ctx context.Context, batch MutationBatch) error

	MarkIdle()

	// InhibitBackoff tells the stream that the last failure was
	// request-specific (a permanent write error), not transport trouble,
	// so the next start should not be penalized by backoff.
	InhibitBackoff()
}

// WriteStreamDelegate receives callbacks from a [WriteStream].
type WriteStreamDelegate interface {
	OnWriteStreamOpen()
	OnWriteStreamHandshakeComplete()
	OnWriteStreamResponse(commitVersion SnapshotVersion, results []MutationResult)
	OnWriteStreamClose(err error)
}

// SyncEngine receives the Remote Store's output: consistent remote
// events, listen rejections, and write outcomes. Its implementation
// (conflict resolution, query evaluation, cache writes) is out of scope
// for this module; only the contract is.
type SyncEngine interface {
	ApplyRemoteEvent(event RemoteEvent)
	RejectListen(target TargetId, err error)
	ApplySuccessfulWrite(result MutationBatchResult)
	RejectFailedWrite(batch BatchId, err error)
}

// OnlineStateDelegate is notified of genuine online-state transitions.
// It is optional: the facade detaches it on Shutdown and never calls it
// again afterward.
type OnlineStateDelegate interface {
	OnWatchStreamOnlineStateChanged(state OnlineState)
}

// OnlineState is the health of the watch stream as observed by callers
// such as a pending get() resolving against cached data.
type OnlineState uint8

const (
	OnlineStateUnknown OnlineState = iota
	OnlineStateHealthy
	OnlineStateFailed
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateHealthy:
		return "Healthy"
	case OnlineStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
