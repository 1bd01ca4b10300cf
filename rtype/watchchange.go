package rtype

// TargetChangeState is the state carried on a TargetChange message.
type TargetChangeState uint8

const (
	// TargetNoChange leaves the target's caught-up/current status as is.
	TargetNoChange TargetChangeState = iota

	// TargetAdded acknowledges an outbound watch request.
	TargetAdded

	// TargetRemoved acknowledges an outbound unwatch request, or reports
	// a target-scoped error from the server (when Cause is non-nil).
	TargetRemoved

	// TargetCurrent marks the target as caught up with the server as of
	// the change's snapshot version.
	TargetCurrent

	// TargetReset tells the client to discard everything it has
	// accumulated for the target and start over, as if freshly listened.
	TargetReset
)

// WatchChange is the tagged union of messages the watch stream delivers:
// exactly one of TargetChange, DocumentChange, or ExistenceFilterChange is
// non-nil. Encoding the "is-kind-of" check as which field is set (rather
// than a runtime type switch over an empty interface) lets the aggregator
// match on it with a plain switch. Nothing enforces that exactly one field
// is set: the aggregator checks DocumentChange, then TargetChange, then
// ExistenceFilterChange, acts on the first non-nil one, and ignores a
// change with none.
type WatchChange struct {
	TargetChange       *TargetChange
	DocumentChange     *DocumentChange
	ExistenceFilterChange *ExistenceFilterChange
}

// TargetChange reports a state transition for zero or more targets,
// optionally carrying a resume token and/or an error cause.
type TargetChange struct {
	State           TargetChangeState
	TargetIds       []TargetId
	ResumeToken     ResumeToken
	SnapshotVersion SnapshotVersion

	// Cause is set only when State is TargetRemoved and the server is
	// reporting a target-scoped error (as opposed to acknowledging a
	// client-initiated unwatch).
	Cause error
}

// DocumentChange reports that a document was added, modified, or removed
// from the result set of the listed target ids.
type DocumentChange struct {
	Document         Document
	TargetIds        []TargetId
	RemovedTargetIds []TargetId
}

// ExistenceFilterChange reports the server's assertion of the cardinality
// of a single target's current result set.
type ExistenceFilterChange struct {
	TargetId TargetId
	Filter   ExistenceFilter
}

// ExistenceFilter is a server-issued count of documents the target should
// currently be tracking, used to detect client/server drift (§4.4).
type ExistenceFilter struct {
	Count int
}
