package rtype

// TargetId is assigned by the sync engine and uniquely identifies a listen.
type TargetId int32

// SnapshotVersion is a logical timestamp, non-decreasing across watch
// messages successfully forwarded to the sync engine.
//
// NoSnapshotVersion is the sentinel "no version" value: a [TargetChange] or
// flush carrying it is never consistent enough to emit.
type SnapshotVersion int64

// NoSnapshotVersion is the sentinel meaning "no version is known yet".
const NoSnapshotVersion SnapshotVersion = -1

// Less reports whether v is strictly less than other.
func (v SnapshotVersion) Less(other SnapshotVersion) bool {
	return v < other
}

// BatchId identifies a [MutationBatch] and is assigned by the local store.
//
// UnknownBatchId is the sentinel for "no batch has been seen yet",
// restored on every user change so the pipeline refills from the new
// user's mutations.
type BatchId int64

// UnknownBatchId is the sentinel LastBatchSeen value before any batch has
// been handed to the write pipeline, and immediately after a user change.
const UnknownBatchId BatchId = -1

// DocumentKey identifies a single document in the remote store's
// namespace. The concrete encoding (collection path + document id) is an
// external-store concern; the Remote Store only needs key equality and
// ordering for set membership.
type DocumentKey string

// ResumeToken is an opaque, server-issued blob that lets a reconnecting
// watch stream resume from the last acknowledged snapshot. The zero value
// (empty slice) means "no token yet".
type ResumeToken []byte

// Empty reports whether the token carries no resume information.
func (t ResumeToken) Empty() bool {
	return len(t) == 0
}
