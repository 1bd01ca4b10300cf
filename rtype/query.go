package rtype

// Purpose records why a target is being listened to. It travels with the
// QueryData handed to [WatchStream.WatchQuery]; the watch subsystem itself
// does not branch on it.
type Purpose uint8

const (
	// PurposeListen is the ordinary, caller-initiated listen.
	PurposeListen Purpose = iota

	// PurposeExistenceFilterMismatch marks the single re-listen request
	// sent after an existence-filter mismatch (§4.4). Only that request
	// carries it; the QueryData stored in the listen-target table keeps its
	// own purpose, so later reconnects are ordinary listens.
	PurposeExistenceFilterMismatch

	// PurposeLimboResolution marks a target created to resolve a
	// document the sync engine suspects is orphaned ("limbo").
	PurposeLimboResolution
)

// Query is an opaque handle to whatever the caller asked to listen to. The
// Remote Store never inspects it beyond carrying it back to the local
// store via [QueryData]; collection-vs-document classification for
// existence-filter reconciliation happens through [Query.IsDocumentQuery].
type Query interface {
	// IsDocumentQuery reports whether this query names exactly one
	// document (as opposed to a collection or collection-group query).
	IsDocumentQuery() bool

	// Path returns the document path this query names. Only meaningful
	// when IsDocumentQuery reports true.
	Path() DocumentKey
}

// QueryData is the record the Remote Store keeps per active target:
// {query, target_id, purpose, snapshot_version, resume_token}.
//
// QueryData is a value type; callers replace entries in the listen-target
// table with the result of WithSnapshot/WithPurpose rather than mutating
// in place, matching I5 (resume tokens are only ever advanced, never
// edited backward in place).
type QueryData struct {
	Query           Query
	TargetId        TargetId
	Purpose         Purpose
	SnapshotVersion SnapshotVersion
	ResumeToken     ResumeToken
}

// NewQueryData returns a fresh QueryData for an ordinary listen, with no
// snapshot or resume token yet.
func NewQueryData(q Query, id TargetId) QueryData {
	return QueryData{
		Query:           q,
		TargetId:        id,
		Purpose:         PurposeListen,
		SnapshotVersion: NoSnapshotVersion,
		ResumeToken:     nil,
	}
}

// WithSnapshot returns a copy of qd with the given snapshot version and
// resume token. Callers are expected to only call this when I5 holds: the
// token is non-empty and version >= qd.SnapshotVersion.
func (qd QueryData) WithSnapshot(version SnapshotVersion, token ResumeToken) QueryData {
	qd.SnapshotVersion = version
	qd.ResumeToken = token
	return qd
}

// WithPurpose returns a copy of qd with Purpose replaced.
func (qd QueryData) WithPurpose(p Purpose) QueryData {
	qd.Purpose = p
	return qd
}

// WithResumeTokenCleared returns a copy of qd with no resume token and no
// snapshot version, forcing a full re-listen. Used by existence-filter
// reconciliation (§4.4) when the local view has drifted from the server.
func (qd QueryData) WithResumeTokenCleared() QueryData {
	qd.SnapshotVersion = NoSnapshotVersion
	qd.ResumeToken = nil
	return qd
}
