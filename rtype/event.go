package rtype

// MappingKind distinguishes how a target's tracked-document mapping
// should be folded into the local store's view: additively/subtractively
// (Update) or wholesale (Reset), per §4.4.
type MappingKind uint8

const (
	// MappingNone means the target-change carried no document mapping.
	MappingNone MappingKind = iota
	// MappingUpdate is additive/subtractive: apply Added then Removed.
	MappingUpdate
	// MappingReset overrides the tracked set entirely with Added.
	MappingReset
)

// DocumentMapping is the per-target added/removed document key set
// produced by folding [DocumentChange]s against a target during one
// aggregator pass.
type DocumentMapping struct {
	Kind    MappingKind
	Added   map[DocumentKey]struct{}
	Removed map[DocumentKey]struct{}
}

// TargetChangeSummary is the per-target outcome of one aggregator pass:
// whether it became current, its mapping, and any resume token the
// server supplied.
type TargetChangeSummary struct {
	Current         bool
	Mapping         DocumentMapping
	ResumeToken     ResumeToken
	SnapshotVersion SnapshotVersion
}

// RemoteEvent is a consistent cut of target/document updates at a single
// snapshot version, ready to be applied by the sync engine.
type RemoteEvent struct {
	SnapshotVersion SnapshotVersion

	// TargetChanges holds one entry per target that is both active and
	// acknowledged (absent from pending-target-responses); unsettled
	// targets are dropped per aggregator step 2.
	TargetChanges map[TargetId]TargetChangeSummary

	// DocumentUpdates maps a document key to its latest known document
	// (or a synthesized deletion), accumulated across every change
	// folded into this event.
	DocumentUpdates map[DocumentKey]Document

	// TargetMismatches lists targets whose tracked remote document count
	// disagreed with a server existence filter (§4.4 step 1). The sync
	// engine must discard cached remote state for these targets.
	TargetMismatches map[TargetId]struct{}
}

// NewRemoteEvent returns an empty event for the given snapshot version.
func NewRemoteEvent(version SnapshotVersion) RemoteEvent {
	return RemoteEvent{
		SnapshotVersion:  version,
		TargetChanges:    make(map[TargetId]TargetChangeSummary),
		DocumentUpdates:  make(map[DocumentKey]Document),
		TargetMismatches: make(map[TargetId]struct{}),
	}
}

// OnExistenceFilterMismatch records target as mismatched in this event.
func (e *RemoteEvent) OnExistenceFilterMismatch(target TargetId) {
	e.TargetMismatches[target] = struct{}{}
}

// AddDocumentUpdate records or overwrites the latest known state of a
// document within this event.
func (e *RemoteEvent) AddDocumentUpdate(doc Document) {
	e.DocumentUpdates[doc.Key] = doc
}
