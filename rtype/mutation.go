package rtype

// Mutation is a single opaque write operation. The Remote Store never
// interprets a mutation's contents; it only batches, orders, and
// retransmits them.
type Mutation struct {
	Path   DocumentKey
	Fields map[string]any
}

// MutationBatch is an atomic group of writes accepted from the local
// store but not yet acknowledged by the backend.
type MutationBatch struct {
	BatchId   BatchId
	Mutations []Mutation
}

// MutationResult is the per-mutation outcome reported by the backend in
// response to a committed batch.
type MutationResult struct {
	Version SnapshotVersion
}

// MutationBatchResult is handed to [SyncEngine.ApplySuccessfulWrite] once
// the backend acknowledges a batch.
type MutationBatchResult struct {
	Batch           MutationBatch
	CommitVersion   SnapshotVersion
	MutationResults []MutationResult
	StreamToken     []byte
}
