// Package rquic is a concrete [rtype.Datastore] backed by a pair of
// QUIC bidirectional streams, one per spec §6 WatchStream/WriteStream.
// Frames are length-prefixed and JSON-encoded: §6 treats wire encoding
// as out of scope for the core, so this package only needs *a*
// realizable encoding, not a performance-tuned one, grounded on the
// teacher's dquic stream wrapping.
package rquic

import (
	"github.com/nimbusdb/remote/rtype"
)

// wireTargetChangeState mirrors rtype.TargetChangeState for JSON framing.
type wireTargetChangeState = rtype.TargetChangeState

// wireTargetChange mirrors rtype.TargetChange. Cause is flattened to a
// message string since error values do not round-trip through JSON.
type wireTargetChange struct {
	State           wireTargetChangeState `json:"state"`
	TargetIds       []rtype.TargetId      `json:"targetIds,omitempty"`
	ResumeToken     []byte                `json:"resumeToken,omitempty"`
	SnapshotVersion rtype.SnapshotVersion `json:"snapshotVersion"`
	Cause           string                `json:"cause,omitempty"`
}

type wireDocument struct {
	Key     rtype.DocumentKey     `json:"key"`
	Version rtype.SnapshotVersion `json:"version"`
	Deleted bool                  `json:"deleted"`
	Fields  map[string]any        `json:"fields,omitempty"`
}

type wireDocumentChange struct {
	Document         wireDocument     `json:"document"`
	TargetIds        []rtype.TargetId `json:"targetIds,omitempty"`
	RemovedTargetIds []rtype.TargetId `json:"removedTargetIds,omitempty"`
}

type wireExistenceFilterChange struct {
	TargetId rtype.TargetId `json:"targetId"`
	Count    int            `json:"count"`
}

// wireWatchMessage is the single envelope type multiplexed over a watch
// stream in both directions. Exactly one payload field is set per
// message, the wire equivalent of rtype.WatchChange's tagged union.
type wireWatchMessage struct {
	// Outbound only (client -> server).
	WatchQuery   *wireQueryData  `json:"watchQuery,omitempty"`
	UnwatchTarget *rtype.TargetId `json:"unwatchTarget,omitempty"`

	// Inbound only (server -> client); SnapshotVersion is the out-of-band
	// value OnWatchStreamChange takes as its second argument, carried
	// alongside whichever Change payload below is set.
	SnapshotVersion *rtype.SnapshotVersion    `json:"snapshotVersion,omitempty"`
	TargetChange    *wireTargetChange         `json:"targetChange,omitempty"`
	DocumentChange  *wireDocumentChange       `json:"documentChange,omitempty"`
	ExistenceFilter *wireExistenceFilterChange `json:"existenceFilter,omitempty"`
}

// wireQueryData mirrors rtype.QueryData. QueryPayload is whatever the
// configured QueryCodec produced for the opaque rtype.Query; rquic never
// interprets it beyond carrying it across the wire.
type wireQueryData struct {
	TargetId        rtype.TargetId        `json:"targetId"`
	Purpose         rtype.Purpose         `json:"purpose"`
	SnapshotVersion rtype.SnapshotVersion `json:"snapshotVersion"`
	ResumeToken     []byte                `json:"resumeToken,omitempty"`
	QueryPayload    []byte                `json:"queryPayload,omitempty"`
}

func toWireDocument(d rtype.Document) wireDocument {
	return wireDocument{Key: d.Key, Version: d.Version, Deleted: d.Deleted, Fields: d.Fields}
}

func (d wireDocument) toDocument() rtype.Document {
	return rtype.Document{Key: d.Key, Version: d.Version, Deleted: d.Deleted, Fields: d.Fields}
}

// wireWriteMessage is the single envelope type multiplexed over a write
// stream in both directions. StreamToken is used in both directions: on
// an outbound Handshake it carries whatever token local_store had
// persisted (possibly nil, for a brand new stream); on an inbound
// HandshakeComplete it carries the token the server issued.
type wireWriteMessage struct {
	// Outbound only.
	Handshake bool               `json:"handshake,omitempty"`
	Mutations *wireMutationBatch `json:"mutations,omitempty"`

	// Both directions.
	StreamToken []byte `json:"streamToken,omitempty"`

	// Inbound only.
	HandshakeComplete bool               `json:"handshakeComplete,omitempty"`
	Response          *wireWriteResponse `json:"response,omitempty"`
}

type wireMutation struct {
	Path   rtype.DocumentKey `json:"path"`
	Fields map[string]any    `json:"fields,omitempty"`
}

type wireMutationBatch struct {
	BatchId   rtype.BatchId  `json:"batchId"`
	Mutations []wireMutation `json:"mutations,omitempty"`
}

func toWireMutationBatch(b rtype.MutationBatch) wireMutationBatch {
	muts := make([]wireMutation, len(b.Mutations))
	for i, m := range b.Mutations {
		muts[i] = wireMutation{Path: m.Path, Fields: m.Fields}
	}
	return wireMutationBatch{BatchId: b.BatchId, Mutations: muts}
}

type wireWriteResponse struct {
	CommitVersion rtype.SnapshotVersion `json:"commitVersion"`
	Results       []wireMutationResult  `json:"results,omitempty"`
}

type wireMutationResult struct {
	Version rtype.SnapshotVersion `json:"version"`
}
