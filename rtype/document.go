package rtype

// Document is a single document snapshot as known to the Remote Store.
// The Remote Store never interprets field data; it only carries it
// between the watch stream and the sync engine.
type Document struct {
	Key     DocumentKey
	Version SnapshotVersion
	Deleted bool
	Fields  map[string]any
}

// DeletedDocument synthesizes a tombstone for key at version, used both
// for server-confirmed deletes and for existence-filter reconciliation
// against a document query (§4.4).
func DeletedDocument(key DocumentKey, version SnapshotVersion) Document {
	return Document{Key: key, Version: version, Deleted: true}
}
