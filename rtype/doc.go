// Package rtype holds the data model and external collaborator contracts
// shared by the Remote Store subsystems: target identifiers, query
// bookkeeping, the tagged watch-change union, remote events, mutation
// batches, and the interfaces (LocalStore, Datastore, WatchStream,
// WriteStream, SyncEngine, OnlineStateDelegate) that the Remote Store
// depends on but does not implement.
package rtype
