package remotetest

import (
	"context"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// LocalStore is a fake [rtype.LocalStore] backed by an in-memory FIFO of
// mutation batches and a handful of configurable knobs.
type LocalStore struct {
	mu sync.Mutex

	batches []rtype.MutationBatch

	snapshotVersion rtype.SnapshotVersion
	remoteKeys      map[rtype.TargetId]map[rtype.DocumentKey]struct{}
	streamToken     []byte
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		snapshotVersion: rtype.NoSnapshotVersion,
		remoteKeys:      make(map[rtype.TargetId]map[rtype.DocumentKey]struct{}),
	}
}

// QueueBatches appends batches to the FIFO NextMutationBatchAfter serves
// from, in order.
func (l *LocalStore) QueueBatches(batches ...rtype.MutationBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, batches...)
}

func (l *LocalStore) NextMutationBatchAfter(_ context.Context, after rtype.BatchId) (rtype.MutationBatch, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.batches {
		if b.BatchId > after {
			return b, true, nil
		}
	}
	return rtype.MutationBatch{}, false, nil
}

func (l *LocalStore) SetRemoteDocumentKeys(target rtype.TargetId, keys map[rtype.DocumentKey]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteKeys[target] = keys
}

func (l *LocalStore) RemoteDocumentKeys(_ context.Context, target rtype.TargetId) (map[rtype.DocumentKey]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[rtype.DocumentKey]struct{}, len(l.remoteKeys[target]))
	for k := range l.remoteKeys[target] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *LocalStore) SetLastRemoteSnapshotVersion(v rtype.SnapshotVersion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshotVersion = v
}

func (l *LocalStore) LastRemoteSnapshotVersion(context.Context) (rtype.SnapshotVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotVersion, nil
}

func (l *LocalStore) LastStreamToken(context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamToken, nil
}

func (l *LocalStore) SetLastStreamToken(_ context.Context, token []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streamToken = token
	return nil
}
