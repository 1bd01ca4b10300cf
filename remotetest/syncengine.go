package remotetest

import (
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// SyncEngine is a fake [rtype.SyncEngine] that records every call it
// receives, for assertion by tests.
type SyncEngine struct {
	mu sync.Mutex

	Events         []rtype.RemoteEvent
	RejectedListen []RejectedListen
	Successes      []rtype.MutationBatchResult
	RejectedWrites []RejectedWrite
}

type RejectedListen struct {
	Target rtype.TargetId
	Err    error
}

type RejectedWrite struct {
	Batch rtype.BatchId
	Err   error
}

func NewSyncEngine() *SyncEngine {
	return &SyncEngine{}
}

func (s *SyncEngine) ApplyRemoteEvent(event rtype.RemoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
}

func (s *SyncEngine) RejectListen(target rtype.TargetId, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RejectedListen = append(s.RejectedListen, RejectedListen{Target: target, Err: err})
}

func (s *SyncEngine) ApplySuccessfulWrite(result rtype.MutationBatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Successes = append(s.Successes, result)
}

func (s *SyncEngine) RejectFailedWrite(batch rtype.BatchId, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RejectedWrites = append(s.RejectedWrites, RejectedWrite{Batch: batch, Err: err})
}
