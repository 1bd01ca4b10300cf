// Package remotetest holds hand-written fakes for the four external
// collaborators described in spec §6 (LocalStore, Datastore, WatchStream/
// WriteStream, SyncEngine), in the same spirit as the teacher's
// dragontest/wingspantest/dquictest/dcerttest fixture packages: one
// package holding the fixtures every other package's tests import.
package remotetest

import (
	"context"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// WatchStream is a fake [rtype.WatchStream] that records every call and
// lets tests drive the delegate callbacks directly, simulating the
// server's side of the wire protocol.
type WatchStream struct {
	mu sync.Mutex

	started bool
	open    bool
	idle    int

	delegate rtype.WatchStreamDelegate

	WatchCalls   []rtype.QueryData
	UnwatchCalls []rtype.TargetId

	// WatchErr, if set, is returned from every WatchQuery call.
	WatchErr error
}

func NewWatchStream() *WatchStream {
	return &WatchStream{}
}

func (f *WatchStream) Start(delegate rtype.WatchStreamDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.delegate = delegate
}

func (f *WatchStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.open = false
}

func (f *WatchStream) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *WatchStream) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *WatchStream) MarkIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle++
}

func (f *WatchStream) IdleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}

func (f *WatchStream) WatchQuery(_ context.Context, qd rtype.QueryData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WatchCalls = append(f.WatchCalls, qd)
	return f.WatchErr
}

func (f *WatchStream) UnwatchTarget(_ context.Context, target rtype.TargetId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UnwatchCalls = append(f.UnwatchCalls, target)
	return nil
}

// SimulateOpen marks the stream open and fires OnWatchStreamOpen.
func (f *WatchStream) SimulateOpen() {
	f.mu.Lock()
	f.open = true
	d := f.delegate
	f.mu.Unlock()
	d.OnWatchStreamOpen()
}

// SimulateChange fires OnWatchStreamChange.
func (f *WatchStream) SimulateChange(change rtype.WatchChange, snapshotVersion rtype.SnapshotVersion) {
	f.mu.Lock()
	d := f.delegate
	f.mu.Unlock()
	d.OnWatchStreamChange(change, snapshotVersion)
}

// SimulateClose marks the stream closed and fires OnWatchStreamClose.
func (f *WatchStream) SimulateClose(err error) {
	f.mu.Lock()
	f.open = false
	f.started = false
	d := f.delegate
	f.mu.Unlock()
	d.OnWatchStreamClose(err)
}
