// Package watch implements the watch subsystem (§4.2): lifecycle of
// listen targets, watch-stream (re)start, and existence-filter
// reconciliation (§4.4). It consumes the pure [aggregator.Aggregate]
// function to turn accumulated raw changes into a [rtype.RemoteEvent].
//
// Subsystem is not goroutine-safe: like the teacher's wsi.Session, all
// of its methods are meant to run on a single executor owned by the
// caller (here, the Remote Store facade).
package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimbusdb/remote/aggregator"
	"github.com/nimbusdb/remote/onlinestate"
	"github.com/nimbusdb/remote/rtype"
)

// Subsystem owns the listen-target table, pending-target-responses map,
// and accumulated-changes buffer described in §3, and implements the
// watch-side operations of §4.2 and the existence-filter reconciliation
// of §4.4.
type Subsystem struct {
	log *slog.Logger

	localStore rtype.LocalStore
	syncEngine rtype.SyncEngine
	online     *onlinestate.Machine

	stream rtype.WatchStream

	listenTargets          map[rtype.TargetId]rtype.QueryData
	pendingTargetResponses map[rtype.TargetId]int
	accumulatedChanges     []rtype.WatchChange
}

// New returns an empty Subsystem with no stream attached. Call
// AttachStream (typically from the facade's enable_network) before Listen
// can start a stream.
func New(
	log *slog.Logger,
	localStore rtype.LocalStore,
	syncEngine rtype.SyncEngine,
	online *onlinestate.Machine,
) *Subsystem {
	return &Subsystem{
		log:        log,
		localStore: localStore,
		syncEngine: syncEngine,
		online:     online,

		listenTargets:          make(map[rtype.TargetId]rtype.QueryData),
		pendingTargetResponses: make(map[rtype.TargetId]int),
	}
}

// HasActiveTargets reports whether any target is currently listened to.
func (s *Subsystem) HasActiveTargets() bool {
	return len(s.listenTargets) > 0
}

// IsNetworkEnabled reports whether a stream handle is present, per I1's
// definition of network_enabled.
func (s *Subsystem) IsNetworkEnabled() bool {
	return s.stream != nil
}

// AttachStream installs stream as the subsystem's watch stream and, if
// preconditions hold, starts it. Called by the facade's enable_network.
func (s *Subsystem) AttachStream(ctx context.Context, stream rtype.WatchStream) {
	if s.stream != nil {
		panic("BUG: AttachStream called while a watch stream is already attached")
	}
	s.stream = stream

	if s.shouldStartWatchStream() {
		s.stream.Start(delegateFor(s, ctx))
	}
}

// DetachStream stops the stream (synchronous with respect to future
// callbacks, per §5) and clears transient watch state, per I2. Called by
// the facade's disable_network.
func (s *Subsystem) DetachStream() {
	if s.stream == nil {
		return
	}
	s.stream.Stop()
	s.stream = nil
	s.cleanupWatchState()
}

func (s *Subsystem) cleanupWatchState() {
	s.accumulatedChanges = nil
	s.pendingTargetResponses = make(map[rtype.TargetId]int)
}

func (s *Subsystem) shouldStartWatchStream() bool {
	return s.stream != nil && !s.stream.IsStarted() && s.HasActiveTargets()
}

// Listen adds qd to the listen-target table. Precondition: qd.TargetId
// is not already present (a programmer error per §7 item 6).
func (s *Subsystem) Listen(ctx context.Context, qd rtype.QueryData) {
	if _, ok := s.listenTargets[qd.TargetId]; ok {
		panic(fmt.Sprintf("BUG: duplicate listen for target %d", qd.TargetId))
	}
	s.listenTargets[qd.TargetId] = qd

	switch {
	case s.shouldStartWatchStream():
		s.stream.Start(delegateFor(s, ctx))
	case s.stream != nil && s.stream.IsOpen():
		s.sendWatch(ctx, qd)
	}
}

// Unlisten removes targetId from the listen-target table. Precondition:
// targetId is present (a programmer error per §7 item 6 otherwise).
func (s *Subsystem) Unlisten(ctx context.Context, targetId rtype.TargetId) {
	if _, ok := s.listenTargets[targetId]; !ok {
		panic(fmt.Sprintf("BUG: unlisten of unknown target %d", targetId))
	}
	delete(s.listenTargets, targetId)

	if s.stream != nil && s.stream.IsOpen() {
		s.sendUnwatch(ctx, targetId)
	}
	if !s.HasActiveTargets() && s.stream != nil {
		s.stream.MarkIdle()
	}
}

func (s *Subsystem) sendWatch(ctx context.Context, qd rtype.QueryData) {
	s.pendingTargetResponses[qd.TargetId]++
	if err := s.stream.WatchQuery(ctx, qd); err != nil {
		s.log.Warn("failed to send watch request", "target", qd.TargetId, "err", err)
	}
}

func (s *Subsystem) sendUnwatch(ctx context.Context, target rtype.TargetId) {
	s.pendingTargetResponses[target]++
	if err := s.stream.UnwatchTarget(ctx, target); err != nil {
		s.log.Warn("failed to send unwatch request", "target", target, "err", err)
	}
}

// delegateWithCtx adapts Subsystem to rtype.WatchStreamDelegate, binding
// the context used for any outbound sends the delegate methods trigger
// (re-listen on open, re-listen for existence-filter mismatch).
type delegateWithCtx struct {
	s   *Subsystem
	ctx context.Context
}

func delegateFor(s *Subsystem, ctx context.Context) rtype.WatchStreamDelegate {
	return delegateWithCtx{s: s, ctx: ctx}
}

func (d delegateWithCtx) OnWatchStreamOpen() {
	d.s.onStreamOpen(d.ctx)
}

func (d delegateWithCtx) OnWatchStreamChange(change rtype.WatchChange, snapshotVersion rtype.SnapshotVersion) {
	d.s.onWatchChange(d.ctx, change, snapshotVersion)
}

func (d delegateWithCtx) OnWatchStreamClose(err error) {
	d.s.onStreamClosed(d.ctx, err)
}

// onStreamOpen re-emits a watch request for every target in the listen
// table, carrying each target's stored resume token so the server can
// resume from the last known snapshot.
func (s *Subsystem) onStreamOpen(ctx context.Context) {
	for _, qd := range s.listenTargets {
		s.sendWatch(ctx, qd)
	}
}

// onWatchChange is the change callback of §4.2.
func (s *Subsystem) onWatchChange(ctx context.Context, change rtype.WatchChange, snapshotVersion rtype.SnapshotVersion) {
	s.online.HandleMessageReceived()

	if tc := change.TargetChange; tc != nil && tc.State == rtype.TargetRemoved && tc.Cause != nil {
		s.processTargetError(tc)
		return
	}

	s.accumulatedChanges = append(s.accumulatedChanges, change)

	if snapshotVersion == rtype.NoSnapshotVersion {
		return
	}
	last, err := s.localStore.LastRemoteSnapshotVersion(ctx)
	if err != nil {
		s.log.Warn("failed to read last remote snapshot version", "err", err)
		return
	}
	if snapshotVersion.Less(last) {
		return
	}

	s.flush(ctx, snapshotVersion)
}

// flush drains accumulatedChanges into a fresh aggregator invocation,
// forwards the resulting event to the sync engine, and reconciles any
// existence filters per §4.4.
func (s *Subsystem) flush(ctx context.Context, snapshotVersion rtype.SnapshotVersion) {
	changes := s.accumulatedChanges
	s.accumulatedChanges = nil

	res := aggregator.Aggregate(snapshotVersion, s.listenTargets, s.pendingTargetResponses, changes)
	s.pendingTargetResponses = res.PendingTargetResponses

	mismatched := s.reconcileExistenceFilters(ctx, res.ExistenceFilters, &res.Event)
	s.advanceResumeTokens(res.Event, mismatched)

	s.syncEngine.ApplyRemoteEvent(res.Event)
}

// advanceResumeTokens replaces each active target's QueryData with one
// carrying the new (snapshot_version, resume_token), per the final
// paragraph of §4.4, honoring I5 (non-regressing tokens). Targets just
// reset by existence-filter reconciliation are skipped: their QueryData
// was deliberately cleared and must not be re-advanced from the same
// event's (now stale) target-change summary.
func (s *Subsystem) advanceResumeTokens(event rtype.RemoteEvent, skip map[rtype.TargetId]struct{}) {
	for id, tc := range event.TargetChanges {
		if tc.ResumeToken.Empty() {
			continue
		}
		if _, skipped := skip[id]; skipped {
			continue
		}
		qd, active := s.listenTargets[id]
		if !active {
			continue
		}
		if tc.SnapshotVersion.Less(qd.SnapshotVersion) {
			continue
		}
		s.listenTargets[id] = qd.WithSnapshot(tc.SnapshotVersion, tc.ResumeToken)
	}
}

// processTargetError implements §4.2 process_target_error: remove each
// named target still present in the listen table and reject it.
// Targets already removed are ignored.
func (s *Subsystem) processTargetError(tc *rtype.TargetChange) {
	for _, id := range tc.TargetIds {
		if _, ok := s.listenTargets[id]; !ok {
			continue
		}
		delete(s.listenTargets, id)
		delete(s.pendingTargetResponses, id)
		s.syncEngine.RejectListen(id, &rtype.TargetError{Target: id, Cause: tc.Cause})
	}
}

// onStreamClosed is the stream-closed callback of §4.2.
func (s *Subsystem) onStreamClosed(ctx context.Context, err error) {
	if s.stream == nil {
		panic("BUG: watch stream closed callback fired with network disabled")
	}

	s.cleanupWatchState()

	if s.shouldStartWatchStream() {
		s.online.HandleWatchStreamClose(true)
		s.stream.Start(delegateFor(s, ctx))
		return
	}

	s.online.HandleWatchStreamClose(s.HasActiveTargets())
}
