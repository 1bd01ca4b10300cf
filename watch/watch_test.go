package watch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/nimbusdb/remote/onlinestate"
	"github.com/nimbusdb/remote/remotetest"
	"github.com/nimbusdb/remote/rtype"
	"github.com/nimbusdb/remote/watch"
	"github.com/stretchr/testify/require"
)

func newSubsystem(t *testing.T) (*watch.Subsystem, *remotetest.LocalStore, *remotetest.SyncEngine, *onlinestate.Machine) {
	t.Helper()
	ls := remotetest.NewLocalStore()
	se := remotetest.NewSyncEngine()
	online := onlinestate.New(slogt.New(t), nil)
	return watch.New(slogt.New(t), ls, se, online), ls, se, online
}

// TestSubsystem_ListenStartsStream is half of scenario S1: listening on
// a fresh subsystem with network enabled starts the watch stream.
func TestSubsystem_ListenStartsStream(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSubsystem(t)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	s.AttachStream(ctx, stream)
	qd := rtype.NewQueryData(remotetest.Query{}, 1)
	s.Listen(ctx, qd)

	require.True(t, stream.IsStarted())
}

// TestSubsystem_S1_ListenHealthySnapshot runs the full scenario S1 from
// §8: listen, stream opens, a Current change arrives with a resume
// token, and the sync engine receives one consistent remote event.
func TestSubsystem_S1_ListenHealthySnapshot(t *testing.T) {
	t.Parallel()

	s, _, se, online := newSubsystem(t)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	s.AttachStream(ctx, stream)
	qd := rtype.NewQueryData(remotetest.Query{}, 1)
	s.Listen(ctx, qd)

	stream.SimulateOpen()
	require.Len(t, stream.WatchCalls, 1)

	// Intermediate messages within one snapshot carry the sentinel "no
	// version" value; only the final boundary message (Current, here)
	// carries the real snapshot version, per §4.2 step 3.
	stream.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetAdded, TargetIds: []rtype.TargetId{1},
	}}, rtype.NoSnapshotVersion)
	stream.SimulateChange(rtype.WatchChange{DocumentChange: &rtype.DocumentChange{
		Document: rtype.Document{Key: "d1", Version: 5}, TargetIds: []rtype.TargetId{1},
	}}, rtype.NoSnapshotVersion)
	stream.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetCurrent, TargetIds: []rtype.TargetId{1},
		ResumeToken: rtype.ResumeToken("t1"), SnapshotVersion: 5,
	}}, 5)

	require.Equal(t, rtype.OnlineStateHealthy, online.State())
	require.Len(t, se.Events, 1)

	ev := se.Events[0]
	require.Equal(t, rtype.SnapshotVersion(5), ev.SnapshotVersion)
	tc := ev.TargetChanges[1]
	require.True(t, tc.Current)
	require.Contains(t, ev.DocumentUpdates, rtype.DocumentKey("d1"))

	stored, ok := s.QueryDataFor(1)
	require.True(t, ok)
	require.Equal(t, rtype.ResumeToken("t1"), stored.ResumeToken)
}

// TestSubsystem_StaleSnapshotIsBuffered covers §4.2 change-callback step
// 3: a change at a snapshot version older than the local store's last
// applied version is accumulated but not flushed.
func TestSubsystem_StaleSnapshotIsBuffered(t *testing.T) {
	t.Parallel()

	s, ls, se, _ := newSubsystem(t)
	ls.SetLastRemoteSnapshotVersion(10)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	s.AttachStream(ctx, stream)
	s.Listen(ctx, rtype.NewQueryData(remotetest.Query{}, 1))
	stream.SimulateOpen()

	stream.SimulateChange(rtype.WatchChange{DocumentChange: &rtype.DocumentChange{
		Document: rtype.Document{Key: "d1"}, TargetIds: []rtype.TargetId{1},
	}}, 3)

	require.Empty(t, se.Events)
}

// TestSubsystem_TargetErrorProcessedImmediately is the design-note
// open question resolved per the spec's explicit guidance: a Removed
// change with a cause is processed immediately, independent of any
// stale accumulated changes.
func TestSubsystem_TargetErrorProcessedImmediately(t *testing.T) {
	t.Parallel()

	s, ls, se, _ := newSubsystem(t)
	ls.SetLastRemoteSnapshotVersion(10)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	s.AttachStream(ctx, stream)
	s.Listen(ctx, rtype.NewQueryData(remotetest.Query{}, 1))
	stream.SimulateOpen()

	// Stale change accumulates without flushing.
	stream.SimulateChange(rtype.WatchChange{DocumentChange: &rtype.DocumentChange{
		Document: rtype.Document{Key: "d1"}, TargetIds: []rtype.TargetId{1},
	}}, 3)

	cause := errors.New("permission denied")
	stream.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetRemoved, TargetIds: []rtype.TargetId{1}, Cause: cause,
	}}, rtype.NoSnapshotVersion)

	require.Empty(t, se.Events)
	require.Len(t, se.RejectedListen, 1)
	require.Equal(t, rtype.TargetId(1), se.RejectedListen[0].Target)

	_, active := s.QueryDataFor(1)
	require.False(t, active)
}

// TestSubsystem_UnlistenRoundTrip: listen then unlisten on an open stream
// leaves the listen table empty as before and marks the stream idle. The
// watch and unwatch requests sent meanwhile each stay counted in the
// pending-response map until the server acknowledges them.
func TestSubsystem_UnlistenRoundTrip(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSubsystem(t)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	s.AttachStream(ctx, stream)
	require.Equal(t, 0, s.ActiveTargetCount())

	s.Listen(ctx, rtype.NewQueryData(remotetest.Query{}, 1))
	stream.SimulateOpen()
	s.Unlisten(ctx, 1)

	require.Equal(t, 0, s.ActiveTargetCount())
	require.Equal(t, 1, stream.IdleCount())
}

// TestSubsystem_S3_ExistenceFilterMismatch is scenario S3.
func TestSubsystem_S3_ExistenceFilterMismatch(t *testing.T) {
	t.Parallel()

	s, ls, se, _ := newSubsystem(t)
	stream := remotetest.NewWatchStream()
	ctx := context.Background()

	ls.SetRemoteDocumentKeys(2, map[rtype.DocumentKey]struct{}{"k1": {}, "k2": {}, "k3": {}})

	s.AttachStream(ctx, stream)
	s.Listen(ctx, rtype.NewQueryData(remotetest.Query{Doc: false}, 2))
	stream.SimulateOpen()

	stream.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetAdded, TargetIds: []rtype.TargetId{2},
	}}, rtype.NoSnapshotVersion)
	stream.SimulateChange(rtype.WatchChange{ExistenceFilterChange: &rtype.ExistenceFilterChange{
		TargetId: 2, Filter: rtype.ExistenceFilter{Count: 2},
	}}, rtype.NoSnapshotVersion)
	stream.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetCurrent, TargetIds: []rtype.TargetId{2}, SnapshotVersion: 1,
	}}, 1)

	require.Len(t, se.Events, 1)
	_, mismatched := se.Events[0].TargetMismatches[2]
	require.True(t, mismatched)

	qd, ok := s.QueryDataFor(2)
	require.True(t, ok)
	require.True(t, qd.ResumeToken.Empty())

	require.Equal(t, []rtype.TargetId{2}, stream.UnwatchCalls)
	require.Len(t, stream.WatchCalls, 2) // initial listen + mismatch re-listen
	require.Equal(t, rtype.PurposeExistenceFilterMismatch, stream.WatchCalls[1].Purpose)
}

func TestSubsystem_DuplicateListenPanics(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSubsystem(t)
	ctx := context.Background()
	s.Listen(ctx, rtype.NewQueryData(remotetest.Query{}, 1))

	require.Panics(t, func() {
		s.Listen(ctx, rtype.NewQueryData(remotetest.Query{}, 1))
	})
}

func TestSubsystem_UnlistenUnknownTargetPanics(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSubsystem(t)
	require.Panics(t, func() {
		s.Unlisten(context.Background(), 99)
	})
}
