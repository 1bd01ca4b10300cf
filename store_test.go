package remote_test

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/nimbusdb/remote"
	"github.com/nimbusdb/remote/remotetest"
	"github.com/nimbusdb/remote/rtype"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store        *remote.Store
	ls           *remotetest.LocalStore
	se           *remotetest.SyncEngine
	ds           *remotetest.Datastore
	onlineDel    *remotetest.OnlineStateDelegate
	watchStreams []*remotetest.WatchStream
	writeStreams []*remotetest.WriteStream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ls:        remotetest.NewLocalStore(),
		se:        remotetest.NewSyncEngine(),
		ds:        remotetest.NewDatastore(),
		onlineDel: remotetest.NewOnlineStateDelegate(),
	}

	f.ds.NewWatchStreamFn = func() rtype.WatchStream {
		ws := remotetest.NewWatchStream()
		f.watchStreams = append(f.watchStreams, ws)
		return ws
	}
	f.ds.NewWriteStreamFn = func() rtype.WriteStream {
		wrs := remotetest.NewWriteStream()
		f.writeStreams = append(f.writeStreams, wrs)
		return wrs
	}

	f.store = remote.New(slogt.New(t), remote.Config{
		LocalStore:          f.ls,
		SyncEngine:          f.se,
		Datastore:           f.ds,
		OnlineStateDelegate: f.onlineDel,
	})
	return f
}

func (f *fixture) lastWatchStream() *remotetest.WatchStream {
	return f.watchStreams[len(f.watchStreams)-1]
}

func (f *fixture) lastWriteStream() *remotetest.WriteStream {
	return f.writeStreams[len(f.writeStreams)-1]
}

func TestStore_StartEnablesNetwork(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.store.IsNetworkEnabled())
	require.NoError(t, f.store.Start(ctx))
	require.True(t, f.store.IsNetworkEnabled())
	require.Equal(t, rtype.OnlineStateUnknown, f.store.OnlineState())
}

func TestStore_DoubleEnablePanics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))

	require.Panics(t, func() {
		_ = f.store.EnableNetwork(ctx)
	})
}

// TestStore_R2_DisableEnableRoundTrip is R2: between disable_network and
// the next enable_network, no delegate method fires; the forced Failed
// transition on disable and the forced Unknown transition on re-enable
// are the only notifications.
func TestStore_R2_DisableEnableRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))

	// Start leaves the state at its initial Unknown, so no notification
	// has fired yet; Snapshot reports the delegate's whole history.
	f.onlineDel.Snapshot()

	f.store.DisableNetwork()
	require.Equal(t, rtype.OnlineStateFailed, f.store.OnlineState())

	statesAfterDisable := f.onlineDel.Snapshot()
	require.Equal(t, []rtype.OnlineState{rtype.OnlineStateFailed}, statesAfterDisable)

	require.NoError(t, f.store.EnableNetwork(ctx))
	require.Equal(t, rtype.OnlineStateUnknown, f.store.OnlineState())

	statesAfterEnable := f.onlineDel.Snapshot()
	require.Equal(t, []rtype.OnlineState{rtype.OnlineStateFailed, rtype.OnlineStateUnknown}, statesAfterEnable)
}

func TestStore_DisableNetworkDetachesStreams(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))
	ws := f.lastWatchStream()

	f.store.DisableNetwork()

	require.False(t, f.store.IsNetworkEnabled())
	require.False(t, ws.IsStarted())
}

func TestStore_ShutdownDetachesDelegate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))
	f.onlineDel.Snapshot()

	f.store.Shutdown()
	require.False(t, f.store.IsNetworkEnabled())

	// No notification reaches the detached delegate: neither Shutdown's own
	// Failed transition nor a further DisableNetwork (a no-op once disabled).
	f.store.DisableNetwork()
	require.Empty(t, f.onlineDel.Snapshot())
}

// TestStore_S6_UserChanged is scenario S6: changing users discards
// pending writes and the batch cursor, so the pipeline refills from the
// new user's mutations in the local store.
func TestStore_S6_UserChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.ls.QueueBatches(
		rtype.MutationBatch{BatchId: 1},
		rtype.MutationBatch{BatchId: 2},
	)
	require.NoError(t, f.store.Start(ctx))

	require.NoError(t, f.store.UserChanged(ctx))

	require.True(t, f.store.IsNetworkEnabled())
	// Fresh streams were created for the new user.
	require.Len(t, f.watchStreams, 2)
	require.Len(t, f.writeStreams, 2)
}

func TestStore_EventsFeedObservesRemoteEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))

	feed := f.store.Events()

	qd := rtype.NewQueryData(remotetest.Query{}, 1)
	f.store.Listen(ctx, qd)

	ws := f.lastWatchStream()
	ws.SimulateOpen()

	ws.SimulateChange(rtype.WatchChange{TargetChange: &rtype.TargetChange{
		State: rtype.TargetCurrent, TargetIds: []rtype.TargetId{1},
		ResumeToken: rtype.ResumeToken("t"), SnapshotVersion: 1,
	}}, 1)

	select {
	case <-feed.Ready:
	default:
		t.Fatal("expected a published remote event")
	}
	require.Equal(t, rtype.SnapshotVersion(1), feed.Val.SnapshotVersion)
	require.Len(t, f.se.Events, 1)
}

func TestStore_Transaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx, err := f.store.Transaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
}
