package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimbusdb/remote/dpubsub"
	"github.com/nimbusdb/remote/onlinestate"
	"github.com/nimbusdb/remote/rtype"
	"github.com/nimbusdb/remote/watch"
	"github.com/nimbusdb/remote/write"
)

// Store is the Remote Store facade (C5, §4.6): it owns the watch
// subsystem, the write subsystem, and the online-state machine, and
// keeps their enable/disable lifecycle in lockstep on one caller-owned
// executor (§5 — every exported method here is expected to run serially,
// never concurrently with another).
type Store struct {
	log *slog.Logger

	datastore rtype.Datastore

	online *onlinestate.Machine
	watch  *watch.Subsystem
	write  *write.Subsystem

	tap *eventTap
}

// New returns a Store wired to cfg's collaborators, with networking
// disabled. Call Start (or EnableNetwork) to begin streaming.
func New(log *slog.Logger, cfg Config) *Store {
	cfg.validate(log)

	tap := &eventTap{
		SyncEngine: cfg.SyncEngine,
		events:     dpubsub.NewStream[rtype.RemoteEvent](),
	}

	online := onlinestate.New(log.With("component", "onlinestate"), cfg.OnlineStateDelegate)

	return &Store{
		log:       log,
		datastore: cfg.Datastore,
		online:    online,
		watch:     watch.New(log.With("component", "watch"), cfg.LocalStore, tap, online),
		write:     write.New(log.With("component", "write"), cfg.LocalStore, tap, cfg.Datastore),
		tap:       tap,
	}
}

// Events returns the live head of the remote-event feed: every
// [rtype.RemoteEvent] the watch subsystem forwards to the sync engine is
// also published here, for observers (tests, metrics) that want to
// follow the stream without implementing [rtype.SyncEngine].
func (s *Store) Events() *dpubsub.Stream[rtype.RemoteEvent] {
	return s.tap.events
}

// OnlineStateFeed returns the live head of the online-state transition
// feed; see [onlinestate.Machine.Feed].
func (s *Store) OnlineStateFeed() *dpubsub.Stream[rtype.OnlineState] {
	return s.online.Feed()
}

// OnlineState returns the current online state.
func (s *Store) OnlineState() rtype.OnlineState {
	return s.online.State()
}

// IsNetworkEnabled reports whether the watch/write streams are attached.
func (s *Store) IsNetworkEnabled() bool {
	return s.watch.IsNetworkEnabled()
}

// Start is equivalent to EnableNetwork (§4.6 start()).
func (s *Store) Start(ctx context.Context) error {
	return s.EnableNetwork(ctx)
}

// EnableNetwork creates fresh watch/write streams from the datastore,
// starts them where preconditions allow, fills the write pipeline, and
// resets online state to Unknown. Precondition: both streams absent
// (§7 item 6 — enabling twice is a programmer error).
func (s *Store) EnableNetwork(ctx context.Context) error {
	if s.IsNetworkEnabled() {
		panic("BUG: EnableNetwork called while network is already enabled")
	}

	s.watch.AttachStream(ctx, s.datastore.CreateWatchStream())

	if err := s.write.AttachStream(ctx, s.datastore.CreateWriteStream()); err != nil {
		return fmt.Errorf("attach write stream: %w", err)
	}

	s.online.ForceUnknown()
	return nil
}

// DisableNetwork sets online state to Failed, stops both streams
// (synchronously with respect to future callbacks, per §5), clears watch
// and write transient state, and drops both stream handles. A no-op if
// the network is already disabled.
func (s *Store) DisableNetwork() {
	if !s.IsNetworkEnabled() {
		return
	}

	s.online.ForceFailed()
	s.watch.DetachStream()
	s.write.DetachStream()
}

// Shutdown detaches the online-state delegate so no further transition
// fires, then disables the network if it is currently enabled.
func (s *Store) Shutdown() {
	s.online.SetDelegate(nil)
	s.DisableNetwork()
}

// UserChanged disables then re-enables the network, and discards
// pending_writes/last_batch_seen so the write pipeline refills from the
// new user's mutations in the local store (§4.6 user_changed, I6).
func (s *Store) UserChanged(ctx context.Context) error {
	s.DisableNetwork()
	s.write.ResetForUserChange()
	return s.EnableNetwork(ctx)
}

// Listen adds qd to the listen-target table; see [watch.Subsystem.Listen].
func (s *Store) Listen(ctx context.Context, qd rtype.QueryData) {
	s.watch.Listen(ctx, qd)
}

// Unlisten removes targetId from the listen-target table; see
// [watch.Subsystem.Unlisten].
func (s *Store) Unlisten(ctx context.Context, targetId rtype.TargetId) {
	s.watch.Unlisten(ctx, targetId)
}

// Transaction returns a new transaction bound directly to the datastore.
// It runs outside the watch/write streams and is not part of this core
// (§4.6 transaction()).
func (s *Store) Transaction(ctx context.Context) (rtype.Transaction, error) {
	return s.datastore.CreateTransaction(ctx)
}

// eventTap decorates a [rtype.SyncEngine], forwarding every call
// unchanged while also publishing ApplyRemoteEvent's argument onto a
// pubsub feed, the way [Store.Events] exposes it to observers.
type eventTap struct {
	rtype.SyncEngine
	events *dpubsub.Stream[rtype.RemoteEvent]
}

func (t *eventTap) ApplyRemoteEvent(event rtype.RemoteEvent) {
	t.SyncEngine.ApplyRemoteEvent(event)
	t.events.Publish(event)
	t.events = t.events.Next
}
