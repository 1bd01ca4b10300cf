// Package onlinestate implements the watch-connectivity health tracker
// (§4.1): Unknown/Healthy/Failed, with a failure-threshold debounce
// before an unhealthy stream is reported as Failed, and a delegate
// notified only on genuine transitions.
package onlinestate

import (
	"log/slog"

	"github.com/nimbusdb/remote/dpubsub"
	"github.com/nimbusdb/remote/rtype"
)

// FailureThreshold is the number of consecutive watch-stream failures,
// observed while not Healthy, required before the state becomes Failed.
const FailureThreshold = 2

// Machine tracks the online-state transitions of §4.1. It is not
// goroutine-safe; the Remote Store's single executor owns it.
type Machine struct {
	log *slog.Logger

	state         rtype.OnlineState
	watchFailures int
	delegate      rtype.OnlineStateDelegate

	feed *dpubsub.Stream[rtype.OnlineState]
}

// New returns a Machine in the initial Unknown state, reporting
// transitions to delegate. delegate may be nil (e.g. before a caller
// wires one up); SetDelegate replaces it.
func New(log *slog.Logger, delegate rtype.OnlineStateDelegate) *Machine {
	return &Machine{
		log:      log,
		state:    rtype.OnlineStateUnknown,
		delegate: delegate,

		feed: dpubsub.NewStream[rtype.OnlineState](),
	}
}

// State returns the current online state.
func (m *Machine) State() rtype.OnlineState {
	return m.state
}

// Feed returns the live head of the online-state transition stream.
// Each genuine transition (the same ones the delegate is notified of)
// publishes a new node; callers that only want to observe state rather
// than implement [rtype.OnlineStateDelegate] can follow this instead,
// e.g. instrumentation or tests.
func (m *Machine) Feed() *dpubsub.Stream[rtype.OnlineState] {
	return m.feed
}

// SetDelegate replaces the delegate. Passing nil detaches it, matching
// the facade's Shutdown contract that no delegate method fires
// afterward.
func (m *Machine) SetDelegate(delegate rtype.OnlineStateDelegate) {
	m.delegate = delegate
}

// HandleMessageReceived transitions to Healthy and resets the failure
// counter, on any message received from the watch stream.
func (m *Machine) HandleMessageReceived() {
	m.watchFailures = 0
	m.set(rtype.OnlineStateHealthy)
}

// HandleWatchStreamClose accounts for a watch stream closing, with
// hasActiveTargets reporting whether any target is still listened to.
//
// Per §4.1: a healthy stream closing, or a stream with no active
// listens, transitions to Unknown and resets the failure counter.
// Otherwise the close is a failure while not Healthy: the counter is
// incremented, and the state becomes Failed once it reaches
// FailureThreshold.
func (m *Machine) HandleWatchStreamClose(hasActiveTargets bool) {
	if !hasActiveTargets || m.state == rtype.OnlineStateHealthy {
		m.watchFailures = 0
		m.set(rtype.OnlineStateUnknown)
		return
	}

	m.watchFailures++
	if m.watchFailures >= FailureThreshold {
		m.set(rtype.OnlineStateFailed)
	}
}

// ForceFailed is used by explicit disable_network/shutdown calls, which
// set the state to Failed regardless of the failure counter (§4.1).
func (m *Machine) ForceFailed() {
	m.watchFailures = 0
	m.set(rtype.OnlineStateFailed)
}

// ForceUnknown is used by enable_network (§4.6), which always resets the
// state to Unknown regardless of the prior state or failure counter.
func (m *Machine) ForceUnknown() {
	m.watchFailures = 0
	m.set(rtype.OnlineStateUnknown)
}

// set applies the new state and notifies the delegate only on an actual
// change, per §4.1 "A delegate is notified only on actual state change."
func (m *Machine) set(state rtype.OnlineState) {
	if m.state == state {
		return
	}
	m.state = state

	m.log.Debug("online state changed", "state", state.String())

	m.feed.Publish(state)
	m.feed = m.feed.Next

	if m.delegate != nil {
		m.delegate.OnWatchStreamOnlineStateChanged(state)
	}
}
