// Package aggregator implements the watch-change aggregator (§4.3): a
// stateless function that folds a batch of raw watch changes against the
// listen-target table and the pending-target-responses map to produce a
// single consistent [rtype.RemoteEvent].
//
// Aggregate is pure over its arguments (no package-level state) so that
// scenario S3 (existence-filter mismatch) is reproducible in isolation,
// without a full Remote Store, per the teacher's preference for scoping
// a mutable working struct to a single call rather than threading state
// through a type.
package aggregator

import (
	"github.com/nimbusdb/remote/rtype"
)

// Result is everything one Aggregate call produces: the consistent
// remote event, the pending-target-responses map with this pass's
// decrements applied, and the existence filters the watch subsystem
// must reconcile afterward (§4.4).
type Result struct {
	Event                  rtype.RemoteEvent
	PendingTargetResponses map[rtype.TargetId]int
	ExistenceFilters       map[rtype.TargetId]rtype.ExistenceFilter
}

// targetWork is the per-target working entry built up across the
// changes folded into one Aggregate call.
type targetWork struct {
	current bool

	mappingKind rtype.MappingKind
	added       map[rtype.DocumentKey]struct{}
	removed     map[rtype.DocumentKey]struct{}

	resumeToken     rtype.ResumeToken
	snapshotVersion rtype.SnapshotVersion
}

func newTargetWork() *targetWork {
	return &targetWork{
		mappingKind:     rtype.MappingNone,
		added:           make(map[rtype.DocumentKey]struct{}),
		removed:         make(map[rtype.DocumentKey]struct{}),
		snapshotVersion: rtype.NoSnapshotVersion,
	}
}

// Aggregate folds changes against listenTargets and pendingTargetResponses,
// producing the Result described in §4.3. Neither input map is mutated;
// Result.PendingTargetResponses is a fresh map reflecting this pass's
// decrements.
func Aggregate(
	snapshotVersion rtype.SnapshotVersion,
	listenTargets map[rtype.TargetId]rtype.QueryData,
	pendingTargetResponses map[rtype.TargetId]int,
	changes []rtype.WatchChange,
) Result {
	pending := make(map[rtype.TargetId]int, len(pendingTargetResponses))
	for k, v := range pendingTargetResponses {
		pending[k] = v
	}

	work := make(map[rtype.TargetId]*targetWork)
	existenceFilters := make(map[rtype.TargetId]rtype.ExistenceFilter)
	event := rtype.NewRemoteEvent(snapshotVersion)

	getWork := func(id rtype.TargetId) *targetWork {
		w, ok := work[id]
		if !ok {
			w = newTargetWork()
			work[id] = w
		}
		return w
	}

	for _, change := range changes {
		switch {
		case change.DocumentChange != nil:
			applyDocumentChange(change.DocumentChange, getWork, &event)

		case change.TargetChange != nil:
			applyTargetChange(change.TargetChange, getWork, pending)

		case change.ExistenceFilterChange != nil:
			existenceFilters[change.ExistenceFilterChange.TargetId] = change.ExistenceFilterChange.Filter
		}
	}

	// Step 2+3: drop unsettled targets, emit the rest.
	for id, w := range work {
		qd, active := listenTargets[id]
		_, stillPending := pending[id]
		if !active || stillPending {
			continue
		}

		mapping := rtype.DocumentMapping{
			Kind:    w.mappingKind,
			Added:   w.added,
			Removed: w.removed,
		}

		resumeToken := w.resumeToken
		resumeVersion := w.snapshotVersion
		if resumeToken.Empty() {
			resumeToken = qd.ResumeToken
			resumeVersion = qd.SnapshotVersion
		}

		event.TargetChanges[id] = rtype.TargetChangeSummary{
			Current:         w.current,
			Mapping:         mapping,
			ResumeToken:     resumeToken,
			SnapshotVersion: resumeVersion,
		}
	}

	return Result{
		Event:                  event,
		PendingTargetResponses: pending,
		ExistenceFilters:       existenceFilters,
	}
}

func applyDocumentChange(
	dc *rtype.DocumentChange,
	getWork func(rtype.TargetId) *targetWork,
	event *rtype.RemoteEvent,
) {
	event.AddDocumentUpdate(dc.Document)

	for _, id := range dc.TargetIds {
		w := getWork(id)
		w.added[dc.Document.Key] = struct{}{}
		delete(w.removed, dc.Document.Key)
		if w.mappingKind == rtype.MappingNone {
			w.mappingKind = rtype.MappingUpdate
		}
	}
	for _, id := range dc.RemovedTargetIds {
		w := getWork(id)
		w.removed[dc.Document.Key] = struct{}{}
		delete(w.added, dc.Document.Key)
		if w.mappingKind == rtype.MappingNone {
			w.mappingKind = rtype.MappingUpdate
		}
	}
}

func applyTargetChange(
	tc *rtype.TargetChange,
	getWork func(rtype.TargetId) *targetWork,
	pending map[rtype.TargetId]int,
) {
	for _, id := range tc.TargetIds {
		switch tc.State {
		case rtype.TargetAdded, rtype.TargetRemoved:
			if n, ok := pending[id]; ok {
				n--
				if n <= 0 {
					delete(pending, id)
				} else {
					pending[id] = n
				}
			}

		case rtype.TargetCurrent:
			getWork(id).current = true

		case rtype.TargetReset:
			w := getWork(id)
			w.mappingKind = rtype.MappingReset
			w.added = make(map[rtype.DocumentKey]struct{})
			w.removed = make(map[rtype.DocumentKey]struct{})
		}

		if !tc.ResumeToken.Empty() {
			w := getWork(id)
			if tc.SnapshotVersion >= w.snapshotVersion {
				w.resumeToken = tc.ResumeToken
				w.snapshotVersion = tc.SnapshotVersion
			}
		}
	}
}
