package watch

import (
	"context"

	"github.com/nimbusdb/remote/rtype"
)

// reconcileExistenceFilters implements §4.4: for each (target, filter)
// the aggregator returned, reconcile the local view against the
// server's asserted cardinality. Returns the set of targets that were
// just re-listed for a mismatch, so the caller can skip the resume-token
// advance step for them (their QueryData was just reset).
func (s *Subsystem) reconcileExistenceFilters(
	ctx context.Context,
	filters map[rtype.TargetId]rtype.ExistenceFilter,
	event *rtype.RemoteEvent,
) map[rtype.TargetId]struct{} {
	mismatched := make(map[rtype.TargetId]struct{})

	for target, filter := range filters {
		qd, active := s.listenTargets[target]
		if !active {
			continue
		}

		if qd.Query.IsDocumentQuery() {
			s.reconcileDocumentQueryFilter(qd, filter, event)
			continue
		}

		if s.reconcileCollectionQueryFilter(ctx, target, qd, filter, event) {
			mismatched[target] = struct{}{}
		}
	}

	return mismatched
}

func (s *Subsystem) reconcileDocumentQueryFilter(
	qd rtype.QueryData,
	filter rtype.ExistenceFilter,
	event *rtype.RemoteEvent,
) {
	switch filter.Count {
	case 0:
		event.AddDocumentUpdate(rtype.DeletedDocument(qd.Query.Path(), event.SnapshotVersion))
	case 1:
		// Server confirms existence; nothing to do.
	default:
		s.log.Error(
			"existence filter protocol violation for document query",
			"target", qd.TargetId, "count", filter.Count,
		)
	}
}

// reconcileCollectionQueryFilter returns true if the target's view
// drifted and was re-listed.
func (s *Subsystem) reconcileCollectionQueryFilter(
	ctx context.Context,
	target rtype.TargetId,
	qd rtype.QueryData,
	filter rtype.ExistenceFilter,
	event *rtype.RemoteEvent,
) bool {
	trackedRemote, err := s.localStore.RemoteDocumentKeys(ctx, target)
	if err != nil {
		s.log.Warn("failed to read tracked remote document keys", "target", target, "err", err)
		return false
	}

	tracked := applyMapping(trackedRemote, event.TargetChanges[target].Mapping)

	if len(tracked) == filter.Count {
		return false
	}

	event.OnExistenceFilterMismatch(target)

	cleared := qd.WithResumeTokenCleared()
	s.listenTargets[target] = cleared

	s.sendUnwatch(ctx, target)
	s.sendWatch(ctx, cleared.WithPurpose(rtype.PurposeExistenceFilterMismatch))

	return true
}

// applyMapping folds a target-change's document mapping onto the
// locally tracked remote-document set, per §4.4: reset overrides,
// update is additive/subtractive.
func applyMapping(tracked map[rtype.DocumentKey]struct{}, m rtype.DocumentMapping) map[rtype.DocumentKey]struct{} {
	switch m.Kind {
	case rtype.MappingReset:
		out := make(map[rtype.DocumentKey]struct{}, len(m.Added))
		for k := range m.Added {
			out[k] = struct{}{}
		}
		return out

	case rtype.MappingUpdate:
		out := make(map[rtype.DocumentKey]struct{}, len(tracked))
		for k := range tracked {
			out[k] = struct{}{}
		}
		for k := range m.Added {
			out[k] = struct{}{}
		}
		for k := range m.Removed {
			delete(out, k)
		}
		return out

	default:
		return tracked
	}
}
