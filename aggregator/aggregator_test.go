package aggregator_test

import (
	"testing"

	"github.com/nimbusdb/remote/aggregator"
	"github.com/nimbusdb/remote/rtype"
	"github.com/stretchr/testify/require"
)

type fakeQuery struct {
	doc  bool
	path rtype.DocumentKey
}

func (f fakeQuery) IsDocumentQuery() bool      { return f.doc }
func (f fakeQuery) Path() rtype.DocumentKey    { return f.path }

// TestAggregate_ListenSnapshot is scenario S1: a target becomes current
// with a resume token and a single document, all landing at the same
// snapshot version.
func TestAggregate_ListenSnapshot(t *testing.T) {
	t.Parallel()

	listenTargets := map[rtype.TargetId]rtype.QueryData{
		1: rtype.NewQueryData(fakeQuery{}, 1),
	}
	pending := map[rtype.TargetId]int{1: 1} // one outstanding watch request

	changes := []rtype.WatchChange{
		{TargetChange: &rtype.TargetChange{
			State:           rtype.TargetAdded,
			TargetIds:       []rtype.TargetId{1},
			SnapshotVersion: 5,
		}},
		{DocumentChange: &rtype.DocumentChange{
			Document:  rtype.Document{Key: "d1", Version: 5},
			TargetIds: []rtype.TargetId{1},
		}},
		{TargetChange: &rtype.TargetChange{
			State:           rtype.TargetCurrent,
			TargetIds:       []rtype.TargetId{1},
			ResumeToken:     rtype.ResumeToken("t1"),
			SnapshotVersion: 5,
		}},
	}

	res := aggregator.Aggregate(5, listenTargets, pending, changes)

	require.Empty(t, res.PendingTargetResponses)
	require.Contains(t, res.Event.TargetChanges, rtype.TargetId(1))

	tc := res.Event.TargetChanges[1]
	require.True(t, tc.Current)
	require.Equal(t, rtype.ResumeToken("t1"), tc.ResumeToken)
	require.Equal(t, rtype.SnapshotVersion(5), tc.SnapshotVersion)

	require.Contains(t, res.Event.DocumentUpdates, rtype.DocumentKey("d1"))
}

// TestAggregate_DropsUnsettledTargets covers aggregator step 2: a target
// still carrying a pending response is excluded from the emitted event
// even though it received document activity.
func TestAggregate_DropsUnsettledTargets(t *testing.T) {
	t.Parallel()

	listenTargets := map[rtype.TargetId]rtype.QueryData{
		2: rtype.NewQueryData(fakeQuery{}, 2),
	}
	pending := map[rtype.TargetId]int{2: 1}

	changes := []rtype.WatchChange{
		{DocumentChange: &rtype.DocumentChange{
			Document:  rtype.Document{Key: "d1"},
			TargetIds: []rtype.TargetId{2},
		}},
	}

	res := aggregator.Aggregate(1, listenTargets, pending, changes)
	require.NotContains(t, res.Event.TargetChanges, rtype.TargetId(2))
	// The pending count itself is untouched since no Added/Removed ack arrived.
	require.Equal(t, 1, res.PendingTargetResponses[2])
}

// TestAggregate_DropsInactiveTargets covers the other half of step 2: a
// target no longer in the listen table (e.g. unlistened mid-flight) is
// dropped even if fully acknowledged.
func TestAggregate_DropsInactiveTargets(t *testing.T) {
	t.Parallel()

	changes := []rtype.WatchChange{
		{TargetChange: &rtype.TargetChange{
			State:     rtype.TargetCurrent,
			TargetIds: []rtype.TargetId{9},
		}},
	}

	res := aggregator.Aggregate(1, map[rtype.TargetId]rtype.QueryData{}, nil, changes)
	require.Empty(t, res.Event.TargetChanges)
}

func TestAggregate_ExistenceFilterRecorded(t *testing.T) {
	t.Parallel()

	changes := []rtype.WatchChange{
		{ExistenceFilterChange: &rtype.ExistenceFilterChange{
			TargetId: 2,
			Filter:   rtype.ExistenceFilter{Count: 2},
		}},
	}

	res := aggregator.Aggregate(1, nil, nil, changes)
	require.Equal(t, rtype.ExistenceFilter{Count: 2}, res.ExistenceFilters[2])
}

func TestAggregate_TargetResetClearsAccumulatedMapping(t *testing.T) {
	t.Parallel()

	listenTargets := map[rtype.TargetId]rtype.QueryData{
		1: rtype.NewQueryData(fakeQuery{}, 1),
	}

	changes := []rtype.WatchChange{
		{DocumentChange: &rtype.DocumentChange{
			Document:  rtype.Document{Key: "stale"},
			TargetIds: []rtype.TargetId{1},
		}},
		{TargetChange: &rtype.TargetChange{
			State:     rtype.TargetReset,
			TargetIds: []rtype.TargetId{1},
		}},
		{DocumentChange: &rtype.DocumentChange{
			Document:  rtype.Document{Key: "fresh"},
			TargetIds: []rtype.TargetId{1},
		}},
	}

	res := aggregator.Aggregate(1, listenTargets, nil, changes)
	mapping := res.Event.TargetChanges[1].Mapping
	require.Equal(t, rtype.MappingReset, mapping.Kind)
	require.NotContains(t, mapping.Added, rtype.DocumentKey("stale"))
	require.Contains(t, mapping.Added, rtype.DocumentKey("fresh"))
}
