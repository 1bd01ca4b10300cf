package watch

import "github.com/nimbusdb/remote/rtype"

// QueryDataFor returns the stored QueryData for target, if active.
func (s *Subsystem) QueryDataFor(target rtype.TargetId) (rtype.QueryData, bool) {
	qd, ok := s.listenTargets[target]
	return qd, ok
}

// PendingResponseCount returns the current pending-target-responses
// count for target (0 if absent), for tests asserting P3.
func (s *Subsystem) PendingResponseCount(target rtype.TargetId) int {
	return s.pendingTargetResponses[target]
}

// ActiveTargetCount returns the number of targets currently in the
// listen-target table.
func (s *Subsystem) ActiveTargetCount() int {
	return len(s.listenTargets)
}
