// Package remote contains the Remote Store facade: the single-executor
// core that keeps a watch subsystem, a write subsystem, and an
// online-state machine in lockstep so a local store and sync engine can
// treat "the network" as one cohesive collaborator.
//
// See SPEC_FULL.md in the module root for the full component design.
package remote
