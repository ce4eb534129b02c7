// Package gate runs verification commands before a session ends.
//
// A Gate is a declarative description of one shell command with pass/fail
// and criticality semantics. The Runner executes a single gate as a
// subprocess under a hard timeout; the Orchestrator runs a set of gates
// in parallel or sequentially, applies fail-fast policy, and aggregates
// results in declaration order.
//
// Gate failures are data, not errors: every execution produces exactly
// one Result, including timeouts, launch failures, and gates skipped by
// fail-fast.
package gate
