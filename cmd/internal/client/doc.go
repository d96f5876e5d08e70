// Package client implements the per-tab credential coordinator.
//
// A Coordinator attaches the current access credential to outgoing calls,
// detects authorization failure, performs exactly one renewal at a time per
// tab (queueing concurrent calls behind it), and propagates renewal and
// logout outcomes to sibling tabs over a broadcast Bus. The access
// credential lives only in memory; the renewal secret and session id are
// persisted tab-scoped through a StateStore so a tab survives reloads.
package client
