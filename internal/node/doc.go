// Package node wires the frontier store, lease manager, heartbeat monitor,
// discovery service and progress reporter together for one node id.
//
// A Node enforces single-instance execution per node id with a flock next
// to the database, runs the heartbeat monitor in its own goroutine once
// started, and canonicalizes every identifier it is handed so producers and
// consumers agree on item keys.
package node
