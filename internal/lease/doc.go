// Package lease grants and records exclusive claims on work items.
//
// A claim is a lease, not a lock: it stays valid for the configured timeout
// and may be taken over once it is older than that, or as soon as its owner
// is known dead (its heartbeat record is older than two intervals). Owners
// without any heartbeat record are treated as alive until their lease
// expires.
//
// Outcomes are terminal. Nothing in this package retries a failed item;
// Requeue is the explicit operator path.
package lease
