// Package heartbeat keeps a node's liveness record fresh and recovers work
// abandoned by other nodes.
//
// Each Beat is one store transaction: refresh our own record, find nodes
// silent for more than two intervals, return their claims (and any claim
// older than the lease timeout) to pending, and drop the dead records. Run
// repeats Beat on a ticker; a failed beat is logged and retried on the next
// tick.
package heartbeat
