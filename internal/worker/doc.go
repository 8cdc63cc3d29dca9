// Package worker runs the sequential per-node processing loop.
//
// A Runner walks the node's discovery session in order, claims each item the
// partitioner assigns to this node, hands it to a Processor, and records the
// outcome. Items owned elsewhere, claimed by a live peer, or already finished
// are skipped. A politeness delay separates consecutive fetches and a
// progress line is logged every few items.
package worker
