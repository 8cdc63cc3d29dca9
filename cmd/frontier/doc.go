// Package main hosts the frontier CLI entrypoint and command graph.
//
// Every command resolves configuration once, opens the shared store as the
// configured node, and delegates to internal/node. Long-running commands
// (heartbeat, work) hold the node lock, run the heartbeat loop, and expose
// Prometheus metrics when metrics.bind is set. One-shot commands (ingest,
// claim, complete, sweep) operate on the store without taking the node lock
// so operators can inspect and repair a frontier while nodes are running.
package main
