// Package metrics exposes Prometheus collectors for the frontier coordinator.
//
// A nil *Collectors is valid and records nothing, so components accept it
// as an optional dependency.
package metrics
