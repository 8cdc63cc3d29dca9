// Package partition assigns work item identifiers to nodes.
//
// Assignment is a pure function of the identifier and the node count: every
// node, in every process, on every run, computes the same owner. The scheme
// is versioned; the frontier store records Version and refuses to mix
// schemes.
package partition
