// Package progress summarizes frontier completion across all nodes.
package progress
