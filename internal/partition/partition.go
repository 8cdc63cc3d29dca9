package partition

import "github.com/cespare/xxhash/v2"

// Version names the current assignment scheme (xxhash64 mod N, 1-based).
const Version = 1

// Assign returns the node in [1, totalNodes] that owns identifier.
// totalNodes below 1 is treated as 1.
func Assign(identifier string, totalNodes int) int {
	if totalNodes < 1 {
		totalNodes = 1
	}
	return int(xxhash.Sum64String(identifier)%uint64(totalNodes)) + 1
}

// Partitioner binds Assign to a fixed node count.
type Partitioner struct {
	total int
}

// New returns a Partitioner over totalNodes nodes.
func New(totalNodes int) Partitioner {
	if totalNodes < 1 {
		totalNodes = 1
	}
	return Partitioner{total: totalNodes}
}

// Total returns the node count.
func (p Partitioner) Total() int { return p.total }

// Assign returns the owning node of identifier.
func (p Partitioner) Assign(identifier string) int {
	return Assign(identifier, p.total)
}

// Owns reports whether node owns identifier.
func (p Partitioner) Owns(identifier string, node int) bool {
	return p.Assign(identifier) == node
}

// Distribution counts identifiers per owning node. Every node in [1, total]
// appears in the result, with zero when it owns nothing.
func (p Partitioner) Distribution(identifiers []string) map[int]int {
	counts := make(map[int]int, p.total)
	for node := 1; node <= p.total; node++ {
		counts[node] = 0
	}
	for _, id := range identifiers {
		counts[p.Assign(id)]++
	}
	return counts
}

// Sources returns the subset of sources that node walks during discovery,
// keeping the input order. Callers pass canonical sources so every node
// agrees on the split.
func (p Partitioner) Sources(sources []string, node int) []string {
	owned := make([]string, 0, len(sources)/p.total+1)
	for _, source := range sources {
		if p.Owns(source, node) {
			owned = append(owned, source)
		}
	}
	return owned
}
