// This file defines the Node struct, the building block of the graph. Nodes
// live in a flat arena indexed by their dense internal ID; neighbor lists are
// plain uint32 slices, which keeps the bidirectional graph free of pointer
// cycles.

package hnsw

import "sync/atomic"

// Node is a single vector in the graph.
type Node struct {
	// InternalID is the node's position in the arena.
	InternalID uint32
	// Vector is the stored payload. Treated as immutable once published.
	Vector []float32
	// Connections holds the neighbor lists per layer; Connections[0] is the
	// base layer. len(Connections)-1 is the node's top layer.
	// A list never exceeds M entries above layer 0, or 2*M at layer 0.
	// Protected by the index mutex.
	Connections [][]uint32
	// Deleted marks a tombstoned node. Tombstones keep routing traffic but
	// are excluded from results until the collection compacts.
	Deleted atomic.Bool
}

// topLayer returns the highest layer the node participates in.
func (n *Node) topLayer() int {
	return len(n.Connections) - 1
}
