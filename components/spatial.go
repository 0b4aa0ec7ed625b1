package components

// LeafRef identifies the quadtree leaf currently holding a point. It is a
// node index into the tree's arena and only valid while the point is stored
// in the tree; the tree owns points, never the other way round.
type LeafRef int32

// NoLeaf marks a point that is not stored in any leaf.
const NoLeaf LeafRef = -1

// Valid reports whether the reference names a node.
func (r LeafRef) Valid() bool {
	return r >= 0
}
