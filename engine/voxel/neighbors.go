package voxel

// NeighborResolver maps a chunk origin (in block coordinates) to the six
// face-adjacent volumes, in Face order. Slots of unloaded neighbors are nil;
// the mesher reads them as Null cells, which keeps the border faced instead
// of tearing a seam into unloaded space.
type NeighborResolver interface {
	Neighbors(origin Int3) [6]*Volume
}

// NoNeighbors resolves every chunk as isolated. Meshing with it faces all
// six chunk borders.
type NoNeighbors struct{}

func (NoNeighbors) Neighbors(Int3) [6]*Volume {
	return [6]*Volume{}
}

// FixedNeighbors returns the same six slots for every origin. Handy for
// meshing a chunk pair without a world behind it.
type FixedNeighbors [6]*Volume

func (f FixedNeighbors) Neighbors(Int3) [6]*Volume {
	return f
}
