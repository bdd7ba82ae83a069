package voxel

import "fmt"

// noChildren marks a node as a leaf.
const noChildren int32 = -1

// node is one octree cell: a leaf carrying a value, or a branch pointing at
// a block of 8 children. Children are allocated as one contiguous block, so
// a branch only stores the base index.
type node struct {
	value    BlockID
	children int32
}

// Volume stores the block content of one cubic chunk as a sparse octree.
// The invariant maintained by every write: a node is a leaf if and only if
// the cube it covers holds a single value. Uniform regions therefore cost a
// single node, and a freshly generated chunk of air costs exactly one.
//
// Nodes live in a flat arena; collapsed child blocks go on a free list and
// are handed out again by later splits. A Volume is not safe for concurrent
// mutation; the mesher works off a flat snapshot (Decompress) instead of
// walking the tree.
type Volume struct {
	size    int32
	nodes   []node
	free    []int32
	version uint64
}

// NewVolume returns a volume of edge length size, uniformly filled.
// Size must be a power of two in [2, MaxChunkSize]; the upper bound comes
// from the packed vertex format.
func NewVolume(size int32, fill BlockID) *Volume {
	if !isPowerOfTwo(size) || size < 2 || size > MaxChunkSize {
		panic(fmt.Sprintf("voxel: invalid volume size %d", size))
	}
	if fill == Null {
		panic("voxel: cannot store the Null sentinel")
	}
	v := &Volume{size: size}
	v.nodes = append(v.nodes, node{value: fill, children: noChildren})
	return v
}

func (v *Volume) Size() int32 {
	return v.size
}

// Version counts actual mutations. Writing a value a cell already holds
// does not advance it.
func (v *Volume) Version() uint64 {
	return v.version
}

// NodeCount returns the number of live nodes in the arena.
func (v *Volume) NodeCount() int {
	return 1 + 8*((len(v.nodes)-1)/8-len(v.free))
}

func (v *Volume) Contains(x, y, z int32) bool {
	return x >= 0 && x < v.size && y >= 0 && y < v.size && z >= 0 && z < v.size
}

func (v *Volume) checkBounds(x, y, z int32) {
	if !v.Contains(x, y, z) {
		panic(fmt.Sprintf("voxel: coordinate (%d, %d, %d) outside volume of size %d", x, y, z, v.size))
	}
}

// IsUniform reports whether the whole volume holds a single value.
func (v *Volume) IsUniform() bool {
	return v.nodes[0].children == noChildren
}

// UniformValue returns the single value of a uniform volume.
func (v *Volume) UniformValue() (BlockID, bool) {
	if !v.IsUniform() {
		return Air, false
	}
	return v.nodes[0].value, true
}

// Get returns the block at the given local coordinate.
func (v *Volume) Get(x, y, z int32) BlockID {
	v.checkBounds(x, y, z)
	var ox, oy, oz int32
	idx := int32(0)
	half := v.size / 2
	for {
		n := v.nodes[idx]
		if n.children == noChildren {
			return n.value
		}
		// pick the octant by comparing against the node center
		oct := int32(0)
		if x >= ox+half {
			oct |= 1
			ox += half
		}
		if y >= oy+half {
			oct |= 2
			oy += half
		}
		if z >= oz+half {
			oct |= 4
			oz += half
		}
		idx = n.children + oct
		half /= 2
	}
}

// Set writes the block at the given local coordinate, splitting uniform
// leaves on the way down and collapsing exhausted branches on the way up.
func (v *Volume) Set(x, y, z int32, id BlockID) {
	v.checkBounds(x, y, z)
	if id == Null {
		panic("voxel: cannot store the Null sentinel")
	}
	if v.setNode(0, 0, 0, 0, v.size, x, y, z, id) {
		v.version++
	}
}

func (v *Volume) setNode(idx, ox, oy, oz, size, x, y, z int32, id BlockID) bool {
	if v.nodes[idx].children == noChildren {
		if v.nodes[idx].value == id {
			return false
		}
		if size == 1 {
			v.nodes[idx].value = id
			return true
		}
		v.split(idx)
	}
	half := size / 2
	oct := int32(0)
	if x >= ox+half {
		oct |= 1
		ox += half
	}
	if y >= oy+half {
		oct |= 2
		oy += half
	}
	if z >= oz+half {
		oct |= 4
		oz += half
	}
	changed := v.setNode(v.nodes[idx].children+oct, ox, oy, oz, half, x, y, z, id)
	if changed {
		v.tryCollapse(idx)
	}
	return changed
}

// split turns a leaf into a branch whose 8 children inherit the leaf value.
func (v *Volume) split(idx int32) {
	value := v.nodes[idx].value
	base := v.allocChildren()
	for i := int32(0); i < 8; i++ {
		v.nodes[base+i] = node{value: value, children: noChildren}
	}
	v.nodes[idx].children = base
}

// tryCollapse folds a branch back into a leaf when all 8 children are
// leaves of the same value. The child block returns to the free list.
func (v *Volume) tryCollapse(idx int32) {
	base := v.nodes[idx].children
	first := v.nodes[base]
	if first.children != noChildren {
		return
	}
	for i := int32(1); i < 8; i++ {
		c := v.nodes[base+i]
		if c.children != noChildren || c.value != first.value {
			return
		}
	}
	v.nodes[idx] = node{value: first.value, children: noChildren}
	v.free = append(v.free, base)
}

func (v *Volume) allocChildren() int32 {
	if n := len(v.free); n > 0 {
		base := v.free[n-1]
		v.free = v.free[:n-1]
		return base
	}
	base := int32(len(v.nodes))
	v.nodes = append(v.nodes, make([]node, 8)...)
	return base
}

// Fill resets the whole volume to a single value.
func (v *Volume) Fill(id BlockID) {
	if id == Null {
		panic("voxel: cannot store the Null sentinel")
	}
	if value, uniform := v.UniformValue(); uniform && value == id {
		return
	}
	v.nodes = v.nodes[:1]
	v.nodes[0] = node{value: id, children: noChildren}
	v.free = v.free[:0]
	v.version++
}

// Decompress flattens the volume into dst, x fastest, z slowest.
// dst must hold exactly size³ entries.
func (v *Volume) Decompress(dst []BlockID) {
	if int32(len(dst)) != v.size*v.size*v.size {
		panic(fmt.Sprintf("voxel: decompress buffer has %d cells, volume needs %d", len(dst), v.size*v.size*v.size))
	}
	v.fillRegion(dst, 0, 0, 0, 0, v.size)
}

func (v *Volume) fillRegion(dst []BlockID, idx, ox, oy, oz, size int32) {
	n := v.nodes[idx]
	if n.children == noChildren {
		for z := oz; z < oz+size; z++ {
			for y := oy; y < oy+size; y++ {
				row := blockIndex(ox, y, z, v.size)
				for x := int32(0); x < size; x++ {
					dst[row+x] = n.value
				}
			}
		}
		return
	}
	half := size / 2
	for oct := int32(0); oct < 8; oct++ {
		cx, cy, cz := ox, oy, oz
		if oct&1 != 0 {
			cx += half
		}
		if oct&2 != 0 {
			cy += half
		}
		if oct&4 != 0 {
			cz += half
		}
		v.fillRegion(dst, n.children+oct, cx, cy, cz, half)
	}
}
