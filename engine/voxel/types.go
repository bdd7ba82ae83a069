package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// BlockID identifies a block type inside a volume. Air is the empty cell,
// Null marks cells in unloaded space. Null never appears inside a volume or a
// snapshot; it only shows up in neighbor lookups so that loaded terrain is
// faced at the border instead of showing seams.
type BlockID uint16

const (
	Air  BlockID = 0
	Null BlockID = 0xFFFF
)

// DefaultChunkSize is the edge length used by the world layer. Volumes accept
// any power of two up to MaxChunkSize, which is bounded by the 6-bit corner
// packing in MeshData.
const (
	DefaultChunkSize int32 = 32
	MaxChunkSize     int32 = 32
)

type Int3 struct {
	X, Y, Z int32
}

func (i Int3) Add(other Int3) Int3 {
	return Int3{i.X + other.X, i.Y + other.Y, i.Z + other.Z}
}

func (i Int3) Sub(other Int3) Int3 {
	return Int3{i.X - other.X, i.Y - other.Y, i.Z - other.Z}
}

func (i Int3) Mul(factor int32) Int3 {
	return Int3{i.X * factor, i.Y * factor, i.Z * factor}
}

func (i Int3) Div(factor int32) Int3 {
	return Int3{i.X / factor, i.Y / factor, i.Z / factor}
}

func (i Int3) ToVec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(i.X), float32(i.Y), float32(i.Z)}
}

func (i Int3) ToBlockCenterVec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(i.X) + 0.5, float32(i.Y) + 0.5, float32(i.Z) + 0.5}
}

func (i Int3) ToString() string {
	return fmt.Sprintf("(%d, %d, %d)", i.X, i.Y, i.Z)
}

// Face enumerates the six cube faces. The order is fixed: the wire format,
// the visit masks and the shaders all index by it.
type Face int32

const (
	XP Face = iota
	XN
	YP
	YN
	ZP
	ZN
)

func (f Face) String() string {
	return [...]string{"XP", "XN", "YP", "YN", "ZP", "ZN"}[f]
}

// Opposite returns the mirrored face. Positive and negative pair up as
// adjacent values, so flipping the low bit is enough.
func (f Face) Opposite() Face {
	return f ^ 1
}

// IsPositive reports whether the face points along the positive axis
// direction. Negative faces reverse their corner order when emitted.
func (f Face) IsPositive() bool {
	return f&1 == 0
}

// faceInfo describes one meshing direction: the axis the face is
// perpendicular to, the step toward the facing cell, and the two tangent
// axes greedy runs extend along, in extension order.
type faceInfo struct {
	axis    int
	tangent [2]int
	normal  Int3
}

var faceTable = [6]faceInfo{
	XP: {axis: 0, tangent: [2]int{1, 2}, normal: Int3{1, 0, 0}},
	XN: {axis: 0, tangent: [2]int{1, 2}, normal: Int3{-1, 0, 0}},
	YP: {axis: 1, tangent: [2]int{0, 2}, normal: Int3{0, 1, 0}},
	YN: {axis: 1, tangent: [2]int{0, 2}, normal: Int3{0, -1, 0}},
	ZP: {axis: 2, tangent: [2]int{1, 0}, normal: Int3{0, 0, 1}},
	ZN: {axis: 2, tangent: [2]int{1, 0}, normal: Int3{0, 0, -1}},
}

// Normal returns the unit step toward the cell this face looks at.
func (f Face) Normal() Int3 {
	return faceTable[f].normal
}

func isPowerOfTwo(v int32) bool {
	return v > 0 && v&(v-1) == 0
}

// blockIndex flattens local coordinates, x fastest, z slowest.
func blockIndex(x, y, z, size int32) int32 {
	return x + y*size + z*size*size
}
