package voxel

// Vertex words pack a chunk-local corner position and the face direction:
// x | y<<6 | z<<12 | face<<18. Six bits per axis cover corner coordinates
// 0..MaxChunkSize. UV words pack a corner's repeat counts and atlas tile:
// u | v<<6 | tile<<12. Bits above 20 are currently zero in both streams.

func PackVertex(pos Int3, face Face) uint32 {
	return uint32(pos.X) | uint32(pos.Y)<<6 | uint32(pos.Z)<<12 | uint32(face)<<18
}

func UnpackVertex(word uint32) (Int3, Face) {
	pos := Int3{
		X: int32(word & 0x3F),
		Y: int32((word >> 6) & 0x3F),
		Z: int32((word >> 12) & 0x3F),
	}
	return pos, Face((word >> 18) & 0x7)
}

func PackUV(uv UV) uint32 {
	return uint32(uv.U) | uint32(uv.V)<<6 | uint32(uv.Tile)<<12
}

func UnpackUV(word uint32) UV {
	return UV{
		U:    uint8(word & 0x3F),
		V:    uint8((word >> 6) & 0x3F),
		Tile: uint8((word >> 12) & 0xFF),
	}
}

// MeshData is the mesher's output: two index-aligned packed vertex streams
// and separate index lists for the opaque and the transparent geometry.
// Every quad contributes 4 vertices and 6 indices. Positions are chunk-local;
// consumers place chunks with a model transform or by offsetting decoded
// positions.
type MeshData struct {
	Vertices []uint32
	UVs      []uint32

	OpaqueIndices      []uint32
	TransparentIndices []uint32
}

func NewMeshData() *MeshData {
	return &MeshData{}
}

func (m *MeshData) Reset() {
	m.Vertices = m.Vertices[:0]
	m.UVs = m.UVs[:0]
	m.OpaqueIndices = m.OpaqueIndices[:0]
	m.TransparentIndices = m.TransparentIndices[:0]
}

func (m *MeshData) Empty() bool {
	return len(m.OpaqueIndices) == 0 && len(m.TransparentIndices) == 0
}

func (m *MeshData) VertexCount() int {
	return len(m.Vertices)
}

func (m *MeshData) QuadCount() int {
	return len(m.Vertices) / 4
}

func (m *MeshData) TriangleCount() int {
	return (len(m.OpaqueIndices) + len(m.TransparentIndices)) / 3
}

// AppendQuad adds one face quad. Corners and UVs arrive in the canonical
// order bottom-left, bottom-right, top-right, top-left as seen from outside
// along the face normal of a positive direction; negative faces keep the
// same vertices and flip the winding through the index pattern.
func (m *MeshData) AppendQuad(corners [4]Int3, face Face, uvs UVQuad, hasUV bool, transparent bool) {
	base := uint32(len(m.Vertices))
	for i := 0; i < 4; i++ {
		m.Vertices = append(m.Vertices, PackVertex(corners[i], face))
		if hasUV {
			m.UVs = append(m.UVs, PackUV(uvs[i]))
		} else {
			m.UVs = append(m.UVs, 0)
		}
	}

	indices := &m.OpaqueIndices
	if transparent {
		indices = &m.TransparentIndices
	}
	if face.IsPositive() {
		*indices = append(*indices, base, base+1, base+2, base, base+2, base+3)
	} else {
		*indices = append(*indices, base, base+2, base+1, base, base+3, base+2)
	}
}
