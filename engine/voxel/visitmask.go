package voxel

// VisitMask tracks, per cell, which of its six faces a meshing pass has
// already covered with an emitted or merged quad. One byte per cell, one bit
// per face in Face order.
type VisitMask struct {
	bits []uint8
	size int32
}

func NewVisitMask(size int32) *VisitMask {
	return &VisitMask{
		bits: make([]uint8, size*size*size),
		size: size,
	}
}

func (m *VisitMask) Size() int32 {
	return m.size
}

func (m *VisitMask) Visited(idx int32, face Face) bool {
	return m.bits[idx]&(1<<uint(face)) != 0
}

func (m *VisitMask) Mark(idx int32, face Face) {
	m.bits[idx] |= 1 << uint(face)
}

func (m *VisitMask) Reset() {
	for i := range m.bits {
		m.bits[i] = 0
	}
}
