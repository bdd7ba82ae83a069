package voxel

import "sync"

// PoolStats is a snapshot of pool traffic, exposed for diagnostics.
type PoolStats struct {
	Hits   uint64
	Misses uint64
	Drops  uint64
}

// BufferPool recycles the three mesh-sized buffers a meshing pass needs:
// the decompression scratch array, the face visit mask and the mesh
// accumulator. Each kind keeps at most limit idle buffers; releases beyond
// that are dropped for the GC. Masks and meshes come back reset; scratch
// contents are unspecified since Decompress overwrites every cell.
//
// Safe for concurrent use.
type BufferPool struct {
	mu      sync.Mutex
	size    int32
	limit   int
	scratch [][]BlockID
	masks   []*VisitMask
	meshes  []*MeshData
	stats   PoolStats
}

// NewBufferPool returns a pool for volumes of the given edge length,
// keeping at most limit idle buffers per kind.
func NewBufferPool(size int32, limit int) *BufferPool {
	if limit < 0 {
		limit = 0
	}
	return &BufferPool{size: size, limit: limit}
}

func (p *BufferPool) Size() int32 {
	return p.size
}

func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *BufferPool) AcquireScratch() []BlockID {
	p.mu.Lock()
	if n := len(p.scratch); n > 0 {
		b := p.scratch[n-1]
		p.scratch = p.scratch[:n-1]
		p.stats.Hits++
		p.mu.Unlock()
		return b
	}
	p.stats.Misses++
	p.mu.Unlock()
	return make([]BlockID, p.size*p.size*p.size)
}

func (p *BufferPool) ReleaseScratch(b []BlockID) {
	if int32(len(b)) != p.size*p.size*p.size {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.scratch) >= p.limit {
		p.stats.Drops++
		return
	}
	p.scratch = append(p.scratch, b)
}

func (p *BufferPool) AcquireMask() *VisitMask {
	p.mu.Lock()
	if n := len(p.masks); n > 0 {
		m := p.masks[n-1]
		p.masks = p.masks[:n-1]
		p.stats.Hits++
		p.mu.Unlock()
		return m
	}
	p.stats.Misses++
	p.mu.Unlock()
	return NewVisitMask(p.size)
}

func (p *BufferPool) ReleaseMask(m *VisitMask) {
	if m == nil || m.Size() != p.size {
		return
	}
	m.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.masks) >= p.limit {
		p.stats.Drops++
		return
	}
	p.masks = append(p.masks, m)
}

func (p *BufferPool) AcquireMesh() *MeshData {
	p.mu.Lock()
	if n := len(p.meshes); n > 0 {
		m := p.meshes[n-1]
		p.meshes = p.meshes[:n-1]
		p.stats.Hits++
		p.mu.Unlock()
		return m
	}
	p.stats.Misses++
	p.mu.Unlock()
	return NewMeshData()
}

func (p *BufferPool) ReleaseMesh(m *MeshData) {
	if m == nil {
		return
	}
	m.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.meshes) >= p.limit {
		p.stats.Drops++
		return
	}
	p.meshes = append(p.meshes, m)
}
