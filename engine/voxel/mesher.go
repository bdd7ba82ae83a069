package voxel

import (
	"context"
	"fmt"
)

// MeshOptions control a meshing pass.
type MeshOptions struct {
	// GreedyExtension merges coplanar faces of the same block into larger
	// quads. Disabled, every exposed face becomes its own unit quad.
	GreedyExtension bool
}

func DefaultMeshOptions() MeshOptions {
	return MeshOptions{GreedyExtension: true}
}

// Mesher turns a volume plus its six neighbors into packed mesh buffers.
// One pass walks every cell exactly once per exposed face direction; the
// visit mask keeps merged faces from being emitted twice.
//
// A Mesher is bound to one chunk size through its pool. It is stateless
// across passes and safe to share between workers.
type Mesher struct {
	registry Registry
	pool     *BufferPool
	opts     MeshOptions
}

func NewMesher(registry Registry, pool *BufferPool, opts MeshOptions) *Mesher {
	if registry == nil {
		panic("voxel: mesher needs a registry")
	}
	if pool == nil {
		panic("voxel: mesher needs a buffer pool")
	}
	return &Mesher{registry: registry, pool: pool, opts: opts}
}

func (m *Mesher) Pool() *BufferPool {
	return m.pool
}

// Mesh runs one meshing pass. The origin is the chunk's position in block
// coordinates and only feeds the UV rule. Neighbor volumes must share the
// volume's size; nil slots read as Null. Cancellation is polled per cell;
// a canceled pass returns ctx's error and recycles every borrowed buffer.
//
// The returned MeshData comes from the mesher's pool. Hand it back via
// ReleaseMesh once uploaded or exported.
func (m *Mesher) Mesh(ctx context.Context, vol *Volume, origin Int3, neighbors [6]*Volume) (*MeshData, error) {
	if vol.Size() != m.pool.Size() {
		panic(fmt.Sprintf("voxel: volume size %d does not match mesher size %d", vol.Size(), m.pool.Size()))
	}
	// an all-air chunk has no surface, skip the pass entirely
	if value, uniform := vol.UniformValue(); uniform && value == Air {
		return m.pool.AcquireMesh(), nil
	}

	scratch := m.pool.AcquireScratch()
	defer m.pool.ReleaseScratch(scratch)
	vol.Decompress(scratch)

	return m.meshCells(ctx, scratch, origin, neighbors)
}

// meshCells runs the pass over an already decompressed snapshot. BeginMesh
// uses it to snapshot on the submitter and mesh on a worker.
func (m *Mesher) meshCells(ctx context.Context, cells []BlockID, origin Int3, neighbors [6]*Volume) (*MeshData, error) {
	mask := m.pool.AcquireMask()
	defer m.pool.ReleaseMask(mask)
	mesh := m.pool.AcquireMesh()

	pass := meshPass{
		m:         m,
		size:      m.pool.Size(),
		cells:     cells,
		mask:      mask,
		neighbors: neighbors,
		origin:    origin,
		mesh:      mesh,
	}
	if err := pass.run(ctx); err != nil {
		m.pool.ReleaseMesh(mesh)
		return nil, err
	}
	return mesh, nil
}

type meshPass struct {
	m         *Mesher
	size      int32
	cells     []BlockID
	mask      *VisitMask
	neighbors [6]*Volume
	origin    Int3
	mesh      *MeshData
}

func (p *meshPass) run(ctx context.Context) error {
	idx := int32(0)
	for z := int32(0); z < p.size; z++ {
		for y := int32(0); y < p.size; y++ {
			for x := int32(0); x < p.size; x++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if id := p.cells[idx]; id != Air {
					p.meshCell(x, y, z, idx, id)
				}
				idx++
			}
		}
	}
	return nil
}

func (p *meshPass) meshCell(x, y, z, idx int32, id BlockID) {
	transparent := p.m.registry.IsTransparent(id)
	for face := XP; face <= ZN; face++ {
		if p.mask.Visited(idx, face) {
			continue
		}
		if !p.shouldEmit(id, transparent, p.facingBlock(x, y, z, face)) {
			continue
		}
		p.coverFace(idx, x, y, z, face, transparent)

		w, h := int32(1), int32(1)
		if p.m.opts.GreedyExtension {
			w += p.extendRun(x, y, z, face, id, transparent)
			h += p.extendRows(x, y, z, face, w, id, transparent)
		}
		p.emitQuad(x, y, z, face, w, h, id, transparent)
	}
}

// shouldEmit is the culling rule. Null always shows a face so unloaded
// borders never open up. Transparent blocks cull only against themselves,
// water against water; opaque blocks show a face wherever a transparent
// cell (air included) looks at them.
func (p *meshPass) shouldEmit(id BlockID, transparent bool, facing BlockID) bool {
	if facing == Null {
		return true
	}
	if transparent {
		return facing != id
	}
	return p.m.registry.IsTransparent(facing)
}

// facingBlock reads the cell a face looks at: inside the volume from the
// decompressed snapshot, across a chunk border from the neighbor volume at
// the wrapped coordinate, Null when that neighbor is unloaded.
func (p *meshPass) facingBlock(x, y, z int32, face Face) BlockID {
	n := faceTable[face].normal
	cx, cy, cz := x+n.X, y+n.Y, z+n.Z
	if cx >= 0 && cx < p.size && cy >= 0 && cy < p.size && cz >= 0 && cz < p.size {
		return p.cells[blockIndex(cx, cy, cz, p.size)]
	}
	nb := p.neighbors[face]
	if nb == nil {
		return Null
	}
	return nb.Get((cx+p.size)%p.size, (cy+p.size)%p.size, (cz+p.size)%p.size)
}

// coverFace marks a cell face as handled. For opaque cells emitting along a
// positive direction the facing cell's mirrored face is pre-marked too: it
// could only ever z-fight the quad that now covers it.
func (p *meshPass) coverFace(idx, x, y, z int32, face Face, transparent bool) {
	p.mask.Mark(idx, face)
	if transparent || !face.IsPositive() {
		return
	}
	n := faceTable[face].normal
	cx, cy, cz := x+n.X, y+n.Y, z+n.Z
	if cx >= 0 && cx < p.size && cy >= 0 && cy < p.size && cz >= 0 && cz < p.size {
		p.mask.Mark(blockIndex(cx, cy, cz, p.size), face.Opposite())
	}
}

// mergeable reports whether the cell can join a quad for the given face:
// same block, face not yet covered, and the same emit decision against its
// own facing cell.
func (p *meshPass) mergeable(cx, cy, cz int32, face Face, id BlockID, transparent bool) bool {
	cIdx := blockIndex(cx, cy, cz, p.size)
	if p.cells[cIdx] != id || p.mask.Visited(cIdx, face) {
		return false
	}
	return p.shouldEmit(id, transparent, p.facingBlock(cx, cy, cz, face))
}

// extendRun grows the run from the cell along the face's first tangent
// axis, marking absorbed cells. Returns how many cells joined beyond the
// origin.
func (p *meshPass) extendRun(x, y, z int32, face Face, id BlockID, transparent bool) int32 {
	axis := faceTable[face].tangent[0]
	run := int32(0)
	for {
		cx, cy, cz := step(x, y, z, axis, run+1)
		if axisCoord(cx, cy, cz, axis) >= p.size {
			break
		}
		if !p.mergeable(cx, cy, cz, face, id, transparent) {
			break
		}
		p.coverFace(blockIndex(cx, cy, cz, p.size), cx, cy, cz, face, transparent)
		run++
	}
	return run
}

// extendRows grows the w-wide strip along the second tangent axis, one full
// row at a time. A row joins only when every cell in it merges.
func (p *meshPass) extendRows(x, y, z int32, face Face, w int32, id BlockID, transparent bool) int32 {
	first := faceTable[face].tangent[0]
	second := faceTable[face].tangent[1]
	rows := int32(0)
	for {
		rx, ry, rz := step(x, y, z, second, rows+1)
		if axisCoord(rx, ry, rz, second) >= p.size {
			break
		}
		fits := true
		for i := int32(0); i < w; i++ {
			cx, cy, cz := step(rx, ry, rz, first, i)
			if !p.mergeable(cx, cy, cz, face, id, transparent) {
				fits = false
				break
			}
		}
		if !fits {
			break
		}
		for i := int32(0); i < w; i++ {
			cx, cy, cz := step(rx, ry, rz, first, i)
			p.coverFace(blockIndex(cx, cy, cz, p.size), cx, cy, cz, face, transparent)
		}
		rows++
	}
	return rows
}

// emitQuad writes the merged face: w cells along the first tangent axis,
// h along the second, lifted onto the face plane of the origin cell.
func (p *meshPass) emitQuad(x, y, z int32, face Face, w, h int32, id BlockID, transparent bool) {
	info := faceTable[face]
	base := Int3{x, y, z}
	if face.IsPositive() {
		base = base.Add(axisUnit(info.axis))
	}
	du := axisUnit(info.tangent[0]).Mul(w)
	dv := axisUnit(info.tangent[1]).Mul(h)
	corners := [4]Int3{
		base,
		base.Add(du),
		base.Add(du).Add(dv),
		base.Add(dv),
	}
	globalPos := p.origin.Add(Int3{x, y, z})
	uvs, hasUV := p.m.registry.UV(id, globalPos, face, w, h)
	p.mesh.AppendQuad(corners, face, uvs, hasUV, transparent)
}

func axisUnit(axis int) Int3 {
	switch axis {
	case 0:
		return Int3{1, 0, 0}
	case 1:
		return Int3{0, 1, 0}
	default:
		return Int3{0, 0, 1}
	}
}

func step(x, y, z int32, axis int, delta int32) (int32, int32, int32) {
	switch axis {
	case 0:
		return x + delta, y, z
	case 1:
		return x, y + delta, z
	default:
		return x, y, z + delta
	}
}

func axisCoord(x, y, z int32, axis int) int32 {
	switch axis {
	case 0:
		return x
	case 1:
		return y
	default:
		return z
	}
}
