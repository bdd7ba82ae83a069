package world

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/memmaker/chunkforge/engine/sched"
	"github.com/memmaker/chunkforge/engine/store"
	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

type ChunkState int

const (
	// StateEmpty chunks have no content yet; neighbors read them as
	// unloaded space.
	StateEmpty ChunkState = iota
	StateGenerating
	StateReady
	StateMeshing
)

func (s ChunkState) String() string {
	return [...]string{"empty", "generating", "ready", "meshing"}[s]
}

type pendingEdit struct {
	local voxel.Int3
	id    voxel.BlockID
}

// Chunk is one grid cell of the managed world.
type Chunk struct {
	coord   voxel.Int3
	origin  voxel.Int3
	volume  *voxel.Volume
	state   ChunkState
	dirty   bool
	wantGen bool
	pending []pendingEdit
	meshJob *voxel.MeshJob
	genJob  *sched.Handle
}

func (c *Chunk) Coord() voxel.Int3 {
	return c.coord
}

func (c *Chunk) Origin() voxel.Int3 {
	return c.origin
}

func (c *Chunk) State() ChunkState {
	return c.state
}

// Volume exposes the chunk content for exporters and tests. Do not mutate
// it directly; route edits through Manager.SetBlock.
func (c *Chunk) Volume() *voxel.Volume {
	return c.volume
}

// Options configure a Manager. Scheduler and Registry are required;
// everything else has a usable zero value.
type Options struct {
	ChunkSize  int32      // edge length, default DefaultChunkSize
	Dimensions voxel.Int3 // world extent in chunks per axis

	Registry      voxel.Registry
	Scheduler     *sched.Scheduler
	Pool          *voxel.BufferPool // shared when set, created otherwise
	Biome         Biome             // terrain source for GenerateAll
	Store         *store.ChunkStore // persistence for LoadOrGenerate/SaveAll
	DisableGreedy bool

	// OnMesh receives every completed chunk mesh during Update. The mesh
	// belongs to the callback; hand it back to Pool once consumed. Without
	// a callback meshes are recycled immediately (bench mode).
	OnMesh func(coord voxel.Int3, mesh *voxel.MeshData)
}

// Manager owns the chunk grid and drives the pipeline: generation jobs,
// meshing jobs, edit routing and persistence. All methods must be called
// from one goroutine; the explicit Update tick is the only place state
// advances, worker results included. Edits to a chunk whose mesh is in
// flight, or whose face neighbor is being meshed, are deferred and applied
// on the tick after that mesh completes, so a completed mesh always
// reflects every edit submitted before it started and no edit is lost.
type Manager struct {
	size     int32
	dims     voxel.Int3
	chunks   []*Chunk
	registry voxel.Registry
	sched    *sched.Scheduler
	pool     *voxel.BufferPool
	mesher   *voxel.Mesher
	biome    Biome
	store    *store.ChunkStore
	onMesh   func(voxel.Int3, *voxel.MeshData)
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("world: a scheduler is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("world: a registry is required")
	}
	size := opts.ChunkSize
	if size == 0 {
		size = voxel.DefaultChunkSize
	}
	dims := opts.Dimensions
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, errors.Errorf("world: invalid dimensions %s", dims.ToString())
	}
	pool := opts.Pool
	if pool == nil {
		pool = voxel.NewBufferPool(size, 8)
	}
	m := &Manager{
		size:     size,
		dims:     dims,
		registry: opts.Registry,
		sched:    opts.Scheduler,
		pool:     pool,
		biome:    opts.Biome,
		store:    opts.Store,
		onMesh:   opts.OnMesh,
	}
	m.mesher = voxel.NewMesher(opts.Registry, pool, voxel.MeshOptions{GreedyExtension: !opts.DisableGreedy})

	m.chunks = make([]*Chunk, dims.X*dims.Y*dims.Z)
	for z := int32(0); z < dims.Z; z++ {
		for y := int32(0); y < dims.Y; y++ {
			for x := int32(0); x < dims.X; x++ {
				coord := voxel.Int3{X: x, Y: y, Z: z}
				m.chunks[m.chunkIndex(coord)] = &Chunk{
					coord:  coord,
					origin: coord.Mul(size),
					volume: voxel.NewVolume(size, voxel.Air),
					state:  StateEmpty,
				}
			}
		}
	}
	return m, nil
}

func (m *Manager) Size() int32 {
	return m.size
}

func (m *Manager) Dimensions() voxel.Int3 {
	return m.dims
}

func (m *Manager) Mesher() *voxel.Mesher {
	return m.mesher
}

func (m *Manager) Pool() *voxel.BufferPool {
	return m.pool
}

func (m *Manager) chunkIndex(coord voxel.Int3) int32 {
	return coord.X + coord.Y*m.dims.X + coord.Z*m.dims.X*m.dims.Y
}

// ChunkAt returns the chunk at grid coordinates, nil outside the world.
func (m *Manager) ChunkAt(coord voxel.Int3) *Chunk {
	if coord.X < 0 || coord.X >= m.dims.X ||
		coord.Y < 0 || coord.Y >= m.dims.Y ||
		coord.Z < 0 || coord.Z >= m.dims.Z {
		return nil
	}
	return m.chunks[m.chunkIndex(coord)]
}

// ForEach visits every chunk in grid order.
func (m *Manager) ForEach(fn func(c *Chunk)) {
	for _, c := range m.chunks {
		fn(c)
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ChunkCoordAt maps a global block position to chunk grid coordinates.
func (m *Manager) ChunkCoordAt(pos voxel.Int3) voxel.Int3 {
	return voxel.Int3{
		X: floorDiv(pos.X, m.size),
		Y: floorDiv(pos.Y, m.size),
		Z: floorDiv(pos.Z, m.size),
	}
}

// GetBlock reads a global position. Outside the world, and in chunks whose
// content does not exist yet, it reads as Null.
func (m *Manager) GetBlock(pos voxel.Int3) voxel.BlockID {
	c := m.ChunkAt(m.ChunkCoordAt(pos))
	if c == nil || c.state == StateEmpty || c.state == StateGenerating {
		return voxel.Null
	}
	local := pos.Sub(c.origin)
	return c.volume.Get(local.X, local.Y, local.Z)
}

// SetBlock routes an edit to its chunk, deferring it while the chunk or a
// face neighbor has a mesh in flight. Edits outside the world are dropped
// with a log line.
func (m *Manager) SetBlock(pos voxel.Int3, id voxel.BlockID) {
	c := m.ChunkAt(m.ChunkCoordAt(pos))
	if c == nil {
		util.LogWorldError(fmt.Sprintf("[World] edit outside the world at %s", pos.ToString()))
		return
	}
	local := pos.Sub(c.origin)
	if m.editBlocked(c) {
		c.pending = append(c.pending, pendingEdit{local: local, id: id})
		return
	}
	m.applyEdit(c, local, id)
}

// editBlocked reports whether an edit must wait: the chunk is generating,
// its own mesh is in flight, or a face neighbor's meshing pass may be
// reading this chunk's border right now.
func (m *Manager) editBlocked(c *Chunk) bool {
	if c.state == StateMeshing || c.state == StateGenerating {
		return true
	}
	for face := voxel.XP; face <= voxel.ZN; face++ {
		if n := m.ChunkAt(c.coord.Add(face.Normal())); n != nil && n.state == StateMeshing {
			return true
		}
	}
	return false
}

func (m *Manager) applyEdit(c *Chunk, local voxel.Int3, id voxel.BlockID) {
	c.volume.Set(local.X, local.Y, local.Z, id)
	if c.state == StateEmpty {
		c.state = StateReady
	}
	c.dirty = true

	// a border edit changes the neighbor's culling too
	for face := voxel.XP; face <= voxel.ZN; face++ {
		onBorder := false
		switch face {
		case voxel.XP:
			onBorder = local.X == m.size-1
		case voxel.XN:
			onBorder = local.X == 0
		case voxel.YP:
			onBorder = local.Y == m.size-1
		case voxel.YN:
			onBorder = local.Y == 0
		case voxel.ZP:
			onBorder = local.Z == m.size-1
		case voxel.ZN:
			onBorder = local.Z == 0
		}
		if !onBorder {
			continue
		}
		if n := m.ChunkAt(c.coord.Add(face.Normal())); n != nil && n.state != StateEmpty {
			n.dirty = true
		}
	}
}

// Neighbors implements voxel.NeighborResolver over the chunk grid. Chunks
// without content resolve as unloaded.
func (m *Manager) Neighbors(origin voxel.Int3) [6]*voxel.Volume {
	coord := m.ChunkCoordAt(origin)
	var result [6]*voxel.Volume
	for face := voxel.XP; face <= voxel.ZN; face++ {
		n := m.ChunkAt(coord.Add(face.Normal()))
		if n != nil && (n.state == StateReady || n.state == StateMeshing) {
			result[face] = n.volume
		}
	}
	return result
}

// RequestRemesh marks a chunk dirty without an edit, e.g. after a registry
// change.
func (m *Manager) RequestRemesh(coord voxel.Int3) {
	if c := m.ChunkAt(coord); c != nil && c.state != StateEmpty {
		c.dirty = true
	}
}

// GenerateAll queues terrain generation for every chunk that has no
// content yet.
func (m *Manager) GenerateAll() error {
	if m.biome == nil {
		return errors.New("world: no biome configured")
	}
	for _, c := range m.chunks {
		if c.state == StateEmpty {
			c.wantGen = true
		}
	}
	return nil
}

// LoadOrGenerate fills empty chunks from the store where a snapshot
// exists and queues generation for the rest.
func (m *Manager) LoadOrGenerate() error {
	if m.store == nil {
		return m.GenerateAll()
	}
	for _, c := range m.chunks {
		if c.state != StateEmpty {
			continue
		}
		vol, ok, err := m.store.Get(c.origin)
		if err != nil {
			return err
		}
		if ok {
			if vol.Size() != m.size {
				return errors.Errorf("world: stored chunk %s has size %d, world uses %d", c.origin.ToString(), vol.Size(), m.size)
			}
			c.volume = vol
			c.state = StateReady
			c.dirty = true
			continue
		}
		if m.biome != nil {
			c.wantGen = true
		}
	}
	return nil
}

// SaveAll writes every contentful chunk to the store.
func (m *Manager) SaveAll() error {
	if m.store == nil {
		return errors.New("world: no store configured")
	}
	for _, c := range m.chunks {
		if c.state == StateReady || c.state == StateMeshing {
			if err := m.store.Put(c.origin, c.volume); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update is the pipeline tick: collect finished jobs, apply deferred
// edits that became unblocked, then kick generation and meshing for
// whatever wants it. Queue-full rejections simply leave work for the next
// tick.
func (m *Manager) Update() {
	m.collectFinished()
	m.applyPending()
	m.kickGeneration()
	m.kickMeshing()
}

func (m *Manager) collectFinished() {
	for _, c := range m.chunks {
		if c.genJob != nil {
			select {
			case <-c.genJob.Done():
				err := c.genJob.Err()
				c.genJob = nil
				if err != nil {
					c.state = StateEmpty
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						c.wantGen = true
						break
					}
					util.LogWorldError(fmt.Sprintf("[World] generation of %s failed: %v", c.coord.ToString(), err))
					break
				}
				c.state = StateReady
				c.dirty = true
				for face := voxel.XP; face <= voxel.ZN; face++ {
					if n := m.ChunkAt(c.coord.Add(face.Normal())); n != nil && n.state != StateEmpty {
						n.dirty = true
					}
				}
			default:
			}
		}
		if c.meshJob != nil {
			select {
			case <-c.meshJob.Done():
				job := c.meshJob
				c.meshJob = nil
				c.state = StateReady
				if err := job.Err(); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						// shutdown or timeout, the content is still good
						util.LogWorldDebug(fmt.Sprintf("[World] mesh of %s canceled", c.coord.ToString()))
						c.dirty = true
						break
					}
					util.LogWorldError(fmt.Sprintf("[World] mesh of %s failed: %v", c.coord.ToString(), err))
					break
				}
				mesh := job.Result()
				if m.onMesh != nil {
					m.onMesh(c.coord, mesh)
				} else {
					m.pool.ReleaseMesh(mesh)
				}
			default:
			}
		}
	}
}

func (m *Manager) applyPending() {
	for _, c := range m.chunks {
		if len(c.pending) == 0 || m.editBlocked(c) {
			continue
		}
		for _, e := range c.pending {
			m.applyEdit(c, e.local, e.id)
		}
		c.pending = c.pending[:0]
	}
}

func (m *Manager) kickGeneration() {
	for _, c := range m.chunks {
		if !c.wantGen || c.state != StateEmpty || c.genJob != nil {
			continue
		}
		chunk := c
		handle, err := m.sched.Submit("generate "+c.coord.ToString(), func(ctx context.Context) error {
			return m.biome.Fill(ctx, chunk.volume, chunk.origin)
		})
		if err != nil {
			// backpressure: wantGen stays set, next tick retries
			continue
		}
		c.wantGen = false
		c.genJob = handle
		c.state = StateGenerating
	}
}

func (m *Manager) kickMeshing() {
	for _, c := range m.chunks {
		if !c.dirty || c.state != StateReady || c.meshJob != nil {
			continue
		}
		job, err := voxel.BeginMesh(m.sched, m.mesher, c.volume, c.origin, m)
		if err != nil {
			// backpressure: dirty stays set, next tick retries
			continue
		}
		c.meshJob = job
		c.state = StateMeshing
		c.dirty = false
	}
}

// Idle reports whether nothing is queued, running, deferred or dirty.
func (m *Manager) Idle() bool {
	for _, c := range m.chunks {
		if c.dirty || c.wantGen || len(c.pending) > 0 || c.meshJob != nil || c.genJob != nil {
			return false
		}
	}
	return true
}
