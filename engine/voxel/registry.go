package voxel

import "fmt"

// UV is one packed texture corner of a quad: repeat counts along the quad's
// two tangent directions plus the atlas tile to sample. Repeats beyond 1
// make the sampler tile the texture across a merged quad.
type UV struct {
	U, V uint8
	Tile uint8
}

// UVQuad holds the four corners of a face in the same order as the emitted
// vertices.
type UVQuad [4]UV

// Registry classifies blocks for the mesher and supplies their UV rules.
// IsTransparent decides face culling (Air is transparent; the Null sentinel
// never reaches the registry). UV may report absent for blocks without a
// texture rule; geometry is still emitted, the UV stream gets zero words.
type Registry interface {
	IsTransparent(id BlockID) bool
	UV(id BlockID, pos Int3, face Face, width, height int32) (UVQuad, bool)
}

// BlockDescriptor is one entry of an AtlasRegistry.
type BlockDescriptor struct {
	ID          BlockID
	Name        string
	Transparent bool
	// Textures holds one atlas tile index per face, in Face order.
	Textures [6]uint8
}

// AtlasRegistry is the standard Registry: a name/id table over a square
// texture atlas, ids handed out sequentially starting after Air.
type AtlasRegistry struct {
	blocks   []BlockDescriptor
	nameToID map[string]BlockID
}

func NewAtlasRegistry() *AtlasRegistry {
	r := &AtlasRegistry{
		nameToID: make(map[string]BlockID),
	}
	r.blocks = append(r.blocks, BlockDescriptor{ID: Air, Name: "air", Transparent: true})
	r.nameToID["air"] = Air
	return r
}

// Add registers a block under the next free id and returns it.
func (r *AtlasRegistry) Add(name string, transparent bool, textures [6]uint8) BlockID {
	if _, exists := r.nameToID[name]; exists {
		panic(fmt.Sprintf("voxel: block %q already registered", name))
	}
	id := BlockID(len(r.blocks))
	if id >= Null {
		panic("voxel: block id space exhausted")
	}
	r.blocks = append(r.blocks, BlockDescriptor{
		ID:          id,
		Name:        name,
		Transparent: transparent,
		Textures:    textures,
	})
	r.nameToID[name] = id
	return id
}

// AddUniform registers a block that shows the same tile on every face.
func (r *AtlasRegistry) AddUniform(name string, transparent bool, tile uint8) BlockID {
	return r.Add(name, transparent, [6]uint8{tile, tile, tile, tile, tile, tile})
}

// ByName returns the id registered under name.
func (r *AtlasRegistry) ByName(name string) (BlockID, bool) {
	id, ok := r.nameToID[name]
	return id, ok
}

// Describe returns the descriptor for id, or nil for unknown ids.
func (r *AtlasRegistry) Describe(id BlockID) *BlockDescriptor {
	if int(id) >= len(r.blocks) {
		return nil
	}
	return &r.blocks[id]
}

func (r *AtlasRegistry) Count() int {
	return len(r.blocks)
}

// IsTransparent treats unknown ids as opaque, which errs on the side of
// culling hidden faces rather than leaking geometry.
func (r *AtlasRegistry) IsTransparent(id BlockID) bool {
	if int(id) >= len(r.blocks) {
		return false
	}
	return r.blocks[id].Transparent
}

func (r *AtlasRegistry) UV(id BlockID, pos Int3, face Face, width, height int32) (UVQuad, bool) {
	if id == Air || int(id) >= len(r.blocks) {
		return UVQuad{}, false
	}
	tile := r.blocks[id].Textures[face]
	w, h := uint8(width), uint8(height)
	return UVQuad{
		{U: 0, V: 0, Tile: tile},
		{U: w, V: 0, Tile: tile},
		{U: w, V: h, Tile: tile},
		{U: 0, V: h, Tile: tile},
	}, true
}
