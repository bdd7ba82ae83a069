package world

import (
	"context"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/memmaker/chunkforge/engine/voxel"
)

// Biome produces chunk content. Fill writes the chunk at origin into vol
// and has to derive everything from world coordinates, so that adjacent
// chunks line up no matter which worker fills them first.
type Biome interface {
	Fill(ctx context.Context, vol *voxel.Volume, origin voxel.Int3) error
	Name() string
}

// BlockSet names the ids a biome builds terrain from. Water set to Air
// leaves the world dry.
type BlockSet struct {
	Floor   voxel.BlockID
	Filler  voxel.BlockID
	Surface voxel.BlockID
	Water   voxel.BlockID
}

// HeightmapBiome is simplex-noise terrain: a floor layer at the world
// bottom, filler up to a per-column height, one surface layer on top and
// optional water in the dips. The noise domain is normalized by the world
// extent, so the same seed on a bigger world gives broader hills.
type HeightmapBiome struct {
	name      string
	noise     opensimplex.Noise
	blocks    BlockSet
	extent    voxel.Int3
	amplitude float64
	base      int32
	seaLevel  int32
}

// NewHeightmapBiome derives its vertical profile from the world extent:
// hills centered around a third of the height, water just below that.
func NewHeightmapBiome(name string, seed int64, blocks BlockSet, extent voxel.Int3) *HeightmapBiome {
	return &HeightmapBiome{
		name:      name,
		noise:     opensimplex.New(seed),
		blocks:    blocks,
		extent:    extent,
		amplitude: float64(extent.Y) * 0.4,
		base:      extent.Y / 3,
		seaLevel:  extent.Y/3 - 1,
	}
}

func (b *HeightmapBiome) Name() string {
	return b.name
}

func (b *HeightmapBiome) Fill(ctx context.Context, vol *voxel.Volume, origin voxel.Int3) error {
	size := vol.Size()
	vol.Fill(voxel.Air)
	for x := int32(0); x < size; x++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		wx := origin.X + x
		for z := int32(0); z < size; z++ {
			height := b.columnHeight(wx, origin.Z+z)
			for y := int32(0); y < size; y++ {
				if id := b.blockAt(origin.Y+y, height); id != voxel.Air {
					vol.Set(x, y, z, id)
				}
			}
		}
	}
	return nil
}

func (b *HeightmapBiome) columnHeight(wx, wz int32) int32 {
	n := b.noise.Eval2(float64(wx)/float64(b.extent.X), float64(wz)/float64(b.extent.Z))
	h := b.base + int32(n*b.amplitude)
	if h < 1 {
		h = 1
	}
	if h >= b.extent.Y {
		h = b.extent.Y - 1
	}
	return h
}

func (b *HeightmapBiome) blockAt(wy, height int32) voxel.BlockID {
	switch {
	case wy == 0:
		return b.blocks.Floor
	case wy < height-1:
		return b.blocks.Filler
	case wy == height-1:
		return b.blocks.Surface
	case wy <= b.seaLevel && b.blocks.Water != voxel.Air:
		return b.blocks.Water
	}
	return voxel.Air
}

// FlatBiome fills a uniform slab up to Height, mainly for benchmarks and
// tests where the chunk content has to be predictable.
type FlatBiome struct {
	Height int32
	Blocks BlockSet
}

func (b FlatBiome) Name() string {
	return "flat"
}

func (b FlatBiome) Fill(ctx context.Context, vol *voxel.Volume, origin voxel.Int3) error {
	size := vol.Size()
	vol.Fill(voxel.Air)
	for y := int32(0); y < size; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var id voxel.BlockID
		switch wy := origin.Y + y; {
		case wy == 0:
			id = b.Blocks.Floor
		case wy < b.Height-1:
			id = b.Blocks.Filler
		case wy == b.Height-1:
			id = b.Blocks.Surface
		default:
			continue
		}
		for z := int32(0); z < size; z++ {
			for x := int32(0); x < size; x++ {
				vol.Set(x, y, z, id)
			}
		}
	}
	return nil
}

// DefaultRegistry is the built-in block table the command line tools use
// when no import supplies one. Tile indices follow registration order, so
// an atlas strip for it carries the blocks in this sequence.
func DefaultRegistry() *voxel.AtlasRegistry {
	reg := voxel.NewAtlasRegistry()
	reg.AddUniform("bedrock", false, 0)
	reg.AddUniform("stone", false, 1)
	reg.AddUniform("dirt", false, 2)
	reg.AddUniform("grass", false, 3)
	reg.AddUniform("sand", false, 4)
	reg.AddUniform("water", true, 5)
	reg.AddUniform("glass", true, 6)
	reg.AddUniform("leaves", true, 7)
	return reg
}

// DefaultBlockSet resolves the standard terrain blocks against reg.
func DefaultBlockSet(reg *voxel.AtlasRegistry) BlockSet {
	byName := func(name string) voxel.BlockID {
		id, ok := reg.ByName(name)
		if !ok {
			return voxel.Air
		}
		return id
	}
	return BlockSet{
		Floor:   byName("bedrock"),
		Filler:  byName("stone"),
		Surface: byName("grass"),
		Water:   byName("water"),
	}
}
