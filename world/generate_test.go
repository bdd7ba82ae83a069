package world

import (
	"context"
	"testing"

	"github.com/memmaker/chunkforge/engine/voxel"
)

func volumesEqual(a, b *voxel.Volume) bool {
	if a.Size() != b.Size() {
		return false
	}
	ca := make([]voxel.BlockID, a.Size()*a.Size()*a.Size())
	cb := make([]voxel.BlockID, len(ca))
	a.Decompress(ca)
	b.Decompress(cb)
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

func TestFlatBiomeLayers(t *testing.T) {
	reg := DefaultRegistry()
	blocks := DefaultBlockSet(reg)
	b := FlatBiome{Height: 4, Blocks: blocks}

	vol := voxel.NewVolume(8, voxel.Air)
	if err := b.Fill(context.Background(), vol, voxel.Int3{}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	for y := int32(0); y < 8; y++ {
		want := voxel.Air
		switch {
		case y == 0:
			want = blocks.Floor
		case y < 3:
			want = blocks.Filler
		case y == 3:
			want = blocks.Surface
		}
		for z := int32(0); z < 8; z++ {
			for x := int32(0); x < 8; x++ {
				if got := vol.Get(x, y, z); got != want {
					t.Fatalf("layer y=%d at (%d, %d): got %d, want %d", y, x, z, got, want)
				}
			}
		}
	}

	// a chunk above the slab stays empty
	high := voxel.NewVolume(8, voxel.Air)
	if err := b.Fill(context.Background(), high, voxel.Int3{Y: 8}); err != nil {
		t.Fatalf("fill high: %v", err)
	}
	if value, uniform := high.UniformValue(); !uniform || value != voxel.Air {
		t.Fatalf("chunk above the slab is not all air")
	}
}

func TestHeightmapBiomeDeterministic(t *testing.T) {
	reg := DefaultRegistry()
	extent := voxel.Int3{X: 32, Y: 16, Z: 32}
	a := NewHeightmapBiome("hills", 1234, DefaultBlockSet(reg), extent)
	b := NewHeightmapBiome("hills", 1234, DefaultBlockSet(reg), extent)
	if a.Name() != "hills" {
		t.Fatalf("biome name: got %q", a.Name())
	}

	origin := voxel.Int3{X: 16, Y: 0, Z: 16}
	va := voxel.NewVolume(16, voxel.Air)
	vb := voxel.NewVolume(16, voxel.Air)
	if err := a.Fill(context.Background(), va, origin); err != nil {
		t.Fatalf("fill a: %v", err)
	}
	if err := b.Fill(context.Background(), vb, origin); err != nil {
		t.Fatalf("fill b: %v", err)
	}
	if !volumesEqual(va, vb) {
		t.Fatalf("same seed produced different terrain")
	}
}

func TestHeightmapBiomeColumns(t *testing.T) {
	reg := DefaultRegistry()
	blocks := DefaultBlockSet(reg)
	extent := voxel.Int3{X: 16, Y: 16, Z: 16}
	b := NewHeightmapBiome("hills", 99, blocks, extent)

	vol := voxel.NewVolume(16, voxel.Air)
	if err := b.Fill(context.Background(), vol, voxel.Int3{}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	for z := int32(0); z < 16; z++ {
		for x := int32(0); x < 16; x++ {
			if got := vol.Get(x, 0, z); got != blocks.Floor {
				t.Fatalf("column (%d, %d): floor is %d", x, z, got)
			}
			if got := vol.Get(x, 15, z); got != voxel.Air {
				t.Fatalf("column (%d, %d): terrain reaches the world top", x, z)
			}
			// terrain and water stack without air pockets
			aboveGround := false
			for y := int32(0); y < 16; y++ {
				id := vol.Get(x, y, z)
				if id == voxel.Air {
					aboveGround = true
				} else if aboveGround {
					t.Fatalf("column (%d, %d): block %d floats at y=%d", x, z, id, y)
				}
			}
		}
	}
}

func TestHeightmapBiomeBlockTable(t *testing.T) {
	reg := DefaultRegistry()
	blocks := DefaultBlockSet(reg)
	// extent.Y 32: hills rest at 10, the sea sits just below
	b := NewHeightmapBiome("hills", 7, blocks, voxel.Int3{X: 64, Y: 32, Z: 64})

	cases := []struct {
		wy, height int32
		want       voxel.BlockID
	}{
		{0, 5, blocks.Floor},
		{2, 5, blocks.Filler},
		{4, 5, blocks.Surface},
		{5, 5, blocks.Water},
		{9, 5, blocks.Water},
		{10, 5, voxel.Air},
		{20, 12, voxel.Air},
	}
	for _, tc := range cases {
		if got := b.blockAt(tc.wy, tc.height); got != tc.want {
			t.Fatalf("block at wy=%d height=%d: got %d, want %d", tc.wy, tc.height, got, tc.want)
		}
	}

	// with no water block the dips stay dry
	dry := blocks
	dry.Water = voxel.Air
	d := NewHeightmapBiome("dry", 7, dry, voxel.Int3{X: 64, Y: 32, Z: 64})
	if got := d.blockAt(5, 5); got != voxel.Air {
		t.Fatalf("dry world block at wy=5: got %d, want Air", got)
	}
}

func TestHeightmapBiomeCancellation(t *testing.T) {
	reg := DefaultRegistry()
	b := NewHeightmapBiome("hills", 7, DefaultBlockSet(reg), voxel.Int3{X: 32, Y: 16, Z: 32})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Fill(ctx, voxel.NewVolume(16, voxel.Air), voxel.Int3{}); err == nil {
		t.Fatalf("canceled fill succeeded")
	}
}
