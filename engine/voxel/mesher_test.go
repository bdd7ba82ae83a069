package voxel

import (
	"context"
	"errors"
	"testing"
)

func newTestMesher(size int32, greedy bool) (*Mesher, BlockID, BlockID) {
	reg := NewAtlasRegistry()
	stone := reg.AddUniform("stone", false, 1)
	water := reg.AddUniform("water", true, 2)
	pool := NewBufferPool(size, 4)
	return NewMesher(reg, pool, MeshOptions{GreedyExtension: greedy}), stone, water
}

func meshOnce(t *testing.T, m *Mesher, vol *Volume, neighbors [6]*Volume) *MeshData {
	t.Helper()
	mesh, err := m.Mesh(context.Background(), vol, Int3{}, neighbors)
	if err != nil {
		t.Fatalf("mesh: %v", err)
	}
	return mesh
}

// quadArea reads a quad's extent back out of its packed corners. du and dv
// run along positive axes, so the component sums are the side lengths.
func quadArea(m *MeshData, q int) int32 {
	c0, _ := UnpackVertex(m.Vertices[q*4])
	c1, _ := UnpackVertex(m.Vertices[q*4+1])
	c3, _ := UnpackVertex(m.Vertices[q*4+3])
	du := c1.Sub(c0)
	dv := c3.Sub(c0)
	return (du.X + du.Y + du.Z) * (dv.X + dv.Y + dv.Z)
}

func totalArea(m *MeshData) int32 {
	area := int32(0)
	for q := 0; q < m.QuadCount(); q++ {
		area += quadArea(m, q)
	}
	return area
}

func TestMesherEmptyVolume(t *testing.T) {
	m, _, _ := newTestMesher(8, true)
	mesh := meshOnce(t, m, NewVolume(8, Air), [6]*Volume{})
	if !mesh.Empty() {
		t.Fatalf("all-air chunk produced %d quads", mesh.QuadCount())
	}
}

func TestMesherSingleBlock(t *testing.T) {
	m, stone, _ := newTestMesher(8, true)
	vol := NewVolume(8, Air)
	vol.Set(3, 3, 3, stone)
	mesh := meshOnce(t, m, vol, [6]*Volume{})

	if mesh.QuadCount() != 6 || mesh.VertexCount() != 24 {
		t.Fatalf("cube surface: got %d quads, %d vertices, want 6 and 24", mesh.QuadCount(), mesh.VertexCount())
	}
	if len(mesh.OpaqueIndices) != 36 || len(mesh.TransparentIndices) != 0 {
		t.Fatalf("indices: got %d opaque, %d transparent, want 36 and 0",
			len(mesh.OpaqueIndices), len(mesh.TransparentIndices))
	}
	// faces come out in enum order, one quad each
	for q := 0; q < 6; q++ {
		if _, face := UnpackVertex(mesh.Vertices[q*4]); face != Face(q) {
			t.Fatalf("quad %d: got face %v, want %v", q, face, Face(q))
		}
	}
	wantXP := [4]Int3{{4, 3, 3}, {4, 4, 3}, {4, 4, 4}, {4, 3, 4}}
	for i, want := range wantXP {
		if pos, _ := UnpackVertex(mesh.Vertices[i]); pos != want {
			t.Fatalf("east face corner %d: got %v, want %v", i, pos, want)
		}
	}
	wantUV := UVQuad{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}
	for i := range wantUV {
		if got := UnpackUV(mesh.UVs[i]); got != wantUV[i] {
			t.Fatalf("east face uv %d: got %v, want %v", i, got, wantUV[i])
		}
	}
}

func TestMesherGreedyMergesSlab(t *testing.T) {
	build := func(id BlockID) *Volume {
		vol := NewVolume(8, Air)
		for _, p := range []Int3{{2, 2, 2}, {3, 2, 2}, {2, 2, 3}, {3, 2, 3}} {
			vol.Set(p.X, p.Y, p.Z, id)
		}
		return vol
	}

	greedy, gStone, _ := newTestMesher(8, true)
	unit, uStone, _ := newTestMesher(8, false)
	gm := meshOnce(t, greedy, build(gStone), [6]*Volume{})
	um := meshOnce(t, unit, build(uStone), [6]*Volume{})

	// a 2x1x2 slab: one 2x2 quad up and down, a 1x2 quad per side
	if gm.QuadCount() != 6 {
		t.Fatalf("greedy slab: got %d quads, want 6", gm.QuadCount())
	}
	if um.QuadCount() != 16 {
		t.Fatalf("unit-quad slab: got %d quads, want 16", um.QuadCount())
	}
	// merging must not change the covered surface
	if ga, ua := totalArea(gm), totalArea(um); ga != ua || ga != 16 {
		t.Fatalf("covered area: greedy %d, unit %d, want 16 for both", ga, ua)
	}
}

func TestMesherFullVolumeIsBox(t *testing.T) {
	m, stone, _ := newTestMesher(4, true)
	mesh := meshOnce(t, m, NewVolume(4, stone), [6]*Volume{})

	// only the six border planes survive, each merged to a single quad
	if mesh.QuadCount() != 6 {
		t.Fatalf("solid chunk: got %d quads, want 6", mesh.QuadCount())
	}
	if got := totalArea(mesh); got != 6*16 {
		t.Fatalf("solid chunk area: got %d, want %d", got, 6*16)
	}
}

func TestMesherEnclosedChunkIsCulled(t *testing.T) {
	m, stone, _ := newTestMesher(2, true)
	nb := NewVolume(2, stone)
	mesh := meshOnce(t, m, NewVolume(2, stone), [6]*Volume{nb, nb, nb, nb, nb, nb})
	if !mesh.Empty() {
		t.Fatalf("chunk buried in stone produced %d quads", mesh.QuadCount())
	}
}

func TestMesherUnloadedBorderIsFaced(t *testing.T) {
	m, stone, _ := newTestMesher(2, true)

	mesh := meshOnce(t, m, NewVolume(2, stone), [6]*Volume{})
	if mesh.QuadCount() != 6 {
		t.Fatalf("isolated chunk: got %d quads, want 6", mesh.QuadCount())
	}

	// a loaded stone neighbor on the east side culls that plane
	mesh = meshOnce(t, m, NewVolume(2, stone), [6]*Volume{XP: NewVolume(2, stone)})
	if mesh.QuadCount() != 5 {
		t.Fatalf("chunk with east neighbor: got %d quads, want 5", mesh.QuadCount())
	}
	for q := 0; q < mesh.QuadCount(); q++ {
		if _, face := UnpackVertex(mesh.Vertices[q*4]); face == XP {
			t.Fatalf("east face emitted against a loaded stone neighbor")
		}
	}
}

func TestMesherWaterAgainstStone(t *testing.T) {
	m, stone, water := newTestMesher(4, true)
	vol := NewVolume(4, Air)
	vol.Set(1, 1, 1, stone)
	vol.Set(1, 2, 1, water)
	mesh := meshOnce(t, m, vol, [6]*Volume{})

	// stone shows all six faces, its top one under the water; the water
	// column loses its bottom face to the stone quad that covers it
	if len(mesh.OpaqueIndices) != 36 {
		t.Fatalf("opaque indices: got %d, want 36", len(mesh.OpaqueIndices))
	}
	if len(mesh.TransparentIndices) != 30 {
		t.Fatalf("transparent indices: got %d, want 30", len(mesh.TransparentIndices))
	}
	if mesh.QuadCount() != 11 {
		t.Fatalf("quads: got %d, want 11", mesh.QuadCount())
	}
}

func TestMesherCancellation(t *testing.T) {
	m, stone, _ := newTestMesher(8, true)
	vol := NewVolume(8, Air)
	vol.Set(1, 1, 1, stone)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mesh, err := m.Mesh(ctx, vol, Int3{}, [6]*Volume{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled pass: got %v, want context.Canceled", err)
	}
	if mesh != nil {
		t.Fatalf("canceled pass returned a mesh")
	}
}

func TestMesherGreedyUVRepeats(t *testing.T) {
	m, stone, _ := newTestMesher(8, true)
	vol := NewVolume(8, Air)
	for x := int32(2); x <= 5; x++ {
		vol.Set(x, 4, 2, stone)
	}
	mesh := meshOnce(t, m, vol, [6]*Volume{})

	found := false
	for q := 0; q < mesh.QuadCount(); q++ {
		if _, face := UnpackVertex(mesh.Vertices[q*4]); face != YP {
			continue
		}
		if found {
			t.Fatalf("top of the row split into more than one quad")
		}
		found = true
		wantCorners := [4]Int3{{2, 5, 2}, {6, 5, 2}, {6, 5, 3}, {2, 5, 3}}
		wantUV := UVQuad{{0, 0, 1}, {4, 0, 1}, {4, 1, 1}, {0, 1, 1}}
		for i := 0; i < 4; i++ {
			pos, _ := UnpackVertex(mesh.Vertices[q*4+i])
			if pos != wantCorners[i] {
				t.Fatalf("top corner %d: got %v, want %v", i, pos, wantCorners[i])
			}
			if got := UnpackUV(mesh.UVs[q*4+i]); got != wantUV[i] {
				t.Fatalf("top uv %d: got %v, want %v", i, got, wantUV[i])
			}
		}
	}
	if !found {
		t.Fatalf("no top face emitted for the row")
	}
}

func benchmarkMesher(b *testing.B, greedy bool) {
	m, stone, _ := newTestMesher(32, greedy)
	vol := NewVolume(32, Air)
	for z := int32(0); z < 32; z++ {
		for x := int32(0); x < 32; x++ {
			h := 8 + (x*7+z*13)%9
			for y := int32(0); y < h; y++ {
				vol.Set(x, y, z, stone)
			}
		}
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mesh, err := m.Mesh(ctx, vol, Int3{}, [6]*Volume{})
		if err != nil {
			b.Fatal(err)
		}
		m.Pool().ReleaseMesh(mesh)
	}
}

func BenchmarkMesherTerrain(b *testing.B)          { benchmarkMesher(b, true) }
func BenchmarkMesherTerrainUnitQuads(b *testing.B) { benchmarkMesher(b, false) }
