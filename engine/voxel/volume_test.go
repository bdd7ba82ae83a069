package voxel

import (
	"testing"
)

func TestVolumeStartsUniform(t *testing.T) {
	v := NewVolume(8, Air)
	if !v.IsUniform() {
		t.Fatal("fresh volume should be uniform")
	}
	if value, ok := v.UniformValue(); !ok || value != Air {
		t.Fatalf("uniform value: got (%d, %v), want (0, true)", value, ok)
	}
	if got := v.NodeCount(); got != 1 {
		t.Fatalf("node count: got %d, want 1", got)
	}
	if got := v.Version(); got != 0 {
		t.Fatalf("version: got %d, want 0", got)
	}
}

func TestVolumeSetGetMatchesMirror(t *testing.T) {
	const size = 8
	v := NewVolume(size, Air)
	mirror := make([]BlockID, size*size*size)

	// deterministic scatter of writes, including repeated overwrites
	seed := uint32(12345)
	for i := 0; i < 4096; i++ {
		seed = seed*1664525 + 1013904223
		x := int32(seed>>8) % size
		y := int32(seed>>16) % size
		z := int32(seed>>24) % size
		id := BlockID(seed % 5)
		v.Set(x, y, z, id)
		mirror[x+y*size+z*size*size] = id
	}

	for z := int32(0); z < size; z++ {
		for y := int32(0); y < size; y++ {
			for x := int32(0); x < size; x++ {
				want := mirror[x+y*size+z*size*size]
				if got := v.Get(x, y, z); got != want {
					t.Fatalf("cell (%d, %d, %d): got %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
	auditLeafIffUniform(t, v)
}

// auditLeafIffUniform walks the whole tree and fails on any branch that
// should have collapsed, i.e. all 8 children are leaves of one value.
func auditLeafIffUniform(t *testing.T, v *Volume) {
	t.Helper()
	var walk func(idx int32)
	walk = func(idx int32) {
		n := v.nodes[idx]
		if n.children == noChildren {
			return
		}
		allLeaves, same := true, true
		value := v.nodes[n.children].value
		for i := int32(0); i < 8; i++ {
			c := v.nodes[n.children+i]
			if c.children != noChildren {
				allLeaves = false
			} else if c.value != value {
				same = false
			}
			walk(n.children + i)
		}
		if allLeaves && same {
			t.Fatalf("node %d covers a uniform cube but is still a branch", idx)
		}
	}
	walk(0)
}

func TestVolumeOctantCollapse(t *testing.T) {
	v := NewVolume(8, Air)
	for z := int32(0); z < 4; z++ {
		for y := int32(0); y < 4; y++ {
			for x := int32(0); x < 4; x++ {
				v.Set(x, y, z, 5)
			}
		}
	}
	auditLeafIffUniform(t, v)
	if v.IsUniform() {
		t.Fatal("half-filled volume should not be uniform")
	}
	// the filled octant folds into a single leaf under the root
	if got := v.NodeCount(); got != 9 {
		t.Fatalf("node count: got %d, want root plus one child block", got)
	}
}

func TestVolumeIdempotentWrite(t *testing.T) {
	v := NewVolume(4, Air)
	v.Set(1, 2, 3, 7)
	version := v.Version()
	nodes := v.NodeCount()

	// writing the value a cell already holds must not mutate anything
	v.Set(1, 2, 3, 7)
	v.Set(0, 0, 0, Air)
	if got := v.Version(); got != version {
		t.Fatalf("version after idempotent writes: got %d, want %d", got, version)
	}
	if got := v.NodeCount(); got != nodes {
		t.Fatalf("node count after idempotent writes: got %d, want %d", got, nodes)
	}
}

func TestVolumeCollapsesToUniform(t *testing.T) {
	const size = 8
	v := NewVolume(size, Air)
	for z := int32(0); z < size; z++ {
		for y := int32(0); y < size; y++ {
			for x := int32(0); x < size; x++ {
				v.Set(x, y, z, 3)
			}
		}
	}
	if !v.IsUniform() {
		t.Fatal("cell-by-cell fill should collapse back to a single leaf")
	}
	if got := v.NodeCount(); got != 1 {
		t.Fatalf("node count after collapse: got %d, want 1", got)
	}
	if value, _ := v.UniformValue(); value != 3 {
		t.Fatalf("uniform value after collapse: got %d, want 3", value)
	}
}

func TestVolumeFreeListReuse(t *testing.T) {
	v := NewVolume(4, Air)
	v.Set(0, 0, 0, 1)
	split := v.NodeCount()

	v.Set(0, 0, 0, Air) // collapses everything again
	if got := v.NodeCount(); got != 1 {
		t.Fatalf("node count after undo: got %d, want 1", got)
	}
	v.Set(0, 0, 0, 1) // must reuse the freed child blocks
	if got := v.NodeCount(); got != split {
		t.Fatalf("node count after re-split: got %d, want %d", got, split)
	}
}

func TestVolumeFill(t *testing.T) {
	v := NewVolume(8, Air)
	v.Set(3, 3, 3, 9)
	v.Fill(2)
	if !v.IsUniform() {
		t.Fatal("fill should leave the volume uniform")
	}
	if got := v.Get(3, 3, 3); got != 2 {
		t.Fatalf("cell after fill: got %d, want 2", got)
	}
	version := v.Version()
	v.Fill(2) // same value, no mutation
	if got := v.Version(); got != version {
		t.Fatalf("version after no-op fill: got %d, want %d", got, version)
	}
}

func TestVolumeDecompress(t *testing.T) {
	const size = 4
	v := NewVolume(size, 1)
	v.Set(0, 0, 0, 2)
	v.Set(3, 3, 3, 3)
	v.Set(1, 2, 0, 4)

	cells := make([]BlockID, size*size*size)
	v.Decompress(cells)
	for z := int32(0); z < size; z++ {
		for y := int32(0); y < size; y++ {
			for x := int32(0); x < size; x++ {
				if got, want := cells[x+y*size+z*size*size], v.Get(x, y, z); got != want {
					t.Fatalf("decompressed cell (%d, %d, %d): got %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
}

func TestVolumeBoundsPanic(t *testing.T) {
	v := NewVolume(4, Air)
	assertPanics(t, "get out of bounds", func() { v.Get(4, 0, 0) })
	assertPanics(t, "set out of bounds", func() { v.Set(0, -1, 0, 1) })
	assertPanics(t, "set null", func() { v.Set(0, 0, 0, Null) })
	assertPanics(t, "fill null", func() { v.Fill(Null) })
	assertPanics(t, "short decompress buffer", func() { v.Decompress(make([]BlockID, 7)) })
}

func TestVolumeSizeValidation(t *testing.T) {
	assertPanics(t, "size 0", func() { NewVolume(0, Air) })
	assertPanics(t, "size 1", func() { NewVolume(1, Air) })
	assertPanics(t, "size 3", func() { NewVolume(3, Air) })
	assertPanics(t, "size 64", func() { NewVolume(64, Air) })
	assertPanics(t, "null fill", func() { NewVolume(8, Null) })
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected a panic", name)
		}
	}()
	fn()
}

func BenchmarkVolumeSetScatter(b *testing.B) {
	v := NewVolume(32, Air)
	seed := uint32(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seed = seed*1664525 + 1013904223
		x := int32(seed>>8) % 32
		y := int32(seed>>16) % 32
		z := int32(seed>>24) % 32
		v.Set(x, y, z, BlockID(seed%4))
	}
}

func BenchmarkVolumeDecompress(b *testing.B) {
	v := NewVolume(32, Air)
	for y := int32(0); y < 16; y++ {
		for x := int32(0); x < 32; x++ {
			for z := int32(0); z < 32; z++ {
				v.Set(x, y, z, 2)
			}
		}
	}
	cells := make([]BlockID, 32*32*32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Decompress(cells)
	}
}
