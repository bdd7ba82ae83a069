package store

import (
	"errors"
	"testing"

	"github.com/memmaker/chunkforge/engine/voxel"
)

func openTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVolume(fill voxel.BlockID) *voxel.Volume {
	v := voxel.NewVolume(8, fill)
	v.Set(1, 2, 3, 7)
	v.Set(7, 7, 7, 9)
	return v
}

func sameCells(a, b *voxel.Volume) bool {
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

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	origin := voxel.Int3{X: 32, Y: 0, Z: -32}
	want := testVolume(voxel.Air)

	if err := s.Put(origin, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(origin)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v, err=%v", ok, err)
	}
	if !sameCells(got, want) {
		t.Fatalf("stored chunk came back different")
	}

	// a missing chunk is not an error, the world generates instead
	got, ok, err = s.Get(voxel.Int3{X: 999, Y: 0, Z: 0})
	if err != nil || ok || got != nil {
		t.Fatalf("missing chunk: got vol=%v, ok=%v, err=%v, want nil, false, nil", got, ok, err)
	}
}

func TestStoreHasAndDelete(t *testing.T) {
	s := openTestStore(t)
	origin := voxel.Int3{X: 0, Y: 32, Z: 0}
	if err := s.Put(origin, testVolume(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, err := s.Has(origin); err != nil || !ok {
		t.Fatalf("has after put: ok=%v, err=%v", ok, err)
	}
	if err := s.Delete(origin); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := s.Has(origin); err != nil || ok {
		t.Fatalf("has after delete: ok=%v, err=%v", ok, err)
	}
	if _, ok, err := s.Get(origin); err != nil || ok {
		t.Fatalf("get after delete: ok=%v, err=%v", ok, err)
	}
	// deleting what is not there is fine
	if err := s.Delete(voxel.Int3{X: 5, Y: 5, Z: 5}); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestStoreReopenPersists(t *testing.T) {
	dir := t.TempDir()
	origin := voxel.Int3{X: -32, Y: -32, Z: 64}
	want := testVolume(3)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(origin, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := s.Get(origin)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v, err=%v", ok, err)
	}
	if !sameCells(got, want) {
		t.Fatalf("chunk changed across reopen")
	}
}

func TestStoreForEach(t *testing.T) {
	s := openTestStore(t)
	want := map[voxel.Int3]voxel.BlockID{
		{X: 0, Y: 0, Z: 0}:   1,
		{X: 32, Y: 0, Z: 0}:  2,
		{X: -32, Y: 0, Z: 0}: 3,
	}
	for origin, id := range want {
		if err := s.Put(origin, voxel.NewVolume(8, id)); err != nil {
			t.Fatalf("put %s: %v", origin.ToString(), err)
		}
	}

	seen := map[voxel.Int3]voxel.BlockID{}
	err := s.ForEach(func(origin voxel.Int3, vol *voxel.Volume) error {
		seen[origin] = vol.Get(0, 0, 0)
		return nil
	})
	if err != nil {
		t.Fatalf("foreach: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("foreach visited %d chunks, want %d", len(seen), len(want))
	}
	for origin, id := range want {
		if seen[origin] != id {
			t.Fatalf("chunk %s: got block %d, want %d", origin.ToString(), seen[origin], id)
		}
	}

	// the callback's error stops the walk and comes back out
	errStop := errors.New("stop")
	visits := 0
	err = s.ForEach(func(voxel.Int3, *voxel.Volume) error {
		visits++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("foreach error: got %v, want errStop", err)
	}
	if visits != 1 {
		t.Fatalf("walk continued after the error: %d visits", visits)
	}
}
