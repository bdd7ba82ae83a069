package util

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/memmaker/chunkforge/engine/voxel"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestRaycastHitsWall(t *testing.T) {
	start := mgl32.Vec3{0.5, 2.5, 3.5}
	end := mgl32.Vec3{9.5, 2.5, 3.5}
	hit := VoxelRaycast(start, end, func(pos voxel.Int3) bool {
		return pos.X == 5
	})

	if !hit.Hit {
		t.Fatalf("ray missed the wall")
	}
	if hit.Position != (voxel.Int3{X: 5, Y: 2, Z: 3}) {
		t.Fatalf("hit cell: got %v", hit.Position)
	}
	if hit.Previous != (voxel.Int3{X: 4, Y: 2, Z: 3}) {
		t.Fatalf("cell before the wall: got %v", hit.Previous)
	}
	// walking in +x enters cells through their west face
	if hit.Face != voxel.XN {
		t.Fatalf("entry face: got %v, want XN", hit.Face)
	}
	if !near(hit.Distance, 4.5) {
		t.Fatalf("distance: got %f, want 4.5", hit.Distance)
	}
	if !near(float64(hit.Point.X()), 5.0) || !near(float64(hit.Point.Y()), 2.5) || !near(float64(hit.Point.Z()), 3.5) {
		t.Fatalf("collision point: got %v", hit.Point)
	}
}

func TestRaycastMiss(t *testing.T) {
	hit := VoxelRaycast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{8.5, 0.5, 0.5}, func(voxel.Int3) bool {
		return false
	})
	if hit.Hit {
		t.Fatalf("ray through empty space reported a hit at %v", hit.Position)
	}
}

func TestRaycastStartsInsideBlock(t *testing.T) {
	start := mgl32.Vec3{2.5, 2.5, 2.5}
	hit := VoxelRaycast(start, mgl32.Vec3{10.5, 2.5, 2.5}, func(voxel.Int3) bool {
		return true
	})
	if !hit.Hit {
		t.Fatalf("ray starting inside a block missed")
	}
	if hit.Position != (voxel.Int3{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("hit cell: got %v", hit.Position)
	}
	// no face was crossed, so there is no cell in front of the hit
	if hit.Previous != hit.Position {
		t.Fatalf("previous cell: got %v, want the hit cell itself", hit.Previous)
	}
	if hit.Distance != 0 {
		t.Fatalf("distance: got %f, want 0", hit.Distance)
	}
}

func TestRaycastDiagonalWalk(t *testing.T) {
	target := voxel.Int3{X: 3, Y: 3, Z: 0}
	var visited []voxel.Int3
	hit := VoxelRaycast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{3.5, 3.5, 0.5}, func(pos voxel.Int3) bool {
		visited = append(visited, pos)
		return pos == target
	})

	if !hit.Hit || hit.Position != target {
		t.Fatalf("diagonal ray: hit=%v at %v, want %v", hit.Hit, hit.Position, target)
	}
	if visited[0] != (voxel.Int3{}) {
		t.Fatalf("walk started at %v, want the origin cell", visited[0])
	}
	// the walk moves one cell per step, never diagonally
	for i := 1; i < len(visited); i++ {
		d := visited[i].Sub(visited[i-1])
		if d.X+d.Y+d.Z != 1 || d.X < 0 || d.Y < 0 || d.Z != 0 {
			t.Fatalf("step %d jumped from %v to %v", i, visited[i-1], visited[i])
		}
	}
	if len(visited) != 7 {
		t.Fatalf("visited %d cells, want 7", len(visited))
	}
	if hit.Previous.Sub(hit.Position) != hit.Face.Normal() {
		t.Fatalf("previous %v is not across face %v from %v", hit.Previous, hit.Face, hit.Position)
	}
	if !near(hit.Distance, 2.5*math.Sqrt2) {
		t.Fatalf("distance: got %f, want %f", hit.Distance, 2.5*math.Sqrt2)
	}
}
