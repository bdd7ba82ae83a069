package util

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// RayHit describes where a grid walk stopped.
type RayHit struct {
	Distance float64
	Face     voxel.Face // face of the hit cell the ray entered through
	Position voxel.Int3 // cell that stopped the ray
	Previous voxel.Int3 // last open cell, adjacent to Position across Face
	Point    mgl32.Vec3 // world space collision point
	Hit      bool
}

// VoxelRaycast walks the grid cells between rayStart and rayEnd and stops at
// the first cell for which stopRay returns true. When the start cell itself
// stops the ray, Previous equals Position and Face is meaningless.
func VoxelRaycast(rayStart, rayEnd mgl32.Vec3, stopRay func(pos voxel.Int3) bool) RayHit {
	// adapted from: https://github.com/fenomas/fast-voxel-raycast/blob/master/index.js
	t := 0.0
	ix := int32(math.Floor(float64(rayStart.X())))
	iy := int32(math.Floor(float64(rayStart.Y())))
	iz := int32(math.Floor(float64(rayStart.Z())))

	ray := rayEnd.Sub(rayStart)
	maxRayLength := float64(ray.Len())
	rayDir := ray.Normalize()

	stepx := int32(-1)
	if rayDir.X() > 0 {
		stepx = 1
	}
	stepy := int32(-1)
	if rayDir.Y() > 0 {
		stepy = 1
	}
	stepz := int32(-1)
	if rayDir.Z() > 0 {
		stepz = 1
	}

	txDelta := math.Abs(float64(1.0 / rayDir.X()))
	tyDelta := math.Abs(float64(1.0 / rayDir.Y()))
	tzDelta := math.Abs(float64(1.0 / rayDir.Z()))

	xdist := float64(rayStart.X()) - float64(ix)
	if stepx > 0 {
		xdist = float64(ix+1) - float64(rayStart.X())
	}
	ydist := float64(rayStart.Y()) - float64(iy)
	if stepy > 0 {
		ydist = float64(iy+1) - float64(rayStart.Y())
	}
	zdist := float64(rayStart.Z()) - float64(iz)
	if stepz > 0 {
		zdist = float64(iz+1) - float64(rayStart.Z())
	}

	txMax := math.Inf(1)
	if txDelta < math.Inf(1) {
		txMax = txDelta * xdist
	}
	tyMax := math.Inf(1)
	if tyDelta < math.Inf(1) {
		tyMax = tyDelta * ydist
	}
	tzMax := math.Inf(1)
	if tzDelta < math.Inf(1) {
		tzMax = tzDelta * zdist
	}

	steppedIndex := -1

	for t <= maxRayLength {
		pos := voxel.Int3{X: ix, Y: iy, Z: iz}
		if stopRay(pos) {
			hit := RayHit{
				Hit:      true,
				Distance: t,
				Position: pos,
				Previous: pos,
				Point:    rayStart.Add(rayDir.Mul(float32(t))),
			}
			switch steppedIndex {
			case 0:
				if stepx > 0 {
					hit.Face = voxel.XN
				} else {
					hit.Face = voxel.XP
				}
			case 1:
				if stepy > 0 {
					hit.Face = voxel.YN
				} else {
					hit.Face = voxel.YP
				}
			case 2:
				if stepz > 0 {
					hit.Face = voxel.ZN
				} else {
					hit.Face = voxel.ZP
				}
			default:
				return hit
			}
			hit.Previous = pos.Add(hit.Face.Normal())
			return hit
		}

		if txMax < tyMax {
			if txMax < tzMax {
				ix += stepx
				t = txMax
				txMax += txDelta
				steppedIndex = 0
			} else {
				iz += stepz
				t = tzMax
				tzMax += tzDelta
				steppedIndex = 2
			}
		} else {
			if tyMax < tzMax {
				iy += stepy
				t = tyMax
				tyMax += tyDelta
				steppedIndex = 1
			} else {
				iz += stepz
				t = tzMax
				tzMax += tzDelta
				steppedIndex = 2
			}
		}
	}

	return RayHit{Hit: false}
}
