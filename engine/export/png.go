package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// BlockSource is the world view the map renderer reads from.
type BlockSource interface {
	GetBlock(pos voxel.Int3) voxel.BlockID
}

// WriteMapPNG renders a top-down map of the world: one cell per column,
// upscaled by scale. World +X runs right, +Z runs down. Every column shows
// its topmost block, shaded by height; transparent surfaces like water are
// blended with the ground beneath them. Columns without blocks stay
// transparent.
func WriteMapPNG(path string, src BlockSource, reg voxel.Registry, extent voxel.Int3, scale int) error {
	if extent.X <= 0 || extent.Y <= 0 || extent.Z <= 0 {
		return errors.Errorf("map export needs a positive extent, got %s", extent.ToString())
	}
	if scale <= 0 {
		return errors.Errorf("map export needs a positive scale, got %d", scale)
	}

	cells := image.NewRGBA(image.Rect(0, 0, int(extent.X), int(extent.Z)))
	for z := int32(0); z < extent.Z; z++ {
		for x := int32(0); x < extent.X; x++ {
			c, ok := columnColor(src, reg, x, z, extent.Y)
			if ok {
				cells.SetRGBA(int(x), int(z), c)
			}
		}
	}

	out := cells
	if scale > 1 {
		out = image.NewRGBA(image.Rect(0, 0, int(extent.X)*scale, int(extent.Z)*scale))
		draw.NearestNeighbor.Scale(out, out.Bounds(), cells, cells.Bounds(), draw.Src, nil)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating map %q", path)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return errors.Wrapf(err, "writing map %q", path)
	}
	util.LogIOInfo(fmt.Sprintf("[Export] wrote %dx%d map to %q", out.Bounds().Dx(), out.Bounds().Dy(), path))
	return nil
}

// columnColor scans the column from the top down. The first block decides
// the color; a transparent first hit keeps scanning and mixes in the opaque
// ground below it.
func columnColor(src BlockSource, reg voxel.Registry, x, z, height int32) (color.RGBA, bool) {
	for y := height - 1; y >= 0; y-- {
		id := src.GetBlock(voxel.Int3{X: x, Y: y, Z: z})
		if id == voxel.Air || id == voxel.Null {
			continue
		}
		top := blockColor(id, y, height)
		if !reg.IsTransparent(id) {
			return top, true
		}
		for under := y - 1; under >= 0; under-- {
			uid := src.GetBlock(voxel.Int3{X: x, Y: under, Z: z})
			if uid == voxel.Air || uid == voxel.Null || reg.IsTransparent(uid) {
				continue
			}
			return mix(top, blockColor(uid, under, height), 0.6), true
		}
		return top, true
	}
	return color.RGBA{}, false
}

// blockColor hashes the id with the golden ratio for a stable, distinct hue
// and shades it by column height.
func blockColor(id voxel.BlockID, y, height int32) color.RGBA {
	h := math.Mod(float64(id)*0.61803398875, 1)
	shade := 0.45 + 0.55*float64(y+1)/float64(height)
	channel := func(m, a float64) uint8 {
		c := 0.35 + 0.6*math.Mod(h*m+a, 1)
		return uint8(math.Round(255 * c * shade))
	}
	return color.RGBA{R: channel(5, 0.17), G: channel(7, 0.43), B: channel(11, 0.71), A: 255}
}

func mix(a, b color.RGBA, weight float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x)*weight + float64(y)*(1-weight)))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}
