package export

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// WriteOBJ saves the chunk meshes as a Wavefront OBJ with a sibling .mtl
// holding one opaque and one transparent material. Positions are written
// in world space, texture coordinates are the tile repeat counts and the
// six face normals are shared across all chunks.
func WriteOBJ(objPath string, chunks []ChunkMesh) error {
	mtlPath := objPath[:len(objPath)-len(path.Ext(objPath))] + ".mtl"
	if err := writeMaterialFile(mtlPath); err != nil {
		return err
	}

	f, err := os.Create(objPath)
	if err != nil {
		return errors.Wrapf(err, "creating obj %q", objPath)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1024*1024)

	fmt.Fprintln(w, "mtllib", path.Base(mtlPath))
	for face := voxel.XP; face <= voxel.ZN; face++ {
		n := face.Normal()
		fmt.Fprintf(w, "vn %d %d %d\n", n.X, n.Y, n.Z)
	}

	base := uint32(0)
	exported := 0
	for _, chunk := range chunks {
		mesh := chunk.Mesh
		if mesh == nil || mesh.Empty() {
			continue
		}
		fmt.Fprintf(w, "o chunk_%d_%d_%d\n", chunk.Origin.X, chunk.Origin.Y, chunk.Origin.Z)
		faceOf := make([]voxel.Face, len(mesh.Vertices))
		for i, word := range mesh.Vertices {
			pos, face := voxel.UnpackVertex(word)
			faceOf[i] = face
			world := pos.Add(chunk.Origin)
			fmt.Fprintf(w, "v %d %d %d\n", world.X, world.Y, world.Z)
		}
		for _, word := range mesh.UVs {
			uv := voxel.UnpackUV(word)
			fmt.Fprintf(w, "vt %d %d\n", uv.U, uv.V)
		}
		writeTriangles(w, "blocks_opaque", mesh.OpaqueIndices, faceOf, base)
		writeTriangles(w, "blocks_transparent", mesh.TransparentIndices, faceOf, base)
		base += uint32(len(mesh.Vertices))
		exported++
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "writing obj %q", objPath)
	}
	util.LogIOInfo(fmt.Sprintf("[Export] wrote %d chunk meshes to %q", exported, objPath))
	return nil
}

func writeTriangles(w *bufio.Writer, material string, indices []uint32, faceOf []voxel.Face, base uint32) {
	if len(indices) == 0 {
		return
	}
	fmt.Fprintln(w, "usemtl", material)
	for i := 0; i+2 < len(indices); i += 3 {
		var sb strings.Builder
		sb.WriteByte('f')
		for _, idx := range indices[i : i+3] {
			// v and vt advance together, vn indexes the six shared normals
			fmt.Fprintf(&sb, " %d/%d/%d", base+idx+1, base+idx+1, faceOf[idx]+1)
		}
		sb.WriteByte('\n')
		w.WriteString(sb.String())
	}
}

func writeMaterialFile(mtlPath string) error {
	f, err := os.Create(mtlPath)
	if err != nil {
		return errors.Wrapf(err, "creating mtl %q", mtlPath)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "newmtl blocks_opaque\nKd %.4f %.4f %.4f\nd 1.0000\nillum 1\n\n", 0.6, 0.6, 0.6)
	fmt.Fprintf(w, "newmtl blocks_transparent\nKd %.4f %.4f %.4f\nd 0.5000\nillum 1\n", 0.4, 0.6, 0.9)
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "writing mtl %q", mtlPath)
	}
	return nil
}
