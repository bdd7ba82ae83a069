package export

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// ChunkMesh pairs a finished mesh with its world placement. Vertices are
// chunk-local; Origin positions the chunk node in the scene.
type ChunkMesh struct {
	Origin voxel.Int3
	Mesh   *voxel.MeshData
}

// WriteGLTF saves the chunk meshes as one glTF scene, one node per chunk
// with the chunk origin as node translation. Each mesh carries up to two
// primitives sharing the vertex accessors: one opaque, one alpha-blended.
// TEXCOORD_0 holds the tile repeat counts of each corner, TEXCOORD_1
// carries the atlas tile index in its first component.
func WriteGLTF(path string, chunks []ChunkMesh) error {
	doc := gltf.NewDocument()
	doc.Asset.Generator = "chunkforge"

	opaqueMat := uint32(len(doc.Materials))
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name:      "blocks-opaque",
		AlphaMode: gltf.AlphaOpaque,
	})
	blendMat := uint32(len(doc.Materials))
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name:        "blocks-transparent",
		AlphaMode:   gltf.AlphaBlend,
		DoubleSided: true,
	})

	exported := 0
	for _, chunk := range chunks {
		mesh := chunk.Mesh
		if mesh == nil || len(mesh.Vertices) == 0 {
			continue
		}
		positions, normals, repeats, tiles := expandVertices(mesh)

		posAcc := modeler.WritePosition(doc, positions)
		normAcc := modeler.WriteNormal(doc, normals)
		uvAcc := modeler.WriteTextureCoord(doc, repeats)
		tileAcc := modeler.WriteTextureCoord(doc, tiles)
		attributes := map[string]uint32{
			"POSITION":   posAcc,
			"NORMAL":     normAcc,
			"TEXCOORD_0": uvAcc,
			"TEXCOORD_1": tileAcc,
		}

		var primitives []*gltf.Primitive
		if len(mesh.OpaqueIndices) > 0 {
			primitives = append(primitives, &gltf.Primitive{
				Indices:    gltf.Index(modeler.WriteIndices(doc, mesh.OpaqueIndices)),
				Attributes: attributes,
				Material:   gltf.Index(opaqueMat),
			})
		}
		if len(mesh.TransparentIndices) > 0 {
			primitives = append(primitives, &gltf.Primitive{
				Indices:    gltf.Index(modeler.WriteIndices(doc, mesh.TransparentIndices)),
				Attributes: attributes,
				Material:   gltf.Index(blendMat),
			})
		}
		if len(primitives) == 0 {
			continue
		}

		name := fmt.Sprintf("chunk_%d_%d_%d", chunk.Origin.X, chunk.Origin.Y, chunk.Origin.Z)
		meshIndex := uint32(len(doc.Meshes))
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: name, Primitives: primitives})
		nodeIndex := uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        name,
			Mesh:        gltf.Index(meshIndex),
			Translation: [3]float32{float32(chunk.Origin.X), float32(chunk.Origin.Y), float32(chunk.Origin.Z)},
		})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, nodeIndex)
		exported++
	}

	if err := gltf.Save(doc, path); err != nil {
		return errors.Wrapf(err, "saving gltf %q", path)
	}
	util.LogIOInfo(fmt.Sprintf("[Export] wrote %d chunk meshes to %q", exported, path))
	return nil
}

// expandVertices unpacks the bit-packed streams into the float arrays the
// accessors want.
func expandVertices(mesh *voxel.MeshData) (positions, normals [][3]float32, repeats, tiles [][2]float32) {
	count := len(mesh.Vertices)
	positions = make([][3]float32, count)
	normals = make([][3]float32, count)
	repeats = make([][2]float32, count)
	tiles = make([][2]float32, count)
	for i, word := range mesh.Vertices {
		pos, face := voxel.UnpackVertex(word)
		positions[i] = [3]float32{float32(pos.X), float32(pos.Y), float32(pos.Z)}
		n := face.Normal()
		normals[i] = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
		if i < len(mesh.UVs) {
			uv := voxel.UnpackUV(mesh.UVs[i])
			repeats[i] = [2]float32{float32(uv.U), float32(uv.V)}
			tiles[i] = [2]float32{float32(uv.Tile), 0}
		}
	}
	return positions, normals, repeats, tiles
}
