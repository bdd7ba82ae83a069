package world

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Tnze/go-mc/nbt"
	"github.com/pkg/errors"

	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// Construction files are the Amulet editor exchange format: the string
// "constrct" at both ends, a uint32 metadata offset just before the
// trailing magic, gzipped NBT metadata holding the block palette and a
// 23-byte-per-entry section index table (min X/Y/Z as uint32, shape X/Y/Z
// as uint8, data offset and length as uint32, all little endian except
// the trailing metadata offset), and one gzipped NBT blob per section
// whose blocks array indexes into the palette.

const constructionMagic = "constrct"

// ErrBadConstruction marks files that fail structural validation.
var ErrBadConstruction = errors.New("not a construction file")

// PaletteEntry is one block of the construction palette.
type PaletteEntry struct {
	Name       string         `nbt:"blockname"`
	Namespace  string         `nbt:"namespace"`
	Properties map[string]any `nbt:"properties"`
}

type constructionEntity struct {
	Namespace string `nbt:"namespace"`
	Name      string `nbt:"base_name"`
	X         int32  `nbt:"x"`
	Y         int32  `nbt:"y"`
	Z         int32  `nbt:"z"`
}

type constructionMetadata struct {
	SelectionBoxes    []int32         `nbt:"selection_boxes"`
	SectionIndexTable []byte          `nbt:"section_index_table"`
	SectionVersion    byte            `nbt:"section_version"`
	BlockPalette      []*PaletteEntry `nbt:"block_palette"`
	CreatedWith       string          `nbt:"created_with"`
}

type sectionArrayInfo struct {
	BlocksArrayType int8 `nbt:"blocks_array_type"`
}

type byteSection struct {
	BlockEntities []constructionEntity `nbt:"block_entities"`
	Blocks        []byte               `nbt:"blocks"`
}

type intSection struct {
	BlockEntities []constructionEntity `nbt:"block_entities"`
	Blocks        []int32              `nbt:"blocks"`
}

type sectionIndex struct {
	min    voxel.Int3
	shape  [3]uint8
	offset uint32
	length uint32
}

// Section is one decoded cuboid of a construction. Blocks is in X-major,
// then Y, then Z order; nil entries are air.
type Section struct {
	Min      voxel.Int3
	Shape    [3]uint8
	Blocks   []*PaletteEntry
	Entities []constructionEntity
}

// Construction is a decoded construction file.
type Construction struct {
	Sections    []*Section
	Palette     []*PaletteEntry
	CreatedWith string
}

// LoadConstruction reads and decodes a construction file.
func LoadConstruction(path string) (*Construction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening construction %q", path)
	}
	defer f.Close()

	var magic [8]byte
	if _, err := f.Read(magic[:]); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}
	if string(magic[:]) != constructionMagic {
		return nil, errors.Wrapf(ErrBadConstruction, "%q: bad leading magic", path)
	}
	if _, err := f.Seek(-int64(len(constructionMagic)), 2); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}
	if _, err := f.Read(magic[:]); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}
	if string(magic[:]) != constructionMagic {
		return nil, errors.Wrapf(ErrBadConstruction, "%q: bad trailing magic, file is truncated", path)
	}

	if _, err := f.Seek(-int64(len(constructionMagic))-4, 2); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}
	var metaOffset int32
	if err := binary.Read(f, binary.BigEndian, &metaOffset); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}

	if _, err := f.Seek(int64(metaOffset), 0); err != nil {
		return nil, errors.Wrapf(err, "reading construction %q", path)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%q: metadata is not gzipped", path)
	}
	var meta constructionMetadata
	if _, err := nbt.NewDecoder(gz).Decode(&meta); err != nil {
		return nil, errors.Wrapf(err, "%q: decoding metadata", path)
	}
	if len(meta.SectionIndexTable)%23 != 0 {
		return nil, errors.Wrapf(ErrBadConstruction, "%q: section table length %d is not a multiple of 23", path, len(meta.SectionIndexTable))
	}

	table := decodeSectionTable(meta.SectionIndexTable)
	sections := make([]*Section, len(table))
	for i, entry := range table {
		sec, err := loadSection(f, entry, meta.BlockPalette)
		if err != nil {
			return nil, errors.Wrapf(err, "%q: section %d at %s", path, i, entry.min.ToString())
		}
		sections[i] = sec
	}

	util.LogWorldInfo(fmt.Sprintf("[World] loaded construction %q: %d sections, %d palette entries, created with %q", path, len(sections), len(meta.BlockPalette), meta.CreatedWith))
	return &Construction{
		Sections:    sections,
		Palette:     meta.BlockPalette,
		CreatedWith: meta.CreatedWith,
	}, nil
}

func decodeSectionTable(table []byte) []sectionIndex {
	count := len(table) / 23
	entries := make([]sectionIndex, count)
	for i := 0; i < count; i++ {
		rec := table[i*23 : i*23+23]
		entries[i] = sectionIndex{
			min: voxel.Int3{
				X: int32(binary.LittleEndian.Uint32(rec[0:4])),
				Y: int32(binary.LittleEndian.Uint32(rec[4:8])),
				Z: int32(binary.LittleEndian.Uint32(rec[8:12])),
			},
			shape:  [3]uint8{rec[12], rec[13], rec[14]},
			offset: binary.LittleEndian.Uint32(rec[15:19]),
			length: binary.LittleEndian.Uint32(rec[19:23]),
		}
	}
	return entries
}

func loadSection(f *os.File, entry sectionIndex, palette []*PaletteEntry) (*Section, error) {
	if _, err := f.Seek(int64(entry.offset), 0); err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	// the array tag type decides the concrete shape, so decode the header
	// first and then the full section in a second pass
	var info sectionArrayInfo
	if _, err := nbt.NewDecoder(gz).Decode(&info); err != nil {
		return nil, err
	}
	if _, err := f.Seek(int64(entry.offset), 0); err != nil {
		return nil, err
	}
	if err := gz.Reset(f); err != nil {
		return nil, err
	}

	sec := &Section{Min: entry.min, Shape: entry.shape}
	switch info.BlocksArrayType {
	case 7: // TAG_Byte_Array
		var decoded byteSection
		if _, err := nbt.NewDecoder(gz).Decode(&decoded); err != nil {
			return nil, err
		}
		sec.Entities = decoded.BlockEntities
		sec.Blocks, err = mapPalette(decoded.Blocks, entry, palette)
	case 11: // TAG_Int_Array
		var decoded intSection
		if _, err := nbt.NewDecoder(gz).Decode(&decoded); err != nil {
			return nil, err
		}
		sec.Entities = decoded.BlockEntities
		sec.Blocks, err = mapPalette(decoded.Blocks, entry, palette)
	case -1: // no blocks, entities only
		var decoded byteSection
		if _, err := nbt.NewDecoder(gz).Decode(&decoded); err != nil {
			return nil, err
		}
		sec.Entities = decoded.BlockEntities
	default:
		return nil, errors.Wrapf(ErrBadConstruction, "unsupported blocks array type %d", info.BlocksArrayType)
	}
	return sec, err
}

func mapPalette[T byte | int32](blocks []T, entry sectionIndex, palette []*PaletteEntry) ([]*PaletteEntry, error) {
	want := int(entry.shape[0]) * int(entry.shape[1]) * int(entry.shape[2])
	if len(blocks) != want {
		return nil, errors.Wrapf(ErrBadConstruction, "blocks array has %d entries, shape wants %d", len(blocks), want)
	}
	result := make([]*PaletteEntry, len(blocks))
	for i, idx := range blocks {
		if int(idx) >= len(palette) {
			return nil, errors.Wrapf(ErrBadConstruction, "palette index %d out of range", idx)
		}
		result[i] = palette[idx]
	}
	return result, nil
}

// Bounds returns the world-space extent covered by the sections.
func (c *Construction) Bounds() (min, max voxel.Int3) {
	min = voxel.Int3{X: 1<<31 - 1, Y: 1<<31 - 1, Z: 1<<31 - 1}
	max = voxel.Int3{X: -(1 << 31), Y: -(1 << 31), Z: -(1 << 31)}
	for _, sec := range c.Sections {
		if sec.Min.X < min.X {
			min.X = sec.Min.X
		}
		if sec.Min.Y < min.Y {
			min.Y = sec.Min.Y
		}
		if sec.Min.Z < min.Z {
			min.Z = sec.Min.Z
		}
		if end := sec.Min.X + int32(sec.Shape[0]); end > max.X {
			max.X = end
		}
		if end := sec.Min.Y + int32(sec.Shape[1]); end > max.Y {
			max.Y = end
		}
		if end := sec.Min.Z + int32(sec.Shape[2]); end > max.Z {
			max.Z = end
		}
	}
	return min, max
}

// BlockNames lists every palette name the sections actually use, sorted.
func (c *Construction) BlockNames() []string {
	seen := make(map[string]bool)
	for _, sec := range c.Sections {
		for _, def := range sec.Blocks {
			if def != nil {
				seen[def.Name] = true
			}
		}
		for _, ent := range sec.Entities {
			seen[ent.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// transparent guess for imported blocks we know nothing else about
func isTransparentName(name string) bool {
	for _, marker := range []string{"water", "glass", "leaves", "air"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// EnsureBlocks registers every name that reg does not know yet, handing
// out atlas tiles sequentially.
func EnsureBlocks(reg *voxel.AtlasRegistry, names []string) {
	for _, name := range names {
		if _, ok := reg.ByName(name); ok {
			continue
		}
		tile := uint8(reg.Count() % 256)
		reg.AddUniform(name, isTransparentName(name), tile)
		util.LogWorldDebug(fmt.Sprintf("[World] registered imported block %q on tile %d", name, tile))
	}
}

// ManagerFromConstruction builds a world sized to the construction bounds
// and fills it with the section content, aligned so the minimum corner
// lands at the origin. Palette names missing from reg are registered on
// the fly. Scheduler, store and biome come from opts; opts.Dimensions is
// derived from the file.
func ManagerFromConstruction(path string, reg *voxel.AtlasRegistry, opts Options) (*Manager, error) {
	con, err := LoadConstruction(path)
	if err != nil {
		return nil, err
	}
	if len(con.Sections) == 0 {
		return nil, errors.Wrapf(ErrBadConstruction, "%q: no sections", path)
	}
	min, max := con.Bounds()
	extent := max.Sub(min)

	size := opts.ChunkSize
	if size == 0 {
		size = voxel.DefaultChunkSize
	}
	opts.Registry = reg
	opts.Dimensions = voxel.Int3{
		X: (extent.X + size - 1) / size,
		Y: (extent.Y + size - 1) / size,
		Z: (extent.Z + size - 1) / size,
	}
	m, err := NewManager(opts)
	if err != nil {
		return nil, err
	}

	EnsureBlocks(reg, con.BlockNames())
	align := voxel.Int3{}.Sub(min)
	placed := 0
	for _, sec := range con.Sections {
		for _, ent := range sec.Entities {
			if id, ok := reg.ByName(ent.Name); ok {
				m.SetBlock(voxel.Int3{X: ent.X, Y: ent.Y, Z: ent.Z}.Add(align), id)
			}
		}
		if len(sec.Blocks) == 0 {
			continue
		}
		idx := 0
		for x := sec.Min.X; x < sec.Min.X+int32(sec.Shape[0]); x++ {
			for y := sec.Min.Y; y < sec.Min.Y+int32(sec.Shape[1]); y++ {
				for z := sec.Min.Z; z < sec.Min.Z+int32(sec.Shape[2]); z++ {
					def := sec.Blocks[idx]
					idx++
					if def == nil || def.Name == "air" {
						continue
					}
					id, _ := reg.ByName(def.Name)
					m.SetBlock(voxel.Int3{X: x, Y: y, Z: z}.Add(align), id)
					placed++
				}
			}
		}
	}
	util.LogWorldInfo(fmt.Sprintf("[World] placed %d blocks into a %s chunk grid", placed, opts.Dimensions.ToString()))
	return m, nil
}
