package voxel

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrCorruptSnapshot is returned when a serialized volume fails validation.
// The wrapping message names the check that failed.
var ErrCorruptSnapshot = errors.New("corrupt volume snapshot")

// Snapshot layout, little-endian: 4 byte magic, u16 edge length, u32 pair
// count, then (run u16, value u16) pairs covering the flat cell order.
// Runs longer than 65535 cells are split across pairs.
var snapshotMagic = [4]byte{'C', 'F', 'R', 'L'}

type snapshotHeader struct {
	Size  uint16
	Pairs uint32
}

// Serialize writes the volume as a run-length snapshot.
func (v *Volume) Serialize(w io.Writer) error {
	cells := make([]BlockID, v.size*v.size*v.size)
	v.Decompress(cells)

	pairs := make([]uint16, 0, 128)
	emit := func(value BlockID, length uint32) {
		for length > 0 {
			run := length
			if run > 65535 {
				run = 65535
			}
			pairs = append(pairs, uint16(run), uint16(value))
			length -= run
		}
	}
	current := cells[0]
	length := uint32(0)
	for _, id := range cells {
		if id == current {
			length++
			continue
		}
		emit(current, length)
		current = id
		length = 1
	}
	emit(current, length)

	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return errors.Wrap(err, "write snapshot magic")
	}
	header := snapshotHeader{Size: uint16(v.size), Pairs: uint32(len(pairs) / 2)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "write snapshot header")
	}
	if err := binary.Write(w, binary.LittleEndian, pairs); err != nil {
		return errors.Wrap(err, "write snapshot runs")
	}
	return nil
}

// Deserialize reads a snapshot produced by Serialize and rebuilds the
// volume. Anything that does not add up to a well-formed chunk comes back
// as ErrCorruptSnapshot.
func Deserialize(r io.Reader) (*Volume, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Wrap(err, "read snapshot magic")
	}
	if magic != snapshotMagic {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "bad magic %q", magic[:])
	}
	var header snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read snapshot header")
	}
	size := int32(header.Size)
	if !isPowerOfTwo(size) || size < 2 || size > MaxChunkSize {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "invalid volume size %d", size)
	}
	cellCount := uint32(size) * uint32(size) * uint32(size)
	if header.Pairs == 0 || header.Pairs > cellCount {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "implausible run count %d for %d cells", header.Pairs, cellCount)
	}
	pairs := make([]uint16, header.Pairs*2)
	if err := binary.Read(r, binary.LittleEndian, pairs); err != nil {
		return nil, errors.Wrap(err, "read snapshot runs")
	}

	v := NewVolume(size, Air)
	idx := uint32(0)
	for p := 0; p < len(pairs); p += 2 {
		run := uint32(pairs[p])
		value := BlockID(pairs[p+1])
		if value == Null {
			return nil, errors.Wrap(ErrCorruptSnapshot, "run holds the Null sentinel")
		}
		if run == 0 {
			return nil, errors.Wrap(ErrCorruptSnapshot, "zero-length run")
		}
		if idx+run > cellCount {
			return nil, errors.Wrapf(ErrCorruptSnapshot, "runs cover %d cells, volume holds %d", idx+run, cellCount)
		}
		if value != Air {
			for i := idx; i < idx+run; i++ {
				x := int32(i) % size
				y := (int32(i) / size) % size
				z := int32(i) / (size * size)
				v.Set(x, y, z, value)
			}
		}
		idx += run
	}
	if idx != cellCount {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "runs cover %d cells, volume holds %d", idx, cellCount)
	}
	return v, nil
}
