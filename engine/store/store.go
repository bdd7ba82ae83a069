package store

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
)

// ChunkStore persists chunk volumes in a badger database, one entry per
// chunk origin. Values are zstd-compressed RLE snapshots, so a mostly
// uniform chunk costs a few dozen bytes on disk.
type ChunkStore struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var keyPrefix = []byte("chunk:")

func chunkKey(origin voxel.Int3) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d", origin.X, origin.Y, origin.Z))
}

// Open creates or opens the store directory.
func Open(path string) (*ChunkStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logging drowns ours
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open chunk store at %s", path)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, errors.Wrap(err, "create zstd decoder")
	}
	util.LogStoreInfo(fmt.Sprintf("[Store] opened %s", path))
	return &ChunkStore{db: db, enc: enc, dec: dec}, nil
}

// Put writes the chunk's current content under its origin.
func (s *ChunkStore) Put(origin voxel.Int3, vol *voxel.Volume) error {
	var buf bytes.Buffer
	if err := vol.Serialize(&buf); err != nil {
		return errors.Wrapf(err, "serialize chunk %s", origin.ToString())
	}
	payload := s.enc.EncodeAll(buf.Bytes(), nil)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(origin), payload)
	})
	return errors.Wrapf(err, "store chunk %s", origin.ToString())
}

// Get loads a chunk. A missing chunk is not an error: it returns
// (nil, false, nil) and the caller generates instead.
func (s *ChunkStore) Get(origin voxel.Int3) (*voxel.Volume, bool, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(origin))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "load chunk %s", origin.ToString())
	}
	return s.decode(origin, payload)
}

func (s *ChunkStore) decode(origin voxel.Int3, payload []byte) (*voxel.Volume, bool, error) {
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decompress chunk %s", origin.ToString())
	}
	vol, err := voxel.Deserialize(bytes.NewReader(raw))
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode chunk %s", origin.ToString())
	}
	return vol, true, nil
}

// Has reports whether a chunk is stored without decoding it.
func (s *ChunkStore) Has(origin voxel.Int3) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(origin))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "probe chunk %s", origin.ToString())
	}
	return true, nil
}

func (s *ChunkStore) Delete(origin voxel.Int3) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(origin))
	})
	return errors.Wrapf(err, "delete chunk %s", origin.ToString())
}

// ForEach decodes every stored chunk in key order. The callback's error
// stops the walk and comes back out.
func (s *ChunkStore) ForEach(fn func(origin voxel.Int3, vol *voxel.Volume) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			var origin voxel.Int3
			if _, err := fmt.Sscanf(string(item.Key()[len(keyPrefix):]), "%d:%d:%d", &origin.X, &origin.Y, &origin.Z); err != nil {
				return errors.Wrapf(err, "parse chunk key %q", item.Key())
			}
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return errors.Wrapf(err, "read chunk %s", origin.ToString())
			}
			vol, _, err := s.decode(origin, payload)
			if err != nil {
				return err
			}
			if err := fn(origin, vol); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ChunkStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return errors.Wrap(s.db.Close(), "close chunk store")
}
