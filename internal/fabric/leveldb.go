package fabric

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelStore persists world state in a LevelDB database so a peer's state
// survives process restarts. Values are stored as an 8-byte big-endian
// version followed by the raw value bytes.
type levelStore struct {
	db *leveldb.DB
}

// NewLevelStore opens (or creates) a LevelDB-backed world-state store at path
func NewLevelStore(path string) (Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &levelStore{db: db}, nil
}

func encodeVersioned(vv VersionedValue) []byte {
	buf := make([]byte, 8+len(vv.Value))
	binary.BigEndian.PutUint64(buf[:8], vv.Version)
	copy(buf[8:], vv.Value)
	return buf
}

func decodeVersioned(raw []byte) (VersionedValue, error) {
	if len(raw) < 8 {
		return VersionedValue{}, fmt.Errorf("corrupt versioned value of %d bytes", len(raw))
	}
	value := make([]byte, len(raw)-8)
	copy(value, raw[8:])
	return VersionedValue{Value: value, Version: binary.BigEndian.Uint64(raw[:8])}, nil
}

func (s *levelStore) Get(key string) (VersionedValue, bool, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return VersionedValue{}, false, nil
	}
	if err != nil {
		return VersionedValue{}, false, err
	}
	vv, err := decodeVersioned(raw)
	if err != nil {
		return VersionedValue{}, false, err
	}
	return vv, true, nil
}

func (s *levelStore) GetRange(startKey, endKey string) ([]KV, error) {
	rng := &util.Range{Start: []byte(startKey)}
	if endKey != "" {
		rng.Limit = []byte(endKey)
	}

	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	var kvs []KV
	for iter.Next() {
		vv, err := decodeVersioned(iter.Value())
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, KV{Key: string(iter.Key()), Value: vv})
	}
	return kvs, iter.Error()
}

func (s *levelStore) Put(key string, value VersionedValue) error {
	return s.db.Put([]byte(key), encodeVersioned(value), nil)
}

func (s *levelStore) Delete(key string) error {
	return s.db.Delete([]byte(key), nil)
}

func (s *levelStore) Close() error { return s.db.Close() }
