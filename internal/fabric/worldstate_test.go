package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("a", VersionedValue{Value: []byte("1"), Version: 1}))
	require.NoError(t, s.Put("b", VersionedValue{Value: []byte("2"), Version: 2}))
	require.NoError(t, s.Put("c", VersionedValue{Value: []byte("3"), Version: 2}))

	vv, ok, err := s.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), vv.Value)
	assert.Equal(t, uint64(2), vv.Version)

	require.NoError(t, s.Delete("b"))
	_, ok, err = s.Get("b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreRange(t *testing.T) {
	s := NewMemoryStore()
	for _, k := range []string{"k3", "k1", "k2", "m1"} {
		require.NoError(t, s.Put(k, VersionedValue{Value: []byte(k), Version: 1}))
	}

	kvs, err := s.GetRange("k1", "k9")
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, "k1", kvs[0].Key)
	assert.Equal(t, "k2", kvs[1].Key)
	assert.Equal(t, "k3", kvs[2].Key)

	// empty end key means unbounded
	kvs, err = s.GetRange("k2", "")
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, "m1", kvs[2].Key)
}

func TestLevelStore(t *testing.T) {
	s, err := NewLevelStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("x", VersionedValue{Value: []byte("payload"), Version: 7}))

	vv, ok, err := s.Get("x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), vv.Value)
	assert.Equal(t, uint64(7), vv.Version)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("y", VersionedValue{Value: []byte("2"), Version: 8}))
	kvs, err := s.GetRange("x", "z")
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, "x", kvs[0].Key)
	assert.Equal(t, uint64(8), kvs[1].Value.Version)

	require.NoError(t, s.Delete("x"))
	_, ok, err = s.Get("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionedValueEncoding(t *testing.T) {
	vv := VersionedValue{Value: []byte("hello"), Version: 42}
	decoded, err := decodeVersioned(encodeVersioned(vv))
	require.NoError(t, err)
	assert.Equal(t, vv, decoded)

	// empty value round trip
	decoded, err = decodeVersioned(encodeVersioned(VersionedValue{Version: 1}))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decoded.Version)
	assert.Empty(t, decoded.Value)

	_, err = decodeVersioned([]byte{1, 2, 3})
	assert.Error(t, err)
}
