package fabric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStub(t *testing.T, snapshot Store, function string, args ...string) *simStub {
	t.Helper()
	return newSimStub(snapshot, &Proposal{
		TxID:      "tx-1",
		Creator:   []byte("creator"),
		Function:  function,
		Args:      args,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, "ehr-channel")
}

func TestStubArgs(t *testing.T) {
	stub := newTestStub(t, NewMemoryStore(), "ReadRecord", "rec-1", "patient-1")

	fn, params := stub.GetFunctionAndParameters()
	assert.Equal(t, "ReadRecord", fn)
	assert.Equal(t, []string{"rec-1", "patient-1"}, params)
	assert.Equal(t, "tx-1", stub.GetTxID())
	assert.Equal(t, "ehr-channel", stub.GetChannelID())

	creator, err := stub.GetCreator()
	require.NoError(t, err)
	assert.Equal(t, []byte("creator"), creator)

	ts, err := stub.GetTxTimestamp()
	require.NoError(t, err)
	assert.True(t, ts.AsTime().Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestStubReadsCommittedSnapshotOnly(t *testing.T) {
	snapshot := NewMemoryStore()
	require.NoError(t, snapshot.Put("k", VersionedValue{Value: []byte("committed"), Version: 3}))

	stub := newTestStub(t, snapshot, "fn")

	require.NoError(t, stub.PutState("k", []byte("pending")))

	// reads never observe the transaction's own buffered writes
	value, err := stub.GetState("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), value)

	require.NoError(t, stub.DelState("k"))
	value, err = stub.GetState("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), value)
}

func TestStubReadSetVersions(t *testing.T) {
	snapshot := NewMemoryStore()
	require.NoError(t, snapshot.Put("present", VersionedValue{Value: []byte("v"), Version: 5}))

	stub := newTestStub(t, snapshot, "fn")

	_, err := stub.GetState("present")
	require.NoError(t, err)
	_, err = stub.GetState("absent")
	require.NoError(t, err)

	rs := stub.readSet()
	assert.Equal(t, uint64(5), rs["present"])
	assert.Equal(t, uint64(0), rs["absent"])
}

func TestStubFirstReadVersionWins(t *testing.T) {
	snapshot := NewMemoryStore()
	require.NoError(t, snapshot.Put("k", VersionedValue{Value: []byte("v"), Version: 2}))

	stub := newTestStub(t, snapshot, "fn")
	_, err := stub.GetState("k")
	require.NoError(t, err)

	// a later read records nothing new even if it repeats
	_, err = stub.GetState("k")
	require.NoError(t, err)

	assert.Equal(t, map[string]uint64{"k": 2}, stub.readSet())
}

func TestStubWriteSetSortedByKey(t *testing.T) {
	stub := newTestStub(t, NewMemoryStore(), "fn")

	require.NoError(t, stub.PutState("zebra", []byte("z")))
	require.NoError(t, stub.PutState("alpha", []byte("a")))
	require.NoError(t, stub.DelState("mid"))
	require.NoError(t, stub.PutState("alpha", []byte("a2")))

	ws := stub.writeSet()
	require.Len(t, ws, 3)
	assert.Equal(t, "alpha", ws[0].Key)
	assert.Equal(t, []byte("a2"), ws[0].Value)
	assert.Equal(t, "mid", ws[1].Key)
	assert.True(t, ws[1].IsDelete)
	assert.Equal(t, "zebra", ws[2].Key)

	assert.Error(t, stub.PutState("", []byte("nope")))
}

func TestStubCompositeKeys(t *testing.T) {
	stub := newTestStub(t, NewMemoryStore(), "fn")

	key, err := stub.CreateCompositeKey("patient~record", []string{"patient-1", "rec-1"})
	require.NoError(t, err)

	objectType, attrs, err := stub.SplitCompositeKey(key)
	require.NoError(t, err)
	assert.Equal(t, "patient~record", objectType)
	assert.Equal(t, []string{"patient-1", "rec-1"}, attrs)

	_, err = stub.CreateCompositeKey("bad\x00type", nil)
	assert.Error(t, err)
}

func TestStubPartialCompositeKeyQuery(t *testing.T) {
	snapshot := NewMemoryStore()
	stub := newTestStub(t, snapshot, "fn")

	for _, rec := range []string{"rec-1", "rec-2"} {
		key, err := stub.CreateCompositeKey("patient~record", []string{"patient-1", rec})
		require.NoError(t, err)
		require.NoError(t, snapshot.Put(key, VersionedValue{Value: []byte{0}, Version: 1}))
	}
	other, err := stub.CreateCompositeKey("patient~record", []string{"patient-2", "rec-3"})
	require.NoError(t, err)
	require.NoError(t, snapshot.Put(other, VersionedValue{Value: []byte{0}, Version: 1}))

	iter, err := stub.GetStateByPartialCompositeKey("patient~record", []string{"patient-1"})
	require.NoError(t, err)
	defer iter.Close()

	var recs []string
	for iter.HasNext() {
		kv, err := iter.Next()
		require.NoError(t, err)
		_, attrs, err := stub.SplitCompositeKey(kv.Key)
		require.NoError(t, err)
		recs = append(recs, attrs[1])
	}
	assert.Equal(t, []string{"rec-1", "rec-2"}, recs)
}

func TestStubEvents(t *testing.T) {
	stub := newTestStub(t, NewMemoryStore(), "fn")

	assert.Error(t, stub.SetEvent("", nil))

	require.NoError(t, stub.SetEvent("first", []byte("1")))
	require.NoError(t, stub.SetEvent("second", []byte("2")))

	// only the last event of a transaction is kept
	require.NotNil(t, stub.event)
	assert.Equal(t, "second", stub.event.Name)
	assert.Equal(t, []byte("2"), stub.event.Payload)
}
