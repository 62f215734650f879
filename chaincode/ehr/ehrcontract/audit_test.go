package ehrcontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// buildTrail produces a small history: registration, record creation, one
// allowed read and one denied read
func buildTrail(t *testing.T, sc *SmartContract, stub *testStub) {
	t.Helper()

	_, err := sc.RegisterPatient(ctxFor(stub, "dr-house", types.RoleDoctor), "patient-1", "Alice", "h")
	require.NoError(t, err)

	stub.nextTx("tx-rec", stub.ts.Add(time.Minute))
	_, err = sc.CreateRecord(ctxFor(stub, "dr-house", types.RoleDoctor),
		"rec-1", "patient-1", "lab_report", "blob://a", "{}", false, "")
	require.NoError(t, err)

	stub.nextTx("tx-read-self", stub.ts.Add(2*time.Minute))
	_, err = sc.ReadRecord(ctxFor(stub, "patient-1", types.RolePatient), "rec-1", "own records")
	require.NoError(t, err)

	stub.nextTx("tx-read-denied", stub.ts.Add(3*time.Minute))
	envelope, err := sc.ReadRecord(ctxFor(stub, "dr-stranger", types.RoleDoctor), "rec-1", "snooping")
	require.NoError(t, err)
	require.False(t, envelope.Allowed)
}

func TestQueryAuditBySubject(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	buildTrail(t, sc, stub)

	stub.nextTx("tx-query", stub.ts.Add(time.Hour))
	entries, err := sc.QueryAuditBySubject(ctxFor(stub, "root", types.RoleAdmin), "rec-1")
	require.NoError(t, err)

	// creation, allowed read, denied read
	require.Len(t, entries, 3)
	assert.Equal(t, types.AuditActionCreate, entries[0].Action)
	assert.Equal(t, types.AuditOutcomeAllowed, entries[1].Outcome)
	assert.Equal(t, types.AuditOutcomeDenied, entries[2].Outcome)
	assert.Equal(t, "dr-stranger", entries[2].AccessorID)

	// the record's patient may read the trail of their own record
	_, err = sc.QueryAuditBySubject(ctxFor(stub, "patient-1", types.RolePatient), "rec-1")
	assert.NoError(t, err)

	// an unrelated patient may not
	_, err = sc.QueryAuditBySubject(ctxFor(stub, "patient-2", types.RolePatient), "rec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)
}

func TestQueryAuditByPatient(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	buildTrail(t, sc, stub)

	stub.nextTx("tx-query", stub.ts.Add(time.Hour))
	entries, err := sc.QueryAuditByPatient(ctxFor(stub, "patient-1", types.RolePatient), "patient-1")
	require.NoError(t, err)
	assert.Len(t, entries, 4, "registration, creation, and both read attempts")

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp), "entries are ordered by timestamp")
	}

	_, err = sc.QueryAuditByPatient(ctxFor(stub, "dr-stranger", types.RoleDoctor), "patient-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)
}

func TestQueryAuditByRange(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	start := stub.ts
	buildTrail(t, sc, stub)

	stub.nextTx("tx-query", stub.ts.Add(time.Hour))

	// a window covering only the first two transactions
	entries, err := sc.QueryAuditByRange(ctxFor(stub, "root", types.RoleAdmin),
		start.Format(time.RFC3339), start.Add(90*time.Second).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// admin only
	_, err = sc.QueryAuditByRange(ctxFor(stub, "patient-1", types.RolePatient),
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)

	// until must be after from
	_, err = sc.QueryAuditByRange(ctxFor(stub, "root", types.RoleAdmin),
		start.Add(time.Hour).Format(time.RFC3339), start.Format(time.RFC3339))
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeInvalidRange)
}

func TestGetAuditEntry(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	buildTrail(t, sc, stub)

	stub.nextTx("tx-query", stub.ts.Add(time.Hour))

	// entry ids are derived from the transaction id
	entry, err := sc.GetAuditEntry(ctxFor(stub, "root", types.RoleAdmin), "audit_tx-read-denied")
	require.NoError(t, err)
	assert.Equal(t, types.AuditOutcomeDenied, entry.Outcome)

	// the accessor named in the entry may read their own trail entry
	_, err = sc.GetAuditEntry(ctxFor(stub, "dr-stranger", types.RoleDoctor), "audit_tx-read-denied")
	assert.NoError(t, err)

	// unrelated callers may not
	_, err = sc.GetAuditEntry(ctxFor(stub, "patient-2", types.RolePatient), "audit_tx-read-denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)

	_, err = sc.GetAuditEntry(ctxFor(stub, "root", types.RoleAdmin), "audit_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeNotFound)
}

func TestAuditEntriesAreImmutableByConstruction(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	buildTrail(t, sc, stub)

	// every entry id is audit_<txID>: resubmitting the same transaction id
	// would overwrite rather than append, so ids must be unique per tx
	seen := map[string]bool{}
	for _, e := range auditEntries(stub) {
		assert.Equal(t, "audit_"+e.TxID, e.EntryID)
		assert.False(t, seen[e.EntryID], "duplicate audit entry id %s", e.EntryID)
		seen[e.EntryID] = true
	}
}
