package ehrcontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// setupPatientWithRecord registers patient-1 and writes one lab record for them
func setupPatientWithRecord(t *testing.T, sc *SmartContract, stub *testStub) {
	t.Helper()

	_, err := sc.RegisterPatient(ctxFor(stub, "dr-house", types.RoleDoctor), "patient-1", "Alice Ng", "hash-abc")
	require.NoError(t, err)

	stub.nextTx("tx-create-record", stub.ts.Add(time.Minute))
	_, err = sc.CreateRecord(ctxFor(stub, "dr-house", types.RoleDoctor),
		"rec-1", "patient-1", "lab_report", "blob://sha256/aaa", `{"lab":"central"}`, false, "blood,routine")
	require.NoError(t, err)
}

func TestCreateRecord(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	var record types.MedicalRecord
	found, err := sc.getJSON(ctxFor(stub, "root", types.RoleAdmin), recordKeyPrefix+"rec-1", &record)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "patient-1", record.PatientID)
	assert.Equal(t, "dr-house", record.AuthorID)
	assert.Equal(t, types.RecordStatusCreated, record.Status)
	assert.Equal(t, map[string]string{"lab": "central"}, record.Metadata)
	assert.Equal(t, []string{"blood", "routine"}, record.Tags)

	entry := lastAudit(stub, "rec-1")
	require.NotNil(t, entry)
	assert.Equal(t, types.AuditActionCreate, entry.Action)
}

func TestCreateRecordUnknownPatient(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()

	_, err := sc.CreateRecord(ctxFor(stub, "dr-house", types.RoleDoctor),
		"rec-1", "nobody", "lab_report", "blob://x", "{}", false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeNotFound)
}

func TestReadRecordSelf(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-read", stub.ts.Add(time.Hour))
	envelope, err := sc.ReadRecord(ctxFor(stub, "patient-1", types.RolePatient), "rec-1", "own records")
	require.NoError(t, err)

	assert.True(t, envelope.Allowed)
	require.NotNil(t, envelope.Record)
	assert.Equal(t, "rec-1", envelope.Record.RecordID)

	entry := lastAudit(stub, "rec-1")
	require.NotNil(t, entry)
	assert.Equal(t, types.AuditActionRead, entry.Action)
	assert.Equal(t, types.AuditOutcomeAllowed, entry.Outcome)
}

func TestReadRecordDeniedWithoutConsent(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-denied-read", stub.ts.Add(time.Hour))
	envelope, err := sc.ReadRecord(ctxFor(stub, "dr-stranger", types.RoleDoctor), "rec-1", "curiosity")

	// The denial is a successful transaction so the audit write commits
	require.NoError(t, err)
	assert.False(t, envelope.Allowed)
	assert.Equal(t, types.ErrCodeAccessDenied, envelope.Code)
	assert.Nil(t, envelope.Record)

	entry := lastAudit(stub, "rec-1")
	require.NotNil(t, entry)
	assert.Equal(t, types.AuditActionRead, entry.Action)
	assert.Equal(t, types.AuditOutcomeDenied, entry.Outcome)
	assert.Equal(t, "dr-stranger", entry.AccessorID)
}

func TestReadRecordWithConsent(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-grant", stub.ts.Add(time.Minute))
	validFrom := stub.ts.Format(time.RFC3339)
	validUntil := stub.ts.Add(24 * time.Hour).Format(time.RFC3339)
	_, err := sc.CreateConsent(ctxFor(stub, "patient-1", types.RolePatient),
		"consent-1", "patient-1", "dr-stranger", "lab_report", "treatment", validFrom, validUntil)
	require.NoError(t, err)

	stub.nextTx("tx-read", stub.ts.Add(time.Hour))
	envelope, err := sc.ReadRecord(ctxFor(stub, "dr-stranger", types.RoleDoctor), "rec-1", "treatment")
	require.NoError(t, err)
	assert.True(t, envelope.Allowed)
	require.NotNil(t, envelope.Record)
}

func TestReadRecordScopeMismatchDenied(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-grant", stub.ts.Add(time.Minute))
	validFrom := stub.ts.Format(time.RFC3339)
	validUntil := stub.ts.Add(24 * time.Hour).Format(time.RFC3339)
	_, err := sc.CreateConsent(ctxFor(stub, "patient-1", types.RolePatient),
		"consent-1", "patient-1", "dr-stranger", "imaging", "treatment", validFrom, validUntil)
	require.NoError(t, err)

	stub.nextTx("tx-read", stub.ts.Add(time.Hour))
	envelope, err := sc.ReadRecord(ctxFor(stub, "dr-stranger", types.RoleDoctor), "rec-1", "treatment")
	require.NoError(t, err)
	assert.False(t, envelope.Allowed, "imaging consent must not cover a lab report")
}

func TestUpdateRecordMetadata(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-update", stub.ts.Add(time.Hour))
	record, err := sc.UpdateRecordMetadata(ctxFor(stub, "dr-house", types.RoleDoctor),
		"rec-1", `{"reviewed":"yes"}`, "")
	require.NoError(t, err)

	assert.Equal(t, "yes", record.Metadata["reviewed"])
	assert.Equal(t, "central", record.Metadata["lab"], "patch merges, does not replace")
	assert.Equal(t, "blob://sha256/aaa", record.ContentPointer)
	assert.True(t, record.UpdatedAt.After(record.CreatedAt))
}

func TestDeleteRecordTombstones(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-delete", stub.ts.Add(time.Hour))
	record, err := sc.DeleteRecord(ctxFor(stub, "root", types.RoleAdmin), "rec-1", "retention expired")
	require.NoError(t, err)
	assert.Equal(t, types.RecordStatusTombstoned, record.Status)

	// tombstoned records read as absent for everyone but admin
	stub.nextTx("tx-read", stub.ts.Add(2*time.Hour))
	_, err = sc.ReadRecord(ctxFor(stub, "patient-1", types.RolePatient), "rec-1", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeNotFound)

	stub.nextTx("tx-admin-read", stub.ts.Add(3*time.Hour))
	envelope, err := sc.ReadRecord(ctxFor(stub, "root", types.RoleAdmin), "rec-1", "audit")
	require.NoError(t, err)
	assert.True(t, envelope.Allowed)

	// double delete is a state conflict
	stub.nextTx("tx-delete-2", stub.ts.Add(4*time.Hour))
	_, err = sc.DeleteRecord(ctxFor(stub, "root", types.RoleAdmin), "rec-1", "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeStateConflict)
}

func TestListRecordsByPatientFiltersByConsent(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	stub.nextTx("tx-create-2", stub.ts.Add(time.Minute))
	_, err := sc.CreateRecord(ctxFor(stub, "dr-house", types.RoleDoctor),
		"rec-2", "patient-1", "imaging", "blob://sha256/bbb", "{}", true, "")
	require.NoError(t, err)

	// grant dr-stranger access to lab reports only
	stub.nextTx("tx-grant", stub.ts.Add(2*time.Minute))
	validFrom := stub.ts.Format(time.RFC3339)
	validUntil := stub.ts.Add(24 * time.Hour).Format(time.RFC3339)
	_, err = sc.CreateConsent(ctxFor(stub, "patient-1", types.RolePatient),
		"consent-1", "patient-1", "dr-stranger", "lab_report", "treatment", validFrom, validUntil)
	require.NoError(t, err)

	stub.nextTx("tx-list", stub.ts.Add(time.Hour))
	visible, err := sc.ListRecordsByPatient(ctxFor(stub, "dr-stranger", types.RoleDoctor), "patient-1")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "rec-1", visible[0].RecordID)

	all, err := sc.ListRecordsByPatient(ctxFor(stub, "patient-1", types.RolePatient), "patient-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCheckAccessIsPure(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	setupPatientWithRecord(t, sc, stub)

	before := len(auditEntries(stub))

	stub.nextTx("tx-check", stub.ts.Add(time.Hour))
	decision, err := sc.CheckAccess(ctxFor(stub, "dr-stranger", types.RoleDoctor), "patient-1", "dr-stranger", "lab_report")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)

	assert.Equal(t, before, len(auditEntries(stub)), "CheckAccess must not write audit entries")
}
