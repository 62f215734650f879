package ehrcontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

func scheduleAppointment(t *testing.T, sc *SmartContract, stub *testStub) *types.Appointment {
	t.Helper()
	appt, err := sc.ScheduleAppointment(ctxFor(stub, "patient-1", types.RolePatient),
		"appt-1", "patient-1", "dr-house", stub.ts.Add(48*time.Hour).Format(time.RFC3339), "annual checkup")
	require.NoError(t, err)
	return appt
}

func TestScheduleAppointment(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()

	appt := scheduleAppointment(t, sc, stub)
	assert.Equal(t, types.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, "dr-house", appt.DoctorID)

	entry := lastAudit(stub, "appt-1")
	require.NotNil(t, entry)
	assert.Equal(t, types.AuditActionCreate, entry.Action)
}

func TestScheduleAppointmentInPast(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()

	_, err := sc.ScheduleAppointment(ctxFor(stub, "patient-1", types.RolePatient),
		"appt-1", "patient-1", "dr-house", stub.ts.Add(-time.Hour).Format(time.RFC3339), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeInvalidRange)
}

func TestScheduleAppointmentByOutsiderDenied(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()

	_, err := sc.ScheduleAppointment(ctxFor(stub, "patient-2", types.RolePatient),
		"appt-1", "patient-1", "dr-house", stub.ts.Add(time.Hour).Format(time.RFC3339), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)
}

func TestAppointmentLifecycle(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	scheduleAppointment(t, sc, stub)

	// only the assigned doctor confirms
	stub.nextTx("tx-confirm-wrong", stub.ts.Add(time.Minute))
	_, err := sc.ConfirmAppointment(ctxFor(stub, "dr-other", types.RoleDoctor), "appt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)

	stub.nextTx("tx-confirm", stub.ts.Add(2*time.Minute))
	appt, err := sc.ConfirmAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, types.AppointmentStatusConfirmed, appt.Status)

	// completing from CONFIRMED
	stub.nextTx("tx-complete", stub.ts.Add(3*time.Minute))
	appt, err = sc.CompleteAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1", "")
	require.NoError(t, err)
	assert.Equal(t, types.AppointmentStatusCompleted, appt.Status)

	// COMPLETED is terminal
	stub.nextTx("tx-cancel", stub.ts.Add(4*time.Minute))
	_, err = sc.CancelAppointment(ctxFor(stub, "patient-1", types.RolePatient), "appt-1", "too late")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeStateConflict)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	scheduleAppointment(t, sc, stub)

	stub.nextTx("tx-complete", stub.ts.Add(time.Minute))
	_, err := sc.CompleteAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeStateConflict)
}

func TestCompleteWithRecordChecksConsent(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()

	_, err := sc.RegisterPatient(ctxFor(stub, "dr-other", types.RoleDoctor), "patient-1", "Alice", "h")
	require.NoError(t, err)

	stub.nextTx("tx-rec", stub.ts.Add(time.Minute))
	_, err = sc.CreateRecord(ctxFor(stub, "dr-other", types.RoleDoctor),
		"rec-1", "patient-1", "lab_report", "blob://a", "{}", false, "")
	require.NoError(t, err)

	stub.nextTx("tx-sched", stub.ts.Add(2*time.Minute))
	scheduleAppointment(t, sc, stub)

	stub.nextTx("tx-confirm", stub.ts.Add(3*time.Minute))
	_, err = sc.ConfirmAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1")
	require.NoError(t, err)

	// dr-house holds no consent for patient-1's records
	stub.nextTx("tx-complete", stub.ts.Add(4*time.Minute))
	_, err = sc.CompleteAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1", "rec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)
}

func TestCancelAppointment(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	scheduleAppointment(t, sc, stub)

	stub.nextTx("tx-cancel", stub.ts.Add(time.Minute))
	appt, err := sc.CancelAppointment(ctxFor(stub, "patient-1", types.RolePatient), "appt-1", "conflict")
	require.NoError(t, err)
	assert.Equal(t, types.AppointmentStatusCancelled, appt.Status)

	entry := lastAudit(stub, "appt-1")
	require.NotNil(t, entry)
	assert.Contains(t, entry.Reason, "conflict")
}

func TestRescheduleAppointment(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	scheduleAppointment(t, sc, stub)

	stub.nextTx("tx-confirm", stub.ts.Add(time.Minute))
	_, err := sc.ConfirmAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1")
	require.NoError(t, err)

	// rescheduling a confirmed appointment drops it back to SCHEDULED
	stub.nextTx("tx-resched", stub.ts.Add(2*time.Minute))
	newTime := stub.ts.Add(72 * time.Hour)
	appt, err := sc.RescheduleAppointment(ctxFor(stub, "patient-1", types.RolePatient),
		"appt-1", newTime.Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, types.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, newTime, appt.ScheduledFor)
}

func TestGetAppointmentVisibility(t *testing.T) {
	sc := &SmartContract{}
	stub := newTestStub()
	scheduleAppointment(t, sc, stub)

	_, err := sc.GetAppointment(ctxFor(stub, "dr-house", types.RoleDoctor), "appt-1")
	assert.NoError(t, err)

	_, err = sc.GetAppointment(ctxFor(stub, "patient-2", types.RolePatient), "appt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrCodeAccessDenied)
}
