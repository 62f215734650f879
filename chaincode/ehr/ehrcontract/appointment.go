package ehrcontract

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// appointmentParty reports whether the caller participates in the appointment
func appointmentParty(appt *types.Appointment, callerID string) bool {
	return callerID == appt.PatientID || callerID == appt.DoctorID
}

func (s *SmartContract) loadAppointment(ctx contractapi.TransactionContextInterface, appointmentID string) (*types.Appointment, error) {
	var appt types.Appointment
	found, err := s.getJSON(ctx, appointmentKeyPrefix+appointmentID, &appt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "appointment %s does not exist", appointmentID)
	}
	return &appt, nil
}

func (s *SmartContract) storeAppointment(ctx contractapi.TransactionContextInterface, appt *types.Appointment, callerID string, role types.Role, action types.AuditAction, reason string) error {
	if err := s.putJSON(ctx, appointmentKeyPrefix+appt.AppointmentID, appt); err != nil {
		return err
	}
	return s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    appt.PatientID,
		SubjectID:    appt.AppointmentID,
		SubjectType:  "appointment",
		Action:       action,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       reason,
		Timestamp:    appt.UpdatedAt,
	})
}

// ScheduleAppointment creates a SCHEDULED appointment between a patient and a
// doctor. The patient, the doctor, or an admin may schedule.
func (s *SmartContract) ScheduleAppointment(ctx contractapi.TransactionContextInterface, appointmentID, patientID, doctorID, scheduledFor, notes string) (*types.Appointment, error) {
	if appointmentID == "" || patientID == "" || doctorID == "" {
		return nil, ccError(types.ErrCodeInvalidInput, "appointment id, patient id and doctor id are required")
	}

	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if callerID != patientID && callerID != doctorID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only a participant or admin may schedule an appointment")
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	when, err := parseRFC3339("scheduled_for", scheduledFor)
	if err != nil {
		return nil, err
	}
	if !when.After(now) {
		return nil, ccError(types.ErrCodeInvalidRange, "scheduled_for must be after the transaction timestamp")
	}

	var existing types.Appointment
	found, err := s.getJSON(ctx, appointmentKeyPrefix+appointmentID, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ccError(types.ErrCodeAlreadyExists, "appointment %s already exists", appointmentID)
	}

	appt := &types.Appointment{
		AppointmentID: appointmentID,
		PatientID:     patientID,
		DoctorID:      doctorID,
		Status:        types.AppointmentStatusScheduled,
		ScheduledFor:  when,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.storeAppointment(ctx, appt, callerID, role, types.AuditActionCreate, ""); err != nil {
		return nil, err
	}
	return appt, nil
}

// ConfirmAppointment moves SCHEDULED to CONFIRMED. Only the assigned doctor
// or an admin may confirm.
func (s *SmartContract) ConfirmAppointment(ctx contractapi.TransactionContextInterface, appointmentID string) (*types.Appointment, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if callerID != appt.DoctorID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the assigned doctor or admin may confirm")
	}
	if appt.Status != types.AppointmentStatusScheduled {
		return nil, ccError(types.ErrCodeStateConflict, "appointment %s is %s, not SCHEDULED", appointmentID, appt.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}
	appt.Status = types.AppointmentStatusConfirmed
	appt.UpdatedAt = now

	if err := s.storeAppointment(ctx, appt, callerID, role, types.AuditActionUpdate, "confirmed"); err != nil {
		return nil, err
	}
	return appt, nil
}

// CompleteAppointment moves CONFIRMED to COMPLETED. When the completion
// references a record, access to that record is checked first so a doctor
// cannot attach a record they hold no consent for.
func (s *SmartContract) CompleteAppointment(ctx contractapi.TransactionContextInterface, appointmentID, recordID string) (*types.Appointment, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if callerID != appt.DoctorID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the assigned doctor or admin may complete")
	}
	if appt.Status != types.AppointmentStatusConfirmed {
		return nil, ccError(types.ErrCodeStateConflict, "appointment %s is %s, not CONFIRMED", appointmentID, appt.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	if recordID != "" {
		var record types.MedicalRecord
		found, err := s.getJSON(ctx, recordKeyPrefix+recordID, &record)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ccError(types.ErrCodeNotFound, "record %s does not exist", recordID)
		}
		allowed, why, err := s.evaluateAccess(ctx, record.PatientID, callerID, role, record.RecordType, now)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ccError(types.ErrCodeAccessDenied, "cannot reference record %s: %s", recordID, why)
		}
	}

	appt.Status = types.AppointmentStatusCompleted
	appt.UpdatedAt = now

	reason := "completed"
	if recordID != "" {
		reason = "completed with record " + recordID
	}
	if err := s.storeAppointment(ctx, appt, callerID, role, types.AuditActionUpdate, reason); err != nil {
		return nil, err
	}
	return appt, nil
}

// CancelAppointment moves SCHEDULED or CONFIRMED to CANCELLED
func (s *SmartContract) CancelAppointment(ctx contractapi.TransactionContextInterface, appointmentID, reason string) (*types.Appointment, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appointmentParty(appt, callerID) && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only a participant or admin may cancel")
	}
	if appt.Status != types.AppointmentStatusScheduled && appt.Status != types.AppointmentStatusConfirmed {
		return nil, ccError(types.ErrCodeStateConflict, "appointment %s is %s and cannot be cancelled", appointmentID, appt.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}
	appt.Status = types.AppointmentStatusCancelled
	appt.UpdatedAt = now

	if err := s.storeAppointment(ctx, appt, callerID, role, types.AuditActionUpdate, "cancelled: "+reason); err != nil {
		return nil, err
	}
	return appt, nil
}

// RescheduleAppointment moves SCHEDULED or CONFIRMED back to SCHEDULED with a
// new time. Completed and cancelled appointments are terminal.
func (s *SmartContract) RescheduleAppointment(ctx contractapi.TransactionContextInterface, appointmentID, scheduledFor string) (*types.Appointment, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appointmentParty(appt, callerID) && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only a participant or admin may reschedule")
	}
	if appt.Status != types.AppointmentStatusScheduled && appt.Status != types.AppointmentStatusConfirmed {
		return nil, ccError(types.ErrCodeStateConflict, "appointment %s is %s and cannot be rescheduled", appointmentID, appt.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	when, err := parseRFC3339("scheduled_for", scheduledFor)
	if err != nil {
		return nil, err
	}
	if !when.After(now) {
		return nil, ccError(types.ErrCodeInvalidRange, "scheduled_for must be after the transaction timestamp")
	}

	appt.Status = types.AppointmentStatusScheduled
	appt.ScheduledFor = when
	appt.UpdatedAt = now

	if err := s.storeAppointment(ctx, appt, callerID, role, types.AuditActionUpdate, "rescheduled"); err != nil {
		return nil, err
	}
	return appt, nil
}

// GetAppointment returns an appointment to its participants or admin
func (s *SmartContract) GetAppointment(ctx contractapi.TransactionContextInterface, appointmentID string) (*types.Appointment, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appointmentParty(appt, callerID) && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read appointment %s", callerID, appointmentID)
	}
	return appt, nil
}
