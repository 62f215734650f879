package ehrcontract

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// RegisterPatient creates a new on-ledger patient. Only the opaque identifier,
// a display name, and an integrity hash of the off-ledger profile are stored.
// The identifier is immutable once created.
func (s *SmartContract) RegisterPatient(ctx contractapi.TransactionContextInterface, patientID, displayName, profileHash string) (*types.Patient, error) {
	if patientID == "" {
		return nil, ccError(types.ErrCodeInvalidInput, "patient id is required")
	}

	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only doctor or admin may register patients")
	}

	var existing types.Patient
	found, err := s.getJSON(ctx, patientKeyPrefix+patientID, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ccError(types.ErrCodeAlreadyExists, "patient %s already exists", patientID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	patient := &types.Patient{
		PatientID:   patientID,
		DisplayName: displayName,
		ProfileHash: profileHash,
		Active:      true,
		CreatedBy:   callerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.putJSON(ctx, patientKeyPrefix+patientID, patient); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    patientID,
		SubjectID:    patientID,
		SubjectType:  "patient",
		Action:       types.AuditActionCreate,
		Outcome:      types.AuditOutcomeAllowed,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return patient, nil
}

// UpdatePatientProfile replaces the display name and profile hash. The patient
// identifier never changes. Patients may update their own profile.
func (s *SmartContract) UpdatePatientProfile(ctx contractapi.TransactionContextInterface, patientID, displayName, profileHash string) (*types.Patient, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin && callerID != patientID {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not update patient %s", callerID, patientID)
	}

	var patient types.Patient
	found, err := s.getJSON(ctx, patientKeyPrefix+patientID, &patient)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "patient %s does not exist", patientID)
	}
	if !patient.Active {
		return nil, ccError(types.ErrCodeStateConflict, "patient %s is inactive", patientID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	patient.DisplayName = displayName
	patient.ProfileHash = profileHash
	patient.UpdatedAt = now

	if err := s.putJSON(ctx, patientKeyPrefix+patientID, &patient); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    patientID,
		SubjectID:    patientID,
		SubjectType:  "patient",
		Action:       types.AuditActionUpdate,
		Outcome:      types.AuditOutcomeAllowed,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return &patient, nil
}

// DeactivatePatient marks a patient inactive. Patients are never physically
// deleted; their records and audit trail remain intact.
func (s *SmartContract) DeactivatePatient(ctx contractapi.TransactionContextInterface, patientID, reason string) (*types.Patient, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only admin may deactivate patients")
	}

	var patient types.Patient
	found, err := s.getJSON(ctx, patientKeyPrefix+patientID, &patient)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "patient %s does not exist", patientID)
	}
	if !patient.Active {
		return nil, ccError(types.ErrCodeStateConflict, "patient %s is already inactive", patientID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	patient.Active = false
	patient.UpdatedAt = now

	if err := s.putJSON(ctx, patientKeyPrefix+patientID, &patient); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    patientID,
		SubjectID:    patientID,
		SubjectType:  "patient",
		Action:       types.AuditActionUpdate,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       reason,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return &patient, nil
}

// GetPatient returns the on-ledger patient entity
func (s *SmartContract) GetPatient(ctx contractapi.TransactionContextInterface, patientID string) (*types.Patient, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin && callerID != patientID {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read patient %s", callerID, patientID)
	}

	var patient types.Patient
	found, err := s.getJSON(ctx, patientKeyPrefix+patientID, &patient)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "patient %s does not exist", patientID)
	}

	return &patient, nil
}
