package ehrcontract

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

func (s *SmartContract) loadPrescription(ctx contractapi.TransactionContextInterface, prescriptionID string) (*types.Prescription, error) {
	var rx types.Prescription
	found, err := s.getJSON(ctx, prescriptionKeyPrefix+prescriptionID, &rx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "prescription %s does not exist", prescriptionID)
	}
	return &rx, nil
}

func (s *SmartContract) storePrescription(ctx contractapi.TransactionContextInterface, rx *types.Prescription, callerID string, role types.Role, action types.AuditAction, reason string) error {
	if err := s.putJSON(ctx, prescriptionKeyPrefix+rx.PrescriptionID, rx); err != nil {
		return err
	}
	return s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    rx.PatientID,
		SubjectID:    rx.PrescriptionID,
		SubjectType:  "prescription",
		Action:       action,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       reason,
		Timestamp:    rx.UpdatedAt,
	})
}

// CreatePrescription issues an ACTIVE prescription. Only doctors prescribe,
// and the issuing doctor is always the caller.
func (s *SmartContract) CreatePrescription(ctx contractapi.TransactionContextInterface, prescriptionID, patientID, medication, dosage string) (*types.Prescription, error) {
	if prescriptionID == "" || patientID == "" || medication == "" {
		return nil, ccError(types.ErrCodeInvalidInput, "prescription id, patient id and medication are required")
	}

	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor {
		return nil, ccError(types.ErrCodeAccessDenied, "only doctors may create prescriptions")
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
		return nil, ccError(types.ErrCodeStateConflict, "patient %s is deactivated", patientID)
	}

	var existing types.Prescription
	found, err = s.getJSON(ctx, prescriptionKeyPrefix+prescriptionID, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ccError(types.ErrCodeAlreadyExists, "prescription %s already exists", prescriptionID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	rx := &types.Prescription{
		PrescriptionID: prescriptionID,
		PatientID:      patientID,
		DoctorID:       callerID,
		Medication:     medication,
		Dosage:         dosage,
		Status:         types.PrescriptionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.storePrescription(ctx, rx, callerID, role, types.AuditActionCreate, ""); err != nil {
		return nil, err
	}
	return rx, nil
}

// DispensePrescription moves ACTIVE to DISPENSED and stamps the dispense time
func (s *SmartContract) DispensePrescription(ctx contractapi.TransactionContextInterface, prescriptionID string) (*types.Prescription, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only doctors or admins may dispense")
	}

	rx, err := s.loadPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if rx.Status != types.PrescriptionStatusActive {
		return nil, ccError(types.ErrCodeStateConflict, "prescription %s is %s, not ACTIVE", prescriptionID, rx.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}
	rx.Status = types.PrescriptionStatusDispensed
	rx.DispensedAt = &now
	rx.UpdatedAt = now

	if err := s.storePrescription(ctx, rx, callerID, role, types.AuditActionUpdate, "dispensed"); err != nil {
		return nil, err
	}
	return rx, nil
}

// RevokePrescription moves ACTIVE to REVOKED. Only the authoring doctor or an
// admin may revoke; dispensed prescriptions are terminal.
func (s *SmartContract) RevokePrescription(ctx contractapi.TransactionContextInterface, prescriptionID, reason string) (*types.Prescription, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	rx, err := s.loadPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if callerID != rx.DoctorID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the issuing doctor or admin may revoke")
	}
	if rx.Status != types.PrescriptionStatusActive {
		return nil, ccError(types.ErrCodeStateConflict, "prescription %s is %s, not ACTIVE", prescriptionID, rx.Status)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}
	rx.Status = types.PrescriptionStatusRevoked
	rx.UpdatedAt = now

	if err := s.storePrescription(ctx, rx, callerID, role, types.AuditActionRevoke, reason); err != nil {
		return nil, err
	}
	return rx, nil
}

// GetPrescription returns a prescription to the patient, the issuing doctor,
// or an admin
func (s *SmartContract) GetPrescription(ctx contractapi.TransactionContextInterface, prescriptionID string) (*types.Prescription, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	rx, err := s.loadPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if callerID != rx.PatientID && callerID != rx.DoctorID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read prescription %s", callerID, prescriptionID)
	}
	return rx, nil
}
