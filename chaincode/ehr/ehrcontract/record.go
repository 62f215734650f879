package ehrcontract

import (
	"encoding/json"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// CreateRecord creates a new medical record anchored to an off-ledger
// encrypted blob. The record id is caller-supplied and globally unique:
// a duplicate id always fails AlreadyExists without mutating state, which is
// what makes client retries after a timeout safe.
func (s *SmartContract) CreateRecord(ctx contractapi.TransactionContextInterface, recordID, patientID, recordType, contentPointer, metadataJSON string, confidential bool, tagsCSV string) (*types.MedicalRecord, error) {
	if recordID == "" || patientID == "" || recordType == "" || contentPointer == "" {
		return nil, ccError(types.ErrCodeInvalidInput, "record id, patient id, record type and content pointer are required")
	}

	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && !(role == types.RolePatient && callerID == patientID) {
		return nil, ccError(types.ErrCodeAccessDenied, "records may be created by a doctor or by the patient themself")
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

	var existing types.MedicalRecord
	found, err = s.getJSON(ctx, recordKeyPrefix+recordID, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ccError(types.ErrCodeAlreadyExists, "record %s already exists", recordID)
	}

	metadata := map[string]string{}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, ccError(types.ErrCodeInvalidInput, "metadata must be a JSON string map: %v", err)
		}
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	record := &types.MedicalRecord{
		RecordID:       recordID,
		PatientID:      patientID,
		AuthorID:       callerID,
		RecordType:     recordType,
		ContentPointer: contentPointer,
		Metadata:       metadata,
		Confidential:   confidential,
		Tags:           parseScope(tagsCSV),
		Status:         types.RecordStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.putJSON(ctx, recordKeyPrefix+recordID, record); err != nil {
		return nil, err
	}
	if err := s.putIndex(ctx, patientRecordIndex, patientID, recordID); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    patientID,
		SubjectID:    recordID,
		SubjectType:  "record",
		Action:       types.AuditActionCreate,
		Outcome:      types.AuditOutcomeAllowed,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return record, nil
}

// ReadRecord returns a medical record after checking consent state. A denial
// is NOT a chaincode error: the envelope reports it inside a successful
// transaction so the DENIED audit entry survives commit on every peer.
func (s *SmartContract) ReadRecord(ctx contractapi.TransactionContextInterface, recordID, reason string) (*types.RecordEnvelope, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var record types.MedicalRecord
	found, err := s.getJSON(ctx, recordKeyPrefix+recordID, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "record %s does not exist", recordID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	// Tombstoned records stay readable for compliance review only.
	if record.Status == types.RecordStatusTombstoned && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeNotFound, "record %s does not exist", recordID)
	}

	allowed, why, err := s.evaluateAccess(ctx, record.PatientID, callerID, role, record.RecordType, now)
	if err != nil {
		return nil, err
	}

	entry := &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    record.PatientID,
		SubjectID:    recordID,
		SubjectType:  "record",
		Action:       types.AuditActionRead,
		Timestamp:    now,
	}

	if !allowed {
		entry.Outcome = types.AuditOutcomeDenied
		entry.Reason = why
		if err := s.appendAudit(ctx, entry); err != nil {
			return nil, err
		}
		return &types.RecordEnvelope{
			Allowed: false,
			Code:    types.ErrCodeAccessDenied,
			Reason:  why,
		}, nil
	}

	entry.Outcome = types.AuditOutcomeAllowed
	if reason != "" {
		entry.Reason = reason
	} else {
		entry.Reason = why
	}
	if err := s.appendAudit(ctx, entry); err != nil {
		return nil, err
	}

	return &types.RecordEnvelope{Allowed: true, Record: &record}, nil
}

// UpdateRecordMetadata merges a patch into the record metadata and optionally
// repoints the content hash. CreatedAt is never touched; this is the only
// transition allowed to change the content pointer.
func (s *SmartContract) UpdateRecordMetadata(ctx contractapi.TransactionContextInterface, recordID, patchJSON, contentPointer string) (*types.MedicalRecord, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only doctor or admin may update record metadata")
	}

	var record types.MedicalRecord
	found, err := s.getJSON(ctx, recordKeyPrefix+recordID, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.Status == types.RecordStatusTombstoned {
		return nil, ccError(types.ErrCodeNotFound, "record %s does not exist", recordID)
	}

	patch := map[string]string{}
	if patchJSON != "" {
		if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
			return nil, ccError(types.ErrCodeInvalidInput, "patch must be a JSON string map: %v", err)
		}
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	if record.Metadata == nil {
		record.Metadata = map[string]string{}
	}
	for k, v := range patch {
		record.Metadata[k] = v
	}
	if contentPointer != "" {
		record.ContentPointer = contentPointer
	}
	record.UpdatedAt = now

	if err := s.putJSON(ctx, recordKeyPrefix+recordID, &record); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    record.PatientID,
		SubjectID:    recordID,
		SubjectType:  "record",
		Action:       types.AuditActionUpdate,
		Outcome:      types.AuditOutcomeAllowed,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// DeleteRecord tombstones a record. The record is never erased: it drops out
// of patient-facing queries but remains readable by compliance roles and its
// audit trail stays intact.
func (s *SmartContract) DeleteRecord(ctx contractapi.TransactionContextInterface, recordID, reason string) (*types.MedicalRecord, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleDoctor && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only doctor or admin may delete records")
	}

	var record types.MedicalRecord
	found, err := s.getJSON(ctx, recordKeyPrefix+recordID, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "record %s does not exist", recordID)
	}
	if record.Status == types.RecordStatusTombstoned {
		return nil, ccError(types.ErrCodeStateConflict, "record %s is already tombstoned", recordID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	record.Status = types.RecordStatusTombstoned
	record.UpdatedAt = now

	if err := s.putJSON(ctx, recordKeyPrefix+recordID, &record); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    record.PatientID,
		SubjectID:    recordID,
		SubjectType:  "record",
		Action:       types.AuditActionUpdate,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       "tombstone: " + reason,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// ListRecordsByPatient returns the patient's records visible to the caller.
// Grantees see only record types their active consents cover; tombstoned
// records are excluded for everyone but admin.
func (s *SmartContract) ListRecordsByPatient(ctx contractapi.TransactionContextInterface, patientID string) ([]*types.MedicalRecord, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	recordIDs, err := s.indexedIDs(ctx, patientRecordIndex, patientID)
	if err != nil {
		return nil, err
	}

	records := []*types.MedicalRecord{}
	for _, recordID := range recordIDs {
		var record types.MedicalRecord
		found, err := s.getJSON(ctx, recordKeyPrefix+recordID, &record)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if record.Status == types.RecordStatusTombstoned && role != types.RoleAdmin {
			continue
		}
		allowed, _, err := s.evaluateAccess(ctx, patientID, callerID, role, record.RecordType, now)
		if err != nil {
			return nil, err
		}
		if allowed {
			records = append(records, &record)
		}
	}

	return records, nil
}

// CheckAccess is the pure consent check used by ReadRecord and exposed for
// other transitions. It never writes state; audit entries for admin bypass
// are produced by the transitions that act on the decision.
func (s *SmartContract) CheckAccess(ctx contractapi.TransactionContextInterface, patientID, accessorID, recordType string) (*types.AccessDecision, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	// The certificate only vouches for the caller's own role; an accessor
	// other than the caller gets no role-based bypass.
	accessorRole := types.Role("")
	if accessorID == callerID {
		accessorRole = role
	}

	allowed, why, err := s.evaluateAccess(ctx, patientID, accessorID, accessorRole, recordType, now)
	if err != nil {
		return nil, err
	}

	return &types.AccessDecision{Allowed: allowed, Reason: why}, nil
}
