package ehrcontract

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// CreateConsent grants a grantee time-bounded access to a patient's records.
// Only the patient themself, or an admin acting on their behalf, may grant.
// validFrom may be empty, meaning the transaction timestamp.
func (s *SmartContract) CreateConsent(ctx contractapi.TransactionContextInterface, consentID, patientID, granteeID, scopeCSV, purpose, validFrom, validUntil string) (*types.Consent, error) {
	if consentID == "" || patientID == "" || granteeID == "" {
		return nil, ccError(types.ErrCodeInvalidInput, "consent id, patient id and grantee id are required")
	}
	if granteeID == patientID {
		return nil, ccError(types.ErrCodeInvalidInput, "a patient cannot grant consent to themself")
	}

	scope := parseScope(scopeCSV)
	if len(scope) == 0 {
		return nil, ccError(types.ErrCodeInvalidInput, "scope must name at least one record type or %q", types.ScopeAll)
	}

	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if callerID != patientID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the patient or admin may grant consent")
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	until, err := parseRFC3339("valid_until", validUntil)
	if err != nil {
		return nil, err
	}
	if !until.After(now) {
		return nil, ccError(types.ErrCodeInvalidRange, "valid_until %s is not after the transaction timestamp %s",
			until.Format("2006-01-02T15:04:05Z07:00"), now.Format("2006-01-02T15:04:05Z07:00"))
	}

	from := now
	if validFrom != "" {
		if from, err = parseRFC3339("valid_from", validFrom); err != nil {
			return nil, err
		}
		if !until.After(from) {
			return nil, ccError(types.ErrCodeInvalidRange, "valid_until must be after valid_from")
		}
	}

	var existing types.Consent
	found, err := s.getJSON(ctx, consentKeyPrefix+consentID, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ccError(types.ErrCodeAlreadyExists, "consent %s already exists", consentID)
	}

	consent := &types.Consent{
		ConsentID:  consentID,
		PatientID:  patientID,
		GranteeID:  granteeID,
		Scope:      scope,
		Purpose:    purpose,
		ValidFrom:  from,
		ValidUntil: until,
		Status:     types.ConsentStatusActive,
		CreatedAt:  now,
	}

	if err := s.putJSON(ctx, consentKeyPrefix+consentID, consent); err != nil {
		return nil, err
	}
	if err := s.putIndex(ctx, patientConsentIndex, patientID, consentID); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    patientID,
		SubjectID:    consentID,
		SubjectType:  "consent",
		Action:       types.AuditActionCreate,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       purpose,
		Timestamp:    now,
	}); err != nil {
		return nil, err
	}

	return consent, nil
}

// RevokeConsent revokes an active consent. Revoking a consent that has
// already lapsed past validUntil is a harmless no-op: the call still succeeds
// and the explicit revoke is recorded for audit clarity, but the terminal
// EXPIRED status is preserved. Revoking an already-revoked consent is an
// error.
func (s *SmartContract) RevokeConsent(ctx contractapi.TransactionContextInterface, consentID, reason string) (*types.Consent, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var consent types.Consent
	found, err := s.getJSON(ctx, consentKeyPrefix+consentID, &consent)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "consent %s does not exist", consentID)
	}

	if callerID != consent.PatientID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the granting patient or admin may revoke consent")
	}

	if consent.Status == types.ConsentStatusRevoked {
		return nil, ccError(types.ErrCodeAlreadyRevoked, "consent %s is already revoked", consentID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	entry := &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		PatientID:    consent.PatientID,
		SubjectID:    consentID,
		SubjectType:  "consent",
		Action:       types.AuditActionRevoke,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       reason,
		Timestamp:    now,
	}

	if consent.EffectiveStatus(now) == types.ConsentStatusExpired {
		// Lazy expiry materialized on first touch after validUntil.
		consent.Status = types.ConsentStatusExpired
		entry.Reason = "revoke of expired consent recorded as no-op"
		if err := s.putJSON(ctx, consentKeyPrefix+consentID, &consent); err != nil {
			return nil, err
		}
		if err := s.appendAudit(ctx, entry); err != nil {
			return nil, err
		}
		return &consent, nil
	}

	consent.Status = types.ConsentStatusRevoked
	consent.RevokedAt = &now
	consent.RevokeReason = reason

	if err := s.putJSON(ctx, consentKeyPrefix+consentID, &consent); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, entry); err != nil {
		return nil, err
	}

	return &consent, nil
}

// GetConsent returns a consent with its status evaluated lazily against the
// transaction timestamp. The stored entity is not rewritten on read.
func (s *SmartContract) GetConsent(ctx contractapi.TransactionContextInterface, consentID string) (*types.Consent, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var consent types.Consent
	found, err := s.getJSON(ctx, consentKeyPrefix+consentID, &consent)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "consent %s does not exist", consentID)
	}

	if callerID != consent.PatientID && callerID != consent.GranteeID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read consent %s", callerID, consentID)
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}
	consent.Status = consent.EffectiveStatus(now)

	return &consent, nil
}

// ListConsentsByPatient returns every consent granted by the patient, with
// lazily evaluated statuses.
func (s *SmartContract) ListConsentsByPatient(ctx contractapi.TransactionContextInterface, patientID string) ([]*types.Consent, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if callerID != patientID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only the patient or admin may list consents")
	}

	now, err := s.txTime(ctx)
	if err != nil {
		return nil, err
	}

	consentIDs, err := s.indexedIDs(ctx, patientConsentIndex, patientID)
	if err != nil {
		return nil, err
	}

	consents := []*types.Consent{}
	for _, consentID := range consentIDs {
		var consent types.Consent
		found, err := s.getJSON(ctx, consentKeyPrefix+consentID, &consent)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		consent.Status = consent.EffectiveStatus(now)
		consents = append(consents, &consent)
	}

	return consents, nil
}
