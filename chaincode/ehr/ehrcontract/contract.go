package ehrcontract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// SmartContract implements the deterministic state-transition logic for the
// consent-gated record ledger. Every function is a pure function of
// (world state, transaction input, caller identity) and must produce the same
// result on every endorsing peer.
type SmartContract struct {
	contractapi.Contract
}

// World-state key namespaces. Callers must never depend on this layout
// directly; all access goes through named transition and query functions.
const (
	patientKeyPrefix      = "patient:"
	recordKeyPrefix       = "record:"
	consentKeyPrefix      = "consent:"
	appointmentKeyPrefix  = "appt:"
	prescriptionKeyPrefix = "rx:"
	auditKeyPrefix        = "audit:"

	patientRecordIndex  = "patient~record"
	patientConsentIndex = "patient~consent"
	patientAuditIndex   = "patient~audit"
	subjectAuditIndex   = "subject~audit"

	roleAttribute = "role"

	auditEventName = "AuditEntryAppended"
)

// ccError formats a typed failure the gateway can translate back into the
// error taxonomy. The code prefix is the contract's wire format for failures.
func ccError(code, format string, a ...interface{}) error {
	return fmt.Errorf("%s: %s", code, fmt.Sprintf(format, a...))
}

// caller resolves the transaction submitter's identity and role from the
// client certificate. The role is carried as a Fabric CA attribute; a caller
// without a recognized role is denied outright.
func (s *SmartContract) caller(ctx contractapi.TransactionContextInterface) (string, types.Role, error) {
	id := ctx.GetClientIdentity()

	cert, err := id.GetX509Certificate()
	if err != nil {
		return "", "", ccError(types.ErrCodeAccessDenied, "failed to read client certificate: %v", err)
	}
	callerID := cert.Subject.CommonName
	if callerID == "" {
		return "", "", ccError(types.ErrCodeAccessDenied, "client certificate carries no subject common name")
	}

	roleValue, found, err := id.GetAttributeValue(roleAttribute)
	if err != nil {
		return "", "", ccError(types.ErrCodeAccessDenied, "failed to read role attribute: %v", err)
	}
	if !found {
		return "", "", ccError(types.ErrCodeAccessDenied, "caller %s carries no role attribute", callerID)
	}

	role := types.Role(roleValue)
	if !types.IsValidRole(role) {
		return "", "", ccError(types.ErrCodeAccessDenied, "caller %s carries unrecognized role %q", callerID, roleValue)
	}

	return callerID, role, nil
}

// txTime returns the transaction timestamp supplied with the proposal. Peer
// wall clocks are never consulted so every replica computes identical results.
func (s *SmartContract) txTime(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, ccError(types.ErrCodeInternalError, "failed to read transaction timestamp: %v", err)
	}
	return ts.AsTime().UTC(), nil
}

// getJSON loads and unmarshals a world-state value. The boolean reports
// whether the key exists.
func (s *SmartContract) getJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) (bool, error) {
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, ccError(types.ErrCodeInternalError, "failed to read %s from world state: %v", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, ccError(types.ErrCodeInternalError, "failed to decode %s: %v", key, err)
	}
	return true, nil
}

// putJSON marshals and writes a world-state value
func (s *SmartContract) putJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ccError(types.ErrCodeInternalError, "failed to encode %s: %v", key, err)
	}
	if err := ctx.GetStub().PutState(key, data); err != nil {
		return ccError(types.ErrCodeInternalError, "failed to write %s to world state: %v", key, err)
	}
	return nil
}

// putIndex writes a composite index key pointing at an entity
func (s *SmartContract) putIndex(ctx contractapi.TransactionContextInterface, objectType string, attributes ...string) error {
	key, err := ctx.GetStub().CreateCompositeKey(objectType, attributes)
	if err != nil {
		return ccError(types.ErrCodeInternalError, "failed to create %s index key: %v", objectType, err)
	}
	if err := ctx.GetStub().PutState(key, []byte{0x00}); err != nil {
		return ccError(types.ErrCodeInternalError, "failed to write %s index: %v", objectType, err)
	}
	return nil
}

// indexedIDs iterates a composite index and returns the trailing attribute of
// every matching key.
func (s *SmartContract) indexedIDs(ctx contractapi.TransactionContextInterface, objectType string, attributes ...string) ([]string, error) {
	iter, err := ctx.GetStub().GetStateByPartialCompositeKey(objectType, attributes)
	if err != nil {
		return nil, ccError(types.ErrCodeInternalError, "failed to scan %s index: %v", objectType, err)
	}
	defer iter.Close()

	var ids []string
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, ccError(types.ErrCodeInternalError, "failed to advance %s index: %v", objectType, err)
		}
		_, parts, err := ctx.GetStub().SplitCompositeKey(kv.Key)
		if err != nil {
			return nil, ccError(types.ErrCodeInternalError, "failed to split %s index key: %v", objectType, err)
		}
		if len(parts) > 0 {
			ids = append(ids, parts[len(parts)-1])
		}
	}
	return ids, nil
}

// appendAudit writes an immutable audit entry keyed by the transaction id and
// emits it as the transaction's chaincode event. One state-changing operation
// produces exactly one entry; entries are never updated or deleted.
func (s *SmartContract) appendAudit(ctx contractapi.TransactionContextInterface, entry *types.AccessAuditEntry) error {
	stub := ctx.GetStub()

	entry.TxID = stub.GetTxID()
	entry.EntryID = "audit_" + entry.TxID
	if entry.Timestamp.IsZero() {
		now, err := s.txTime(ctx)
		if err != nil {
			return err
		}
		entry.Timestamp = now
	}

	if err := s.putJSON(ctx, auditKeyPrefix+entry.EntryID, entry); err != nil {
		return err
	}

	if entry.PatientID != "" {
		if err := s.putIndex(ctx, patientAuditIndex, entry.PatientID, entry.EntryID); err != nil {
			return err
		}
	}
	if entry.SubjectID != "" {
		if err := s.putIndex(ctx, subjectAuditIndex, entry.SubjectID, entry.EntryID); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return ccError(types.ErrCodeInternalError, "failed to encode audit event: %v", err)
	}
	if err := stub.SetEvent(auditEventName, payload); err != nil {
		return ccError(types.ErrCodeInternalError, "failed to emit audit event: %v", err)
	}

	return nil
}

// evaluateAccess applies the consent rules for accessor against a patient's
// records of the given type at the given instant. ADMIN bypass is applied only
// when the accessor is the caller whose role we verified from the certificate.
func (s *SmartContract) evaluateAccess(ctx contractapi.TransactionContextInterface, patientID, accessorID string, accessorRole types.Role, recordType string, at time.Time) (bool, string, error) {
	if accessorID == patientID {
		return true, "patient self-access", nil
	}
	if accessorRole == types.RoleAdmin {
		return true, "admin bypass", nil
	}

	consentIDs, err := s.indexedIDs(ctx, patientConsentIndex, patientID)
	if err != nil {
		return false, "", err
	}

	for _, consentID := range consentIDs {
		var consent types.Consent
		found, err := s.getJSON(ctx, consentKeyPrefix+consentID, &consent)
		if err != nil {
			return false, "", err
		}
		if !found {
			continue
		}
		if consent.GranteeID != accessorID {
			continue
		}
		if consent.EffectiveStatus(at) != types.ConsentStatusActive {
			continue
		}
		if at.Before(consent.ValidFrom) {
			continue
		}
		if consent.Covers(recordType) {
			return true, "consent " + consent.ConsentID, nil
		}
	}

	return false, fmt.Sprintf("no active consent covering record type %q", recordType), nil
}

// parseScope splits a comma-separated scope list, normalizing whitespace
func parseScope(scopeCSV string) []string {
	var scope []string
	for _, s := range strings.Split(scopeCSV, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scope = append(scope, s)
		}
	}
	return scope
}

// parseRFC3339 parses a timestamp argument, rejecting malformed input
func parseRFC3339(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, ccError(types.ErrCodeInvalidInput, "%s must be RFC3339, got %q", field, value)
	}
	return t.UTC(), nil
}

// InitLedger records chaincode initialization in the audit trail
func (s *SmartContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if role != types.RoleAdmin {
		return ccError(types.ErrCodeAccessDenied, "only admin may initialize the ledger")
	}

	return s.appendAudit(ctx, &types.AccessAuditEntry{
		AccessorID:   callerID,
		AccessorRole: role,
		SubjectID:    "ehr_chaincode",
		SubjectType:  "system",
		Action:       types.AuditActionCreate,
		Outcome:      types.AuditOutcomeAllowed,
		Reason:       "ledger initialized",
	})
}
