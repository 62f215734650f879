package ehrcontract

import (
	"encoding/json"
	"sort"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// GetAuditEntry returns a single audit entry. Admins may read any entry; a
// patient may read entries about them; an accessor may read their own trail.
func (s *SmartContract) GetAuditEntry(ctx contractapi.TransactionContextInterface, entryID string) (*types.AccessAuditEntry, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var entry types.AccessAuditEntry
	found, err := s.getJSON(ctx, auditKeyPrefix+entryID, &entry)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ccError(types.ErrCodeNotFound, "audit entry %s does not exist", entryID)
	}
	if role != types.RoleAdmin && callerID != entry.PatientID && callerID != entry.AccessorID {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read audit entry %s", callerID, entryID)
	}
	return &entry, nil
}

// QueryAuditBySubject returns the audit trail of a single ledger object, for
// example one medical record. Admins see any trail; a record's patient sees
// their own.
func (s *SmartContract) QueryAuditBySubject(ctx contractapi.TransactionContextInterface, subjectID string) ([]*types.AccessAuditEntry, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.auditEntriesByIndex(ctx, subjectAuditIndex, subjectID)
	if err != nil {
		return nil, err
	}
	if role != types.RoleAdmin {
		for _, e := range entries {
			if e.PatientID != callerID {
				return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read the audit trail of %s", callerID, subjectID)
			}
		}
	}
	return entries, nil
}

// QueryAuditByPatient returns every audit entry touching a patient's data.
// Patients see their own trail; otherwise admin only.
func (s *SmartContract) QueryAuditByPatient(ctx contractapi.TransactionContextInterface, patientID string) ([]*types.AccessAuditEntry, error) {
	callerID, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if callerID != patientID && role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "caller %s may not read patient %s audit trail", callerID, patientID)
	}
	return s.auditEntriesByIndex(ctx, patientAuditIndex, patientID)
}

// QueryAuditByRange scans all audit entries and keeps those whose timestamp
// falls inside [from, until). Admin only.
func (s *SmartContract) QueryAuditByRange(ctx contractapi.TransactionContextInterface, from, until string) ([]*types.AccessAuditEntry, error) {
	_, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if role != types.RoleAdmin {
		return nil, ccError(types.ErrCodeAccessDenied, "only admins may query audit entries by time range")
	}

	start, err := parseRFC3339("from", from)
	if err != nil {
		return nil, err
	}
	end, err := parseRFC3339("until", until)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, ccError(types.ErrCodeInvalidRange, "until must be after from")
	}

	iter, err := ctx.GetStub().GetStateByRange(auditKeyPrefix, auditKeyPrefix+"ÿ")
	if err != nil {
		return nil, ccError(types.ErrCodeInternalError, "range scan failed: %v", err)
	}
	defer iter.Close()

	var entries []*types.AccessAuditEntry
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, ccError(types.ErrCodeInternalError, "range scan failed: %v", err)
		}
		var entry types.AccessAuditEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return nil, ccError(types.ErrCodeInternalError, "corrupt audit entry at %s: %v", kv.Key, err)
		}
		if entry.Timestamp.Before(start) || !entry.Timestamp.Before(end) {
			continue
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *SmartContract) auditEntriesByIndex(ctx contractapi.TransactionContextInterface, index, key string) ([]*types.AccessAuditEntry, error) {
	entryIDs, err := s.indexedIDs(ctx, index, key)
	if err != nil {
		return nil, err
	}

	entries := make([]*types.AccessAuditEntry, 0, len(entryIDs))
	for _, entryID := range entryIDs {
		var entry types.AccessAuditEntry
		found, err := s.getJSON(ctx, auditKeyPrefix+entryID, &entry)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
