package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// Evaluator is the read-only gateway surface the audit client needs
type Evaluator interface {
	Evaluate(ctx context.Context, callerID, function string, args ...string) ([]byte, error)
}

// Client queries the committed audit trail. All queries are read-only
// evaluations; the trail itself is written by the chaincode as a side effect
// of every transition and every read attempt.
type Client struct {
	gw  Evaluator
	log *logger.Logger
}

// NewClient creates an audit trail client over the given gateway
func NewClient(gw Evaluator, log *logger.Logger) *Client {
	return &Client{gw: gw, log: log}
}

// GetEntry reads a single audit entry by id
func (c *Client) GetEntry(ctx context.Context, callerID, entryID string) (*types.AccessAuditEntry, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "GetAuditEntry", entryID)
	if err != nil {
		return nil, err
	}
	var entry types.AccessAuditEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, types.NewInternalError("failed to parse audit entry", err)
	}
	return &entry, nil
}

// TrailBySubject returns the audit trail of a single ledger object in
// timestamp order
func (c *Client) TrailBySubject(ctx context.Context, callerID, subjectID string) ([]*types.AccessAuditEntry, error) {
	return c.query(ctx, callerID, "QueryAuditBySubject", subjectID)
}

// TrailByPatient returns every audit entry touching a patient's data
func (c *Client) TrailByPatient(ctx context.Context, callerID, patientID string) ([]*types.AccessAuditEntry, error) {
	return c.query(ctx, callerID, "QueryAuditByPatient", patientID)
}

// TrailByRange returns all audit entries with from <= timestamp < until.
// Admin only.
func (c *Client) TrailByRange(ctx context.Context, callerID string, from, until time.Time) ([]*types.AccessAuditEntry, error) {
	return c.query(ctx, callerID, "QueryAuditByRange",
		from.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
}

func (c *Client) query(ctx context.Context, callerID, function string, args ...string) ([]*types.AccessAuditEntry, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, function, args...)
	if err != nil {
		return nil, err
	}
	var entries []*types.AccessAuditEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, types.NewInternalError("failed to parse audit trail", err)
	}
	return entries, nil
}
