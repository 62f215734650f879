package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/deveshyaara/Healthlink-RPC-sub001/internal/fabric"
	"github.com/deveshyaara/Healthlink-RPC-sub001/internal/identity"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/config"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/metrics"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// Endorser simulates transaction proposals
type Endorser interface {
	Name() string
	Endorse(ctx context.Context, prop *fabric.Proposal) (*fabric.Endorsement, error)
	Evaluate(ctx context.Context, prop *fabric.Proposal) (*fabric.Endorsement, error)
}

// Committer orders endorsed transactions and reports their commit verdict
type Committer interface {
	Submit(ctx context.Context, tx *fabric.Transaction) (fabric.CommitStatus, error)
}

// Gateway is the single entry point for ledger interactions. Submit runs the
// full endorse-order-commit flow; Evaluate answers reads from one peer's
// committed state without writing anything.
type Gateway struct {
	cfg      config.GatewayConfig
	registry *identity.Registry
	peers    []Endorser
	orderer  Committer
	log      *logger.Logger
}

// New creates a gateway over the given peers and ordering service
func New(cfg config.GatewayConfig, registry *identity.Registry, peers []Endorser, orderer Committer, log *logger.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		peers:    peers,
		orderer:  orderer,
		log:      log,
	}
}

// Submit invokes a chaincode function as callerID and waits for the
// transaction to commit. Transient connectivity failures are retried with
// bounded exponential backoff; business failures, concurrency conflicts, and
// endorsement mismatches are returned to the caller unmodified.
func (g *Gateway) Submit(ctx context.Context, callerID, function string, args ...string) (*types.TxResult, error) {
	started := time.Now()

	caller, err := g.registry.Resolve(callerID)
	if err != nil {
		metrics.RecordTransaction(function, types.ErrCodeIdentityNotFound, time.Since(started))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	defer cancel()

	var result *types.TxResult
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		result, lastErr = g.submitOnce(ctx, caller, function, args)
		if lastErr == nil {
			metrics.RecordTransaction(function, "committed", time.Since(started))
			g.log.Transaction(result.TransactionID, function, true, map[string]interface{}{
				"caller":    callerID,
				"block_seq": result.BlockSeq,
				"attempt":   attempt,
			})
			return result, nil
		}

		le := types.AsLedgerError(lastErr)
		if le == nil || le.Type != types.ErrorTypeUnavailable || attempt == g.cfg.MaxAttempts {
			break
		}

		metrics.RecordRetry(function)
		g.log.WithError(lastErr).WithFields(map[string]interface{}{
			"function": function,
			"attempt":  attempt,
		}).Warn("Transient failure, retrying")

		if err := g.backoff(ctx, attempt); err != nil {
			lastErr = types.NewTimeoutError("submit timed out while waiting to retry")
			break
		}
	}

	lastErr = g.mapContextError(ctx, lastErr)
	if le := types.AsLedgerError(lastErr); le != nil {
		metrics.RecordTransaction(function, le.Code, time.Since(started))
	} else {
		metrics.RecordTransaction(function, types.ErrCodeInternalError, time.Since(started))
	}
	g.log.Transaction("", function, false, map[string]interface{}{
		"caller": callerID,
		"error":  lastErr.Error(),
	})
	return nil, lastErr
}

func (g *Gateway) submitOnce(ctx context.Context, caller *identity.SigningIdentity, function string, args []string) (*types.TxResult, error) {
	prop := &fabric.Proposal{
		TxID:      uuid.NewString(),
		Creator:   caller.Creator(),
		Function:  function,
		Args:      args,
		Timestamp: time.Now().UTC(),
	}

	endorsements, err := g.endorse(ctx, prop)
	if err != nil {
		return nil, err
	}

	// Every endorser must have produced the same result. A digest split
	// means the chaincode behaved non-deterministically, which no retry
	// can fix.
	first := endorsements[0]
	for _, e := range endorsements[1:] {
		if e.Digest != first.Digest {
			metrics.RecordEndorsementMismatch()
			return nil, types.NewEndorsementMismatchError(
				"endorsers " + first.Endorser + " and " + e.Endorser + " disagree on the transaction result")
		}
	}

	// Business failures never reach ordering, so their buffered writes are
	// discarded here.
	if !first.Success() {
		return nil, types.ParseChaincodeError(first.Message)
	}

	status, err := g.orderer.Submit(ctx, &fabric.Transaction{
		TxID:     prop.TxID,
		ReadSet:  first.ReadSet,
		WriteSet: first.WriteSet,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, types.NewTimeoutError("transaction " + prop.TxID + " was submitted but its commit was not observed")
		}
		return nil, types.NewUnavailableError("ordering service rejected the transaction", err)
	}
	if !status.Valid {
		metrics.RecordConcurrencyConflict()
		return nil, types.NewConcurrencyConflictError(status.Reason)
	}

	return &types.TxResult{
		TransactionID: prop.TxID,
		Payload:       first.Payload,
		CommittedAt:   time.Now().UTC(),
		BlockSeq:      status.BlockSeq,
	}, nil
}

// endorse collects endorsements from the configured quorum of peers,
// skipping unreachable ones as long as enough remain
func (g *Gateway) endorse(ctx context.Context, prop *fabric.Proposal) ([]*fabric.Endorsement, error) {
	quorum := g.cfg.EndorsementQuorum
	if quorum <= 0 || quorum > len(g.peers) {
		quorum = len(g.peers)
	}

	endorsements := make([]*fabric.Endorsement, 0, quorum)
	var lastErr error
	for _, p := range g.peers {
		if len(endorsements) == quorum {
			break
		}
		e, err := p.Endorse(ctx, prop)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, types.NewTimeoutError("endorsement interrupted")
			}
			lastErr = err
			continue
		}
		endorsements = append(endorsements, e)
	}

	if len(endorsements) < quorum {
		return nil, types.NewUnavailableError("endorsement quorum not reachable", lastErr)
	}
	return endorsements, nil
}

// Evaluate invokes a chaincode function as callerID against one peer's
// committed state. Any writes the function buffers are discarded.
func (g *Gateway) Evaluate(ctx context.Context, callerID, function string, args ...string) ([]byte, error) {
	caller, err := g.registry.Resolve(callerID)
	if err != nil {
		metrics.RecordEvaluation(function, types.ErrCodeIdentityNotFound)
		return nil, err
	}

	prop := &fabric.Proposal{
		TxID:      uuid.NewString(),
		Creator:   caller.Creator(),
		Function:  function,
		Args:      args,
		Timestamp: time.Now().UTC(),
	}

	var lastErr error
	for _, p := range g.peers {
		e, err := p.Evaluate(ctx, prop)
		if err != nil {
			lastErr = err
			continue
		}
		if !e.Success() {
			perr := types.ParseChaincodeError(e.Message)
			metrics.RecordEvaluation(function, perr.Code)
			return nil, perr
		}
		metrics.RecordEvaluation(function, "ok")
		return e.Payload, nil
	}

	metrics.RecordEvaluation(function, types.ErrCodeUnavailable)
	return nil, types.NewUnavailableError("no peer reachable for evaluation", lastErr)
}

// backoff sleeps for an exponentially growing delay, capped at the
// configured maximum
func (g *Gateway) backoff(ctx context.Context, attempt int) error {
	delay := g.cfg.BackoffBase << (attempt - 1)
	if delay > g.cfg.BackoffMax {
		delay = g.cfg.BackoffMax
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) mapContextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && types.AsLedgerError(err) == nil) {
		return types.NewTimeoutError("submit deadline exceeded; the transaction may still commit")
	}
	return err
}
