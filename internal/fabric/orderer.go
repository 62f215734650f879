package fabric

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
)

// Transaction is an endorsed transaction handed to the ordering service
type Transaction struct {
	TxID     string
	ReadSet  map[string]uint64
	WriteSet []Write
}

// CommitStatus is the orderer's verdict on a transaction
type CommitStatus struct {
	TxID     string
	Valid    bool
	BlockSeq uint64
	Reason   string
}

type envelope struct {
	tx     *Transaction
	result chan CommitStatus
}

// Orderer imposes a total order on endorsed transactions and commits them
// one at a time. Each transaction's read set is validated against the
// committed state first; a stale read invalidates the transaction without
// applying any of its writes.
type Orderer struct {
	peers []*Peer
	in    chan *envelope
	quit  chan struct{}
	wg    sync.WaitGroup
	seq   uint64
	log   *logrus.Entry

	closeOnce sync.Once
}

// NewOrderer starts an ordering service over the given peers
func NewOrderer(peers []*Peer, log *logger.Logger) *Orderer {
	o := &Orderer{
		peers: peers,
		in:    make(chan *envelope, 64),
		quit:  make(chan struct{}),
		log:   log.WithComponent("orderer"),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// Submit queues the transaction for ordering and waits for its commit
// verdict. A canceled context abandons the wait, not the transaction: it may
// still commit afterwards.
func (o *Orderer) Submit(ctx context.Context, tx *Transaction) (CommitStatus, error) {
	env := &envelope{tx: tx, result: make(chan CommitStatus, 1)}

	select {
	case o.in <- env:
	case <-o.quit:
		return CommitStatus{}, fmt.Errorf("ordering service stopped")
	case <-ctx.Done():
		return CommitStatus{}, ctx.Err()
	}

	select {
	case status := <-env.result:
		return status, nil
	case <-ctx.Done():
		return CommitStatus{}, ctx.Err()
	}
}

// Stop drains no further transactions and waits for the ordering loop
func (o *Orderer) Stop() {
	o.closeOnce.Do(func() { close(o.quit) })
	o.wg.Wait()
}

func (o *Orderer) run() {
	defer o.wg.Done()
	for {
		select {
		case env := <-o.in:
			env.result <- o.commit(env.tx)
		case <-o.quit:
			return
		}
	}
}

func (o *Orderer) commit(tx *Transaction) CommitStatus {
	if reason := o.validate(tx); reason != "" {
		o.log.WithFields(map[string]interface{}{
			"tx_id":  tx.TxID,
			"reason": reason,
		}).Warn("Transaction invalidated")
		return CommitStatus{TxID: tx.TxID, Valid: false, Reason: reason}
	}

	o.seq++
	for _, p := range o.peers {
		if err := p.apply(tx.WriteSet, o.seq); err != nil {
			// A storage fault mid-commit leaves peers diverged. Surface it
			// loudly; there is no rollback path.
			o.log.WithError(err).WithFields(map[string]interface{}{
				"tx_id": tx.TxID,
				"peer":  p.Name(),
			}).Error("Failed to apply write set")
			return CommitStatus{TxID: tx.TxID, Valid: false, Reason: fmt.Sprintf("apply failed on %s: %v", p.Name(), err)}
		}
	}

	o.log.WithFields(map[string]interface{}{
		"tx_id":     tx.TxID,
		"block_seq": o.seq,
		"writes":    len(tx.WriteSet),
	}).Debug("Transaction committed")
	return CommitStatus{TxID: tx.TxID, Valid: true, BlockSeq: o.seq}
}

// validate compares every read version against the currently committed
// version. Peers hold identical committed state, so the first peer serves as
// the reference.
func (o *Orderer) validate(tx *Transaction) string {
	ref := o.peers[0]
	for key, readVersion := range tx.ReadSet {
		current, err := ref.readVersion(key)
		if err != nil {
			return fmt.Sprintf("version lookup for %s failed: %v", key, err)
		}
		if current != readVersion {
			return fmt.Sprintf("key %s read at version %d but committed version is %d", key, readVersion, current)
		}
	}
	return ""
}
