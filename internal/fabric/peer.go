package fabric

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// ErrPeerUnavailable is returned when an endorsement is requested from a peer
// that is currently offline
var ErrPeerUnavailable = errors.New("peer unavailable")

// Proposal is a transaction proposal sent to peers for simulation. The
// timestamp travels with the proposal so every peer simulates against the
// same clock reading.
type Proposal struct {
	TxID      string
	Creator   []byte
	Function  string
	Args      []string
	Timestamp time.Time
}

// Endorsement is the result of simulating a proposal on one peer
type Endorsement struct {
	Endorser string
	Status   int32
	Message  string
	Payload  []byte
	Event    *Event
	ReadSet  map[string]uint64
	WriteSet []Write
	Digest   string
}

// Success reports whether the simulated chaincode returned OK
func (e *Endorsement) Success() bool { return e.Status == 200 }

// Peer hosts a chaincode and a world-state store and simulates proposals
// against its committed state
type Peer struct {
	name      string
	channelID string
	chaincode *contractapi.ContractChaincode
	store     Store

	mu        sync.RWMutex
	available bool
}

// NewPeer returns a peer serving the given chaincode over the given store
func NewPeer(name, channelID string, cc *contractapi.ContractChaincode, store Store) *Peer {
	return &Peer{name: name, channelID: channelID, chaincode: cc, store: store, available: true}
}

func (p *Peer) Name() string { return p.name }

// SetAvailable toggles the peer on or off. An offline peer refuses
// endorsements, which the gateway treats as a transient failure.
func (p *Peer) SetAvailable(up bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = up
}

// Endorse simulates the proposal against the peer's committed snapshot and
// returns the signed result. The world state is not modified.
func (p *Peer) Endorse(ctx context.Context, prop *Proposal) (*Endorsement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.available {
		return nil, fmt.Errorf("%s: %w", p.name, ErrPeerUnavailable)
	}

	stub := newSimStub(p.store, prop, p.channelID)
	resp := p.chaincode.Invoke(stub)

	e := &Endorsement{
		Endorser: p.name,
		Status:   resp.Status,
		Message:  resp.Message,
		Payload:  resp.Payload,
		Event:    stub.event,
		ReadSet:  stub.readSet(),
		WriteSet: stub.writeSet(),
	}
	e.Digest = digest(e)
	return e, nil
}

// Evaluate simulates the proposal for its result only. Writes are discarded
// by the caller, so the distinction from Endorse is purely one of intent.
func (p *Peer) Evaluate(ctx context.Context, prop *Proposal) (*Endorsement, error) {
	return p.Endorse(ctx, prop)
}

// readVersion returns the committed version of key, zero when absent
func (p *Peer) readVersion(key string) (uint64, error) {
	vv, ok, err := p.store.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return vv.Version, nil
}

// apply commits a validated write set at the given block sequence
func (p *Peer) apply(writes []Write, seq uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range writes {
		if w.IsDelete {
			if err := p.store.Delete(w.Key); err != nil {
				return err
			}
			continue
		}
		if err := p.store.Put(w.Key, VersionedValue{Value: w.Value, Version: seq}); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the peer's store
func (p *Peer) Close() error { return p.store.Close() }

// digest hashes everything that must be identical across endorsers: the
// response, the write set, and the emitted event. Read versions are excluded
// because peers may legitimately simulate at slightly different heights.
func digest(e *Endorsement) string {
	h := sha256.New()
	var status [4]byte
	binary.BigEndian.PutUint32(status[:], uint32(e.Status))
	h.Write(status[:])
	h.Write([]byte(e.Message))
	h.Write(e.Payload)
	for _, w := range e.WriteSet {
		h.Write([]byte(w.Key))
		if w.IsDelete {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		h.Write(w.Value)
	}
	if e.Event != nil {
		h.Write([]byte(e.Event.Name))
		h.Write(e.Event.Payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}
