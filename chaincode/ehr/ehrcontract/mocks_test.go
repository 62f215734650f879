package ehrcontract

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// testStub is a functional in-memory chaincode stub. State persists across
// invocations so tests can chain transitions; txID and timestamp advance via
// nextTx between invocations.
type testStub struct {
	shim.ChaincodeStubInterface

	state  map[string][]byte
	txID   string
	ts     time.Time
	events map[string][]byte
}

func newTestStub() *testStub {
	return &testStub{
		state:  make(map[string][]byte),
		txID:   "tx-1",
		ts:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		events: make(map[string][]byte),
	}
}

// nextTx starts a new simulated transaction at the given instant
func (s *testStub) nextTx(txID string, at time.Time) {
	s.txID = txID
	s.ts = at
}

func (s *testStub) GetTxID() string { return s.txID }

func (s *testStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.ts), nil
}

func (s *testStub) GetState(key string) ([]byte, error) {
	return s.state[key], nil
}

func (s *testStub) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("empty key")
	}
	s.state[key] = value
	return nil
}

func (s *testStub) DelState(key string) error {
	delete(s.state, key)
	return nil
}

func (s *testStub) SetEvent(name string, payload []byte) error {
	s.events[name] = payload
	return nil
}

func (s *testStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	var keys []string
	for k := range s.state {
		if k >= startKey && (endKey == "" || k < endKey) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	results := make([]*queryresult.KV, len(keys))
	for i, k := range keys {
		results[i] = &queryresult.KV{Key: k, Value: s.state[k]}
	}
	return &testIterator{results: results}, nil
}

func (s *testStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := "\x00" + objectType + "\x00"
	for _, att := range attributes {
		ck += att + "\x00"
	}
	return ck, nil
}

func (s *testStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	parts := strings.Split(strings.Trim(compositeKey, "\x00"), "\x00")
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("invalid composite key %q", compositeKey)
	}
	return parts[0], parts[1:], nil
}

func (s *testStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := s.CreateCompositeKey(objectType, keys)
	return s.GetStateByRange(prefix, prefix+string(rune(0x10FFFF)))
}

type testIterator struct {
	results []*queryresult.KV
	next    int
}

func (it *testIterator) HasNext() bool { return it.next < len(it.results) }

func (it *testIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("no more results")
	}
	kv := it.results[it.next]
	it.next++
	return kv, nil
}

func (it *testIterator) Close() error { return nil }

// testIdentity is a client identity backed by a synthetic certificate
type testIdentity struct {
	cid.ClientIdentity

	id   string
	role string
}

func (t *testIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return &x509.Certificate{Subject: pkix.Name{CommonName: t.id}}, nil
}

func (t *testIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	if attrName == roleAttribute && t.role != "" {
		return t.role, true, nil
	}
	return "", false, nil
}

// testContext pairs a stub with a caller identity
type testContext struct {
	stub *testStub
	id   *testIdentity
}

func (c *testContext) GetStub() shim.ChaincodeStubInterface  { return c.stub }
func (c *testContext) GetClientIdentity() cid.ClientIdentity { return c.id }

func ctxFor(stub *testStub, callerID string, role types.Role) *testContext {
	return &testContext{stub: stub, id: &testIdentity{id: callerID, role: string(role)}}
}

// auditEntries returns every committed audit entry, oldest first
func auditEntries(stub *testStub) []*types.AccessAuditEntry {
	var keys []string
	for k := range stub.state {
		if strings.HasPrefix(k, auditKeyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]*types.AccessAuditEntry, 0, len(keys))
	for _, k := range keys {
		var entry types.AccessAuditEntry
		if err := json.Unmarshal(stub.state[k], &entry); err == nil {
			entries = append(entries, &entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

// lastAudit returns the most recent audit entry about subjectID
func lastAudit(stub *testStub, subjectID string) *types.AccessAuditEntry {
	entries := auditEntries(stub)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].SubjectID == subjectID {
			return entries[i]
		}
	}
	return nil
}
