package fabric

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	minUnicodeRuneValue   = 0
	maxUnicodeRuneValue   = utf8.MaxRune
	compositeKeyNamespace = "\x00"
)

// Write is one entry of a simulated transaction's write set
type Write struct {
	Key      string `json:"key"`
	Value    []byte `json:"value,omitempty"`
	IsDelete bool   `json:"is_delete,omitempty"`
}

// Event is a chaincode event captured during simulation. Only the last event
// set during a transaction is kept, matching platform behavior.
type Event struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

// simStub simulates a chaincode invocation against a peer's committed world
// state. Reads come from the committed snapshot only, never from the
// transaction's own buffered writes, and every read records the version it
// observed so the orderer can validate the transaction at commit time.
//
// The embedded interface covers the shim surface this ledger never touches;
// calling an unimplemented method panics, which is the desired failure mode
// for a simulation bug.
type simStub struct {
	shim.ChaincodeStubInterface

	txID      string
	channelID string
	creator   []byte
	timestamp time.Time
	args      [][]byte

	snapshot Store
	reads    map[string]uint64
	writes   map[string]Write
	event    *Event
}

func newSimStub(snapshot Store, prop *Proposal, channelID string) *simStub {
	args := make([][]byte, 0, len(prop.Args)+1)
	args = append(args, []byte(prop.Function))
	for _, a := range prop.Args {
		args = append(args, []byte(a))
	}
	return &simStub{
		txID:      prop.TxID,
		channelID: channelID,
		creator:   prop.Creator,
		timestamp: prop.Timestamp,
		args:      args,
		snapshot:  snapshot,
		reads:     make(map[string]uint64),
		writes:    make(map[string]Write),
	}
}

func (s *simStub) GetArgs() [][]byte { return s.args }

func (s *simStub) GetStringArgs() []string {
	args := make([]string, len(s.args))
	for i, a := range s.args {
		args[i] = string(a)
	}
	return args
}

func (s *simStub) GetFunctionAndParameters() (string, []string) {
	args := s.GetStringArgs()
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func (s *simStub) GetTxID() string      { return s.txID }
func (s *simStub) GetChannelID() string { return s.channelID }

func (s *simStub) GetCreator() ([]byte, error) { return s.creator, nil }

func (s *simStub) GetTransient() (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (s *simStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.timestamp), nil
}

// recordRead notes the committed version observed for key. Only the first
// read of a key counts; later reads of the same key must see the same
// snapshot anyway.
func (s *simStub) recordRead(key string, version uint64) {
	if _, seen := s.reads[key]; !seen {
		s.reads[key] = version
	}
}

func (s *simStub) GetState(key string) ([]byte, error) {
	vv, ok, err := s.snapshot.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.recordRead(key, 0)
		return nil, nil
	}
	s.recordRead(key, vv.Version)
	value := make([]byte, len(vv.Value))
	copy(value, vv.Value)
	return value, nil
}

func (s *simStub) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("key must not be an empty string")
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.writes[key] = Write{Key: key, Value: buf}
	return nil
}

func (s *simStub) DelState(key string) error {
	s.writes[key] = Write{Key: key, IsDelete: true}
	return nil
}

func (s *simStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	kvs, err := s.snapshot.GetRange(startKey, endKey)
	if err != nil {
		return nil, err
	}
	results := make([]*queryresult.KV, len(kvs))
	for i, kv := range kvs {
		s.recordRead(kv.Key, kv.Value.Version)
		results[i] = &queryresult.KV{Key: kv.Key, Value: kv.Value.Value}
	}
	return &stateIterator{results: results}, nil
}

func (s *simStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	return createCompositeKey(objectType, attributes)
}

func (s *simStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	components := []string{}
	start := 1
	for i := 1; i < len(compositeKey); i++ {
		if compositeKey[i] == minUnicodeRuneValue {
			components = append(components, compositeKey[start:i])
			start = i + 1
		}
	}
	if len(components) == 0 {
		return "", nil, fmt.Errorf("invalid composite key %q", compositeKey)
	}
	return components[0], components[1:], nil
}

func (s *simStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := createCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}
	return s.GetStateByRange(prefix, prefix+string(rune(maxUnicodeRuneValue)))
}

func (s *simStub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name must not be an empty string")
	}
	s.event = &Event{Name: name, Payload: payload}
	return nil
}

// readSet returns the versions observed during simulation
func (s *simStub) readSet() map[string]uint64 {
	rs := make(map[string]uint64, len(s.reads))
	for k, v := range s.reads {
		rs[k] = v
	}
	return rs
}

// writeSet returns the buffered writes sorted by key
func (s *simStub) writeSet() []Write {
	ws := make([]Write, 0, len(s.writes))
	for _, w := range s.writes {
		ws = append(ws, w)
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Key < ws[j].Key })
	return ws
}

func createCompositeKey(objectType string, attributes []string) (string, error) {
	if err := validateCompositeKeyAttribute(objectType); err != nil {
		return "", err
	}
	ck := compositeKeyNamespace + objectType + string(rune(minUnicodeRuneValue))
	for _, att := range attributes {
		if err := validateCompositeKeyAttribute(att); err != nil {
			return "", err
		}
		ck += att + string(rune(minUnicodeRuneValue))
	}
	return ck, nil
}

func validateCompositeKeyAttribute(str string) error {
	if !utf8.ValidString(str) {
		return fmt.Errorf("not a valid utf8 string: %q", str)
	}
	for _, r := range str {
		if r == minUnicodeRuneValue || r == maxUnicodeRuneValue {
			return fmt.Errorf("input contains reserved rune %U", r)
		}
	}
	return nil
}

// stateIterator serves a materialized result set
type stateIterator struct {
	results []*queryresult.KV
	next    int
}

func (it *stateIterator) HasNext() bool { return it.next < len(it.results) }

func (it *stateIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("no more results")
	}
	kv := it.results[it.next]
	it.next++
	return kv, nil
}

func (it *stateIterator) Close() error { return nil }
