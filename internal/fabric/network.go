package fabric

import (
	"fmt"
	"path/filepath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/config"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
)

// Network bundles a channel's peers and its ordering service
type Network struct {
	Peers   []*Peer
	Orderer *Orderer
}

// NewNetwork builds a channel from configuration: one chaincode instance
// shared by the configured number of peers, each with its own world-state
// store, plus an ordering service keeping them in lockstep.
func NewNetwork(cfg config.LedgerConfig, cc *contractapi.ContractChaincode, log *logger.Logger) (*Network, error) {
	if cfg.PeerCount < 1 {
		return nil, fmt.Errorf("peer count must be at least 1, got %d", cfg.PeerCount)
	}

	peers := make([]*Peer, 0, cfg.PeerCount)
	for i := 0; i < cfg.PeerCount; i++ {
		name := fmt.Sprintf("peer%d", i)

		var store Store
		switch cfg.StateBackend {
		case config.StateBackendLevelDB:
			s, err := NewLevelStore(filepath.Join(cfg.StatePath, cfg.ChannelName, name))
			if err != nil {
				for _, p := range peers {
					p.Close()
				}
				return nil, err
			}
			store = s
		default:
			store = NewMemoryStore()
		}

		peers = append(peers, NewPeer(name, cfg.ChannelName, cc, store))
	}

	return &Network{
		Peers:   peers,
		Orderer: NewOrderer(peers, log),
	}, nil
}

// Close stops ordering and releases every peer's store
func (n *Network) Close() error {
	n.Orderer.Stop()
	var firstErr error
	for _, p := range n.Peers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
