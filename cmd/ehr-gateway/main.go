package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/deveshyaara/Healthlink-RPC-sub001/chaincode/ehr/ehrcontract"
	"github.com/deveshyaara/Healthlink-RPC-sub001/internal/fabric"
	"github.com/deveshyaara/Healthlink-RPC-sub001/internal/gateway"
	"github.com/deveshyaara/Healthlink-RPC-sub001/internal/identity"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/config"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/metrics"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New("ehr-gateway", cfg.LogLevel)

	cc, err := contractapi.NewChaincode(&ehrcontract.SmartContract{})
	if err != nil {
		logg.Fatalf("Failed to create EHR chaincode: %v", err)
	}

	network, err := fabric.NewNetwork(cfg.Ledger, cc, logg)
	if err != nil {
		logg.Fatalf("Failed to build ledger network: %v", err)
	}

	registry := identity.NewRegistry(cfg.Identity.MSPID, logg)
	if _, err := registry.Enroll(cfg.Identity.BootstrapAdmin, types.RoleAdmin); err != nil {
		logg.Fatalf("Failed to enroll bootstrap admin: %v", err)
	}

	peers := make([]gateway.Endorser, len(network.Peers))
	for i, p := range network.Peers {
		peers[i] = p
	}
	gw := gateway.New(cfg.Gateway, registry, peers, network.Orderer, logg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.SubmitTimeout)
	if _, err := gw.Submit(ctx, cfg.Identity.BootstrapAdmin, "InitLedger"); err != nil {
		cancel()
		logg.Fatalf("Failed to initialize ledger: %v", err)
	}
	cancel()
	logg.WithFields(map[string]interface{}{
		"channel": cfg.Ledger.ChannelName,
		"peers":   cfg.Ledger.PeerCount,
		"backend": cfg.Ledger.StateBackend,
	}).Info("Ledger initialized")

	var metricsServer *http.Server
	if cfg.Monitoring.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Monitoring.MetricsPath, metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Monitoring.ListenAddr, Handler: mux}

		go func() {
			logg.Infof("Serving metrics on %s%s", cfg.Monitoring.ListenAddr, cfg.Monitoring.MetricsPath)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logg.Fatalf("Metrics server failed: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down EHR gateway...")
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logg.Errorf("Error shutting down metrics server: %v", err)
		}
		shutdownCancel()
	}
	if err := network.Close(); err != nil {
		logg.Errorf("Error closing ledger network: %v", err)
	}
	logg.Info("EHR gateway stopped")
}
