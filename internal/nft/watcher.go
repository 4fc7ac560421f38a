package nft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/atelierhq/atelier/internal/metrics"
)

// EthClient is the subset of the Ethereum RPC client the watcher needs.
// Satisfied by *ethclient.Client.
type EthClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// PendingMint is one mint transaction awaiting a receipt.
type PendingMint struct {
	ContractID string
	TxHash     string
}

// MintRegistry is the watcher's view of contracts with in-flight mints.
// Implemented by the contract service.
type MintRegistry interface {
	ListPendingMints(ctx context.Context) ([]PendingMint, error)
	ApplyMintResult(ctx context.Context, contractID string, succeeded bool, explorerURL string) error
}

// WatcherConfig configures the mint watcher.
type WatcherConfig struct {
	RPCURL          string
	ExplorerBaseURL string
	PollInterval    time.Duration
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{PollInterval: 15 * time.Second}
}

// Watcher polls for mint transaction receipts and reports the outcome back
// to the mint registry. A receipt that has not landed yet is not an error;
// the mint stays pending for the next cycle.
type Watcher struct {
	client   EthClient
	config   WatcherConfig
	registry MintRegistry
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a mint watcher connected to the configured RPC endpoint.
func NewWatcher(cfg WatcherConfig, registry MintRegistry, logger *slog.Logger) (*Watcher, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewWatcherWithClient(client, cfg, registry, logger), nil
}

// NewWatcherWithClient creates a mint watcher around an existing client.
func NewWatcherWithClient(client EthClient, cfg WatcherConfig, registry MintRegistry, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatcherConfig().PollInterval
	}
	return &Watcher{
		client:   client,
		config:   cfg,
		registry: registry,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling for receipts.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("mint watcher started", "pollInterval", w.config.PollInterval)
	go w.pollLoop(ctx)
}

// Stop stops the watcher and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.CheckOnce(ctx); err != nil {
				w.logger.Error("mint check failed", "error", err)
			}
		}
	}
}

// CheckOnce runs a single observation pass over all pending mints.
func (w *Watcher) CheckOnce(ctx context.Context) error {
	pending, err := w.registry.ListPendingMints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending mints: %w", err)
	}

	for _, mint := range pending {
		if err := w.observe(ctx, mint); err != nil {
			w.logger.Error("failed to observe mint",
				"contractId", mint.ContractID,
				"tx", mint.TxHash,
				"error", err,
			)
		}
	}
	return nil
}

func (w *Watcher) observe(ctx context.Context, mint PendingMint) error {
	receipt, err := w.client.TransactionReceipt(ctx, common.HexToHash(mint.TxHash))
	if err != nil {
		// ethereum.NotFound means the transaction is still in flight.
		if strings.Contains(err.Error(), "not found") {
			metrics.MintObservationsTotal.WithLabelValues("pending").Inc()
			return nil
		}
		metrics.MintObservationsTotal.WithLabelValues("error").Inc()
		return err
	}

	succeeded := receipt.Status == types.ReceiptStatusSuccessful
	explorerURL := w.explorerURL(mint.TxHash)

	if err := w.registry.ApplyMintResult(ctx, mint.ContractID, succeeded, explorerURL); err != nil {
		metrics.MintObservationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to apply mint result: %w", err)
	}

	if succeeded {
		metrics.MintObservationsTotal.WithLabelValues("succeeded").Inc()
		w.logger.Info("mint confirmed", "contractId", mint.ContractID, "tx", mint.TxHash)
	} else {
		metrics.MintObservationsTotal.WithLabelValues("failed").Inc()
		w.logger.Warn("mint reverted", "contractId", mint.ContractID, "tx", mint.TxHash)
	}
	return nil
}

func (w *Watcher) explorerURL(txHash string) string {
	if w.config.ExplorerBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(w.config.ExplorerBaseURL, "/"), txHash)
}
