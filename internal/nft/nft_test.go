package nft

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func sampleImages() map[Variant][]byte {
	return map[Variant][]byte{
		VariantActive:    []byte("png-active"),
		VariantCompleted: []byte("png-completed"),
		VariantCanceled:  []byte("png-canceled"),
	}
}

func TestValidateImages(t *testing.T) {
	if err := ValidateImages(sampleImages()); err != nil {
		t.Fatalf("valid bundle rejected: %v", err)
	}

	missing := sampleImages()
	delete(missing, VariantCanceled)
	if err := ValidateImages(missing); !errors.Is(err, ErrMissingVariant) {
		t.Errorf("expected ErrMissingVariant, got %v", err)
	}

	empty := sampleImages()
	empty[VariantActive] = nil
	if err := ValidateImages(empty); !errors.Is(err, ErrMissingVariant) {
		t.Errorf("expected ErrMissingVariant for empty image, got %v", err)
	}

	big := sampleImages()
	big[VariantCompleted] = make([]byte, MaxVariantSize+1)
	if err := ValidateImages(big); !errors.Is(err, ErrVariantTooBig) {
		t.Errorf("expected ErrVariantTooBig, got %v", err)
	}
}

func TestFSStore_SaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir, "https://assets.example.com/bundles/")

	bundle, err := store.Save(context.Background(), "ct_abc", sampleImages())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if bundle.URL != "https://assets.example.com/bundles/ct_abc" {
		t.Errorf("unexpected bundle URL: %s", bundle.URL)
	}
	if len(bundle.Files) != 3 {
		t.Errorf("expected 3 files, got %d", len(bundle.Files))
	}

	data, err := os.ReadFile(filepath.Join(dir, "ct_abc", "active.png"))
	if err != nil {
		t.Fatalf("active variant not written: %v", err)
	}
	if string(data) != "png-active" {
		t.Errorf("unexpected variant content: %q", data)
	}

	got, err := store.Get(context.Background(), "ct_abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.URL != bundle.URL {
		t.Errorf("Get URL = %s, want %s", got.URL, bundle.URL)
	}

	if _, err := store.Get(context.Background(), "ct_missing"); !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("expected ErrBundleNotFound, got %v", err)
	}
}

type fakeEthClient struct {
	receipts map[string]*types.Receipt
	err      error
}

func (f *fakeEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	receipt, ok := f.receipts[txHash.Hex()]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

type fakeRegistry struct {
	pending []PendingMint
	applied map[string]bool // contractID -> succeeded
	urls    map[string]string
}

func newFakeRegistry(pending ...PendingMint) *fakeRegistry {
	return &fakeRegistry{
		pending: pending,
		applied: make(map[string]bool),
		urls:    make(map[string]string),
	}
}

func (f *fakeRegistry) ListPendingMints(ctx context.Context) ([]PendingMint, error) {
	return f.pending, nil
}

func (f *fakeRegistry) ApplyMintResult(ctx context.Context, contractID string, succeeded bool, explorerURL string) error {
	f.applied[contractID] = succeeded
	f.urls[contractID] = explorerURL
	return nil
}

func testWatcher(client EthClient, registry MintRegistry) *Watcher {
	cfg := WatcherConfig{ExplorerBaseURL: "https://scan.example.com"}
	return NewWatcherWithClient(client, cfg, registry, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestWatcher_MintSucceeded(t *testing.T) {
	tx := common.HexToHash("0x01").Hex()
	client := &fakeEthClient{receipts: map[string]*types.Receipt{
		tx: {Status: types.ReceiptStatusSuccessful},
	}}
	registry := newFakeRegistry(PendingMint{ContractID: "ct_1", TxHash: tx})

	w := testWatcher(client, registry)
	if err := w.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}

	succeeded, ok := registry.applied["ct_1"]
	if !ok || !succeeded {
		t.Errorf("expected mint result succeeded=true, got ok=%v succeeded=%v", ok, succeeded)
	}
	if registry.urls["ct_1"] != "https://scan.example.com/tx/"+tx {
		t.Errorf("unexpected explorer URL: %s", registry.urls["ct_1"])
	}
}

func TestWatcher_MintReverted(t *testing.T) {
	tx := common.HexToHash("0x02").Hex()
	client := &fakeEthClient{receipts: map[string]*types.Receipt{
		tx: {Status: types.ReceiptStatusFailed},
	}}
	registry := newFakeRegistry(PendingMint{ContractID: "ct_2", TxHash: tx})

	w := testWatcher(client, registry)
	if err := w.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}
	if succeeded := registry.applied["ct_2"]; succeeded {
		t.Error("reverted mint reported as succeeded")
	}
}

func TestWatcher_ReceiptNotYetAvailable(t *testing.T) {
	client := &fakeEthClient{receipts: map[string]*types.Receipt{}}
	registry := newFakeRegistry(PendingMint{ContractID: "ct_3", TxHash: common.HexToHash("0x03").Hex()})

	w := testWatcher(client, registry)
	if err := w.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}
	if _, ok := registry.applied["ct_3"]; ok {
		t.Error("pending mint should not have a result applied")
	}
}
