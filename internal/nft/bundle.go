// Package nft handles proof-of-contract NFT assets: the pre-mint image
// bundle and observation of the mint transaction on chain.
//
// The bundle (three rendered variants: active, completed, canceled) must be
// uploaded before the leader finalizes, because the server embeds the bundle
// URL into the minting request it issues once payment clears.
package nft

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrBundleNotFound = errors.New("nft: bundle not found")
	ErrMissingVariant = errors.New("nft: bundle requires all three variants")
	ErrVariantTooBig  = errors.New("nft: variant image exceeds size limit")
)

// MaxVariantSize bounds a single uploaded image (5MB).
const MaxVariantSize = 5 << 20

// Variant names one of the three visual states rendered into the bundle.
type Variant string

const (
	VariantActive    Variant = "active"
	VariantCompleted Variant = "completed"
	VariantCanceled  Variant = "canceled"
)

// Variants lists the required bundle contents in canonical order.
var Variants = []Variant{VariantActive, VariantCompleted, VariantCanceled}

// Bundle is the stored image set for one contract.
type Bundle struct {
	ContractID string             `json:"contractId"`
	URL        string             `json:"url"` // single bundle URL embedded in the mint request
	Files      map[Variant]string `json:"files"`
	UploadedAt time.Time          `json:"uploadedAt"`
}

// BundleStore persists uploaded bundles.
type BundleStore interface {
	Save(ctx context.Context, contractID string, images map[Variant][]byte) (*Bundle, error)
	Get(ctx context.Context, contractID string) (*Bundle, error)
}

// ValidateImages checks that exactly the three required variants are present
// and within size bounds. Runs before anything touches storage.
func ValidateImages(images map[Variant][]byte) error {
	for _, v := range Variants {
		data, ok := images[v]
		if !ok || len(data) == 0 {
			return fmt.Errorf("%w: missing %s", ErrMissingVariant, v)
		}
		if len(data) > MaxVariantSize {
			return fmt.Errorf("%w: %s is %d bytes", ErrVariantTooBig, v, len(data))
		}
	}
	return nil
}

// FSStore stores bundles on the local filesystem under root/<contractID>/.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates a filesystem bundle store. baseURL is the public prefix
// that serves root.
func NewFSStore(root, baseURL string) *FSStore {
	return &FSStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Save writes the three variant images and returns the bundle descriptor.
func (s *FSStore) Save(ctx context.Context, contractID string, images map[Variant][]byte) (*Bundle, error) {
	if err := ValidateImages(images); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, contractID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("nft: failed to create bundle dir: %w", err)
	}

	bundle := &Bundle{
		ContractID: contractID,
		URL:        fmt.Sprintf("%s/%s", s.baseURL, contractID),
		Files:      make(map[Variant]string, len(Variants)),
		UploadedAt: time.Now().UTC(),
	}

	for _, v := range Variants {
		name := string(v) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), images[v], 0o644); err != nil {
			return nil, fmt.Errorf("nft: failed to write %s variant: %w", v, err)
		}
		bundle.Files[v] = fmt.Sprintf("%s/%s/%s", s.baseURL, contractID, name)
	}

	return bundle, nil
}

// Get returns the bundle for a contract, or ErrBundleNotFound.
func (s *FSStore) Get(ctx context.Context, contractID string) (*Bundle, error) {
	dir := filepath.Join(s.root, contractID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, ErrBundleNotFound
	}

	bundle := &Bundle{
		ContractID: contractID,
		URL:        fmt.Sprintf("%s/%s", s.baseURL, contractID),
		Files:      make(map[Variant]string, len(Variants)),
		UploadedAt: info.ModTime().UTC(),
	}
	for _, v := range Variants {
		name := string(v) + ".png"
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, ErrBundleNotFound
		}
		bundle.Files[v] = fmt.Sprintf("%s/%s/%s", s.baseURL, contractID, name)
	}
	return bundle, nil
}

// MemoryStore is an in-memory bundle store for tests.
type MemoryStore struct {
	bundles map[string]*Bundle
}

// NewMemoryStore creates an empty in-memory bundle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]*Bundle)}
}

func (m *MemoryStore) Save(ctx context.Context, contractID string, images map[Variant][]byte) (*Bundle, error) {
	if err := ValidateImages(images); err != nil {
		return nil, err
	}
	bundle := &Bundle{
		ContractID: contractID,
		URL:        "mem://" + contractID,
		Files:      make(map[Variant]string, len(Variants)),
		UploadedAt: time.Now().UTC(),
	}
	for _, v := range Variants {
		bundle.Files[v] = fmt.Sprintf("mem://%s/%s.png", contractID, v)
	}
	m.bundles[contractID] = bundle
	return bundle, nil
}

func (m *MemoryStore) Get(ctx context.Context, contractID string) (*Bundle, error) {
	bundle, ok := m.bundles[contractID]
	if !ok {
		return nil, ErrBundleNotFound
	}
	return bundle, nil
}
