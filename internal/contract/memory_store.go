package contract

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory contract store for demo/development mode.
type MemoryStore struct {
	contracts map[string]*Contract
	byApp     map[string]string // applicationID -> contractID
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory contract store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]*Contract),
		byApp:     make(map[string]string),
	}
}

// clone deep-copies a contract so callers never share pointers with the store.
func clone(c *Contract) *Contract {
	cp := *c
	if c.LeaderSignature != nil {
		sig := *c.LeaderSignature
		cp.LeaderSignature = &sig
	}
	if c.ArtistSignature != nil {
		sig := *c.ArtistSignature
		cp.ArtistSignature = &sig
	}
	if c.NFT != nil {
		info := *c.NFT
		cp.NFT = &info
	}
	if c.Cancellation != nil {
		creq := *c.Cancellation
		if c.Cancellation.ResolvedAt != nil {
			t := *c.Cancellation.ResolvedAt
			creq.ResolvedAt = &t
		}
		cp.Cancellation = &creq
	}
	if c.SettledAt != nil {
		t := *c.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contracts[c.ID] = clone(c)
	if c.ApplicationID != "" {
		m.byApp[c.ApplicationID] = c.ID
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	return clone(c), nil
}

func (m *MemoryStore) GetByApplication(ctx context.Context, applicationID string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byApp[applicationID]
	if !ok {
		return nil, ErrContractNotFound
	}
	return clone(m.contracts[id]), nil
}

func (m *MemoryStore) Update(ctx context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[c.ID]; !ok {
		return ErrContractNotFound
	}
	m.contracts[c.ID] = clone(c)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, status string, limit int) ([]*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Contract
	for _, c := range m.contracts {
		if c.Leader.UserID != userID && c.Artist.UserID != userID {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		result = append(result, clone(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListMintPending(ctx context.Context, limit int) ([]*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Contract
	for _, c := range m.contracts {
		if c.NFT != nil && c.NFT.OnchainStatus == MintPending {
			result = append(result, clone(c))
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListCancellationPending(ctx context.Context, limit int) ([]*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Contract
	for _, c := range m.contracts {
		if c.Status == StatusCancellationRequested {
			result = append(result, clone(c))
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
