package state

import (
	"sort"
	"sync"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	locks    *walletLocks

	// Error injection
	SaveError error
}

// NewMockStore creates a mock profile store.
func NewMockStore() *MockStore {
	return &MockStore{
		profiles: make(map[string]*Profile),
		locks:    newWalletLocks(),
	}
}

// Load returns a copy of the stored profile.
func (m *MockStore) Load(wallet string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.profiles[models.NormalizeAddress(wallet)]; ok {
		return p.Clone(), nil
	}

	return nil, ErrStateNotFound
}

// Save stores a copy of profile.
func (m *MockStore) Save(wallet string, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveError != nil {
		return m.SaveError
	}

	m.profiles[models.NormalizeAddress(wallet)] = profile.Clone()
	return nil
}

// Reset removes the profile of a wallet.
func (m *MockStore) Reset(wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.profiles, models.NormalizeAddress(wallet))
	return nil
}

// List returns all wallets with a stored profile.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wallets := make([]string, 0, len(m.profiles))
	for w := range m.profiles {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets, nil
}

// Lock acquires an exclusive lock for a wallet.
func (m *MockStore) Lock(wallet string) (UnlockFunc, error) {
	return m.locks.acquire(models.NormalizeAddress(wallet), lockTimeout)
}

// Migrate transfers all profiles to target.
func (m *MockStore) Migrate(target Store) error {
	return migrate(m, target, events.NewNopLogger())
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Len returns the number of stored profiles.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}
