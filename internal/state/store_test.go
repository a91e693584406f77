package state_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/state"
)

const (
	walletA = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	walletB = "0x2222222222222222222222222222222222222222"
)

func testLogger() *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", io.Discard)
}

func sampleProfile(wallet string, days int) *state.Profile {
	now := time.Now().UTC().Truncate(time.Second)
	return &state.Profile{
		WalletAddress:       wallet,
		EncryptedPrivateKey: "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=",
		BackupWallets: []models.BackupWallet{
			{Address: "0x1111111111111111111111111111111111111111", Percentage: 70, Label: "cold"},
			{Address: "0x3333333333333333333333333333333333333333", Percentage: 30},
		},
		InactivityDays: days,
		Email:          "owner@example.com",
		UserID:         "user-1",
		RegisteredAt:   now,
		UpdatedAt:      now,
	}
}

func TestJSONStore(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestMockStore(t *testing.T) {
	testStoreOperations(t, state.NewMockStore())
}

func testStoreOperations(t *testing.T, store state.Store) {
	t.Run("load non-existent", func(t *testing.T) {
		_, err := store.Load(walletA)
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		profile := sampleProfile(walletA, 90)

		require.NoError(t, store.Save(walletA, profile))

		loaded, err := store.Load(walletA)
		require.NoError(t, err)

		assert.Equal(t, profile.EncryptedPrivateKey, loaded.EncryptedPrivateKey)
		assert.Equal(t, profile.BackupWallets, loaded.BackupWallets)
		assert.Equal(t, 90, loaded.InactivityDays)
		assert.Equal(t, "owner@example.com", loaded.Email)
		assert.Equal(t, "user-1", loaded.UserID)
		assert.Equal(t, profile.RegisteredAt.Unix(), loaded.RegisteredAt.Unix())
	})

	t.Run("address case is ignored", func(t *testing.T) {
		loaded, err := store.Load(strings.ToLower(walletA))
		require.NoError(t, err)
		assert.Equal(t, 90, loaded.InactivityDays)
	})

	t.Run("update existing", func(t *testing.T) {
		profile := sampleProfile(walletA, 30)
		profile.BackupWallets = []models.BackupWallet{
			{Address: "0x4444444444444444444444444444444444444444", Percentage: 100},
		}
		profile.History = []models.RollbackRecord{
			{ID: "rb-1", Status: models.RollbackFailed, Error: "out of gas", Attempts: 2},
		}
		require.NoError(t, store.Save(walletA, profile))

		loaded, err := store.Load(walletA)
		require.NoError(t, err)

		assert.Equal(t, 30, loaded.InactivityDays)
		require.Len(t, loaded.BackupWallets, 1)
		assert.Equal(t, 100, loaded.BackupWallets[0].Percentage)
		require.Len(t, loaded.History, 1)
		assert.Equal(t, "out of gas", loaded.History[0].Error)
		assert.Equal(t, models.RollbackFailed, loaded.History[0].Status)
	})

	t.Run("list wallets", func(t *testing.T) {
		require.NoError(t, store.Save(walletB, sampleProfile(walletB, 10)))

		wallets, err := store.List()
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{
			models.NormalizeAddress(walletA),
			models.NormalizeAddress(walletB),
		}, wallets)
	})

	t.Run("reset wallet", func(t *testing.T) {
		require.NoError(t, store.Reset(walletA))

		_, err := store.Load(walletA)
		assert.ErrorIs(t, err, state.ErrStateNotFound)

		// Other wallet should still exist
		_, err = store.Load(walletB)
		assert.NoError(t, err)

		// Resetting again is fine
		assert.NoError(t, store.Reset(walletA))
	})

	t.Run("concurrent locking", func(t *testing.T) {
		unlock1, err := store.Lock(walletB)
		require.NoError(t, err)

		done := make(chan bool)
		go func() {
			unlock2, err := store.Lock(walletB)
			if err == nil {
				defer unlock2()
			}
			done <- (err == nil)
		}()

		select {
		case success := <-done:
			if success {
				t.Error("Second lock acquired too quickly")
			}
		case <-time.After(100 * time.Millisecond):
			// Expected - lock should be blocked
		}

		unlock1()

		select {
		case success := <-done:
			if !success {
				t.Error("Second lock failed after first was released")
			}
		case <-time.After(1 * time.Second):
			t.Error("Second lock never acquired")
		}
	})
}

func TestJSONStoreCorruption(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(walletA, sampleProfile(walletA, 90)))

	path := filepath.Join(tmpDir, models.NormalizeAddress(walletA)+".json")
	require.NoError(t, os.WriteFile(path, []byte("invalid json"), 0600))

	_, err = store.Load(walletA)
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
}

func TestJSONStoreChecksumMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(walletA, sampleProfile(walletA, 90)))

	path := filepath.Join(tmpDir, models.NormalizeAddress(walletA)+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), `"inactivity_days": 90`, `"inactivity_days": 9`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))

	_, err = store.Load(walletA)
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
}

func TestJSONStoreBackupRecovery(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(walletA, sampleProfile(walletA, 5)))
	require.NoError(t, store.Save(walletA, sampleProfile(walletA, 10)))

	loaded, err := store.Load(walletA)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.InactivityDays)

	// Corrupt main file
	mainPath := filepath.Join(tmpDir, models.NormalizeAddress(walletA)+".json")
	require.NoError(t, os.WriteFile(mainPath, []byte("corrupted"), 0600))

	recovered, err := store.Load(walletA)
	require.NoError(t, err)
	assert.Equal(t, 5, recovered.InactivityDays)

	// Backup files are not listed as wallets
	wallets, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{models.NormalizeAddress(walletA)}, wallets)
}

func TestJSONStoreFilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(walletA, sampleProfile(walletA, 90)))

	info, err := os.Stat(filepath.Join(tmpDir, models.NormalizeAddress(walletA)+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestMigration(t *testing.T) {
	tmpDir := t.TempDir()
	logger := testLogger()

	jsonStore, err := state.NewJSONStore(filepath.Join(tmpDir, "json"), logger)
	require.NoError(t, err)
	defer jsonStore.Close()

	var wallets []string
	for i := 1; i <= 3; i++ {
		wallet := fmt.Sprintf("0x%040d", i)
		wallets = append(wallets, wallet)
		require.NoError(t, jsonStore.Save(wallet, sampleProfile(wallet, i*10)))
	}

	sqliteStore, err := state.NewSQLiteStore(filepath.Join(tmpDir, "state.db"), logger)
	require.NoError(t, err)
	defer sqliteStore.Close()

	require.NoError(t, jsonStore.Migrate(sqliteStore))

	migrated, err := sqliteStore.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, wallets, migrated)

	for i, wallet := range wallets {
		profile, err := sqliteStore.Load(wallet)
		require.NoError(t, err)
		assert.Equal(t, (i+1)*10, profile.InactivityDays)
		assert.Len(t, profile.BackupWallets, 2)
	}

	// And back again
	mock := state.NewMockStore()
	require.NoError(t, sqliteStore.Migrate(mock))
	assert.Equal(t, 3, mock.Len())
}

func TestMockStoreIsolation(t *testing.T) {
	store := state.NewMockStore()
	profile := sampleProfile(walletA, 90)
	require.NoError(t, store.Save(walletA, profile))

	profile.BackupWallets[0].Percentage = 1

	loaded, err := store.Load(walletA)
	require.NoError(t, err)
	assert.Equal(t, 70, loaded.BackupWallets[0].Percentage)

	store.SaveError = errors.New("disk full")
	assert.Error(t, store.Save(walletA, profile))
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{backend: ""},
		{backend: "json"},
		{backend: "sqlite"},
		{backend: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.StorageConfig{
				StateDir: filepath.Join(tmpDir, tt.backend),
				Backend:  tt.backend,
			}

			store, err := state.Open(cfg, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.Save(walletA, sampleProfile(walletA, 7)))
			loaded, err := store.Load(walletA)
			require.NoError(t, err)
			assert.Equal(t, 7, loaded.InactivityDays)
		})
	}
}
