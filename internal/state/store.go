package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// Store persists local wallet profiles.
type Store interface {
	// Load retrieves the profile of a wallet.
	Load(wallet string) (*Profile, error)

	// Save persists the profile of a wallet.
	Save(wallet string, profile *Profile) error

	// Reset removes the profile of a wallet.
	Reset(wallet string) error

	// List returns all known wallet addresses.
	List() ([]string, error)

	// Lock acquires an exclusive lock for a wallet.
	Lock(wallet string) (UnlockFunc, error)

	// Migrate transfers every profile to target.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// UnlockFunc releases a wallet lock.
type UnlockFunc func()

// Errors
var (
	ErrStateNotFound = errors.New("state not found")
	ErrStateLocked   = errors.New("state is locked")
	ErrStateCorrupt  = errors.New("state file is corrupt")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

const lockTimeout = 5 * time.Second

// Profile is what the CLI remembers about a registered wallet. The
// private key is only held as an encrypted blob.
type Profile struct {
	WalletAddress       string                  `json:"wallet_address"`
	EncryptedPrivateKey string                  `json:"encrypted_private_key,omitempty"`
	BackupWallets       []models.BackupWallet   `json:"backup_wallets,omitempty"`
	InactivityDays      int                     `json:"inactivity_days"`
	Email               string                  `json:"email,omitempty"`
	UserID              string                  `json:"user_id,omitempty"`
	RegisteredAt        time.Time               `json:"registered_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	History             []models.RollbackRecord `json:"history,omitempty"`
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.BackupWallets != nil {
		c.BackupWallets = append([]models.BackupWallet(nil), p.BackupWallets...)
	}
	if p.History != nil {
		c.History = append([]models.RollbackRecord(nil), p.History...)
	}
	return &c
}

// Open returns the store selected by cfg.Backend.
func Open(cfg *config.StorageConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "json":
		return NewJSONStore(cfg.StateDir, logger)
	case "sqlite":
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.StateDir, "profiles.db"), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// migrate copies every profile from src to dst.
func migrate(src, dst Store, logger *events.Logger) error {
	wallets, err := src.List()
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}

	logger.WithField("count", len(wallets)).Info("Migrating profiles")

	for _, wallet := range wallets {
		profile, err := src.Load(wallet)
		if err != nil {
			logger.WithError(err).WithField("wallet", wallet).Error("Failed to load profile")
			continue
		}

		if err := dst.Save(wallet, profile); err != nil {
			return fmt.Errorf("save wallet %s: %w", wallet, err)
		}

		logger.WithField("wallet", wallet).Debug("Migrated profile")
	}

	return nil
}
