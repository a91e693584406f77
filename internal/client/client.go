package client

import (
	"errors"
	"fmt"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/crypto"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/services/monitor"
	"github.com/rollbackwallet/rollbackctl/internal/services/rollback"
	"github.com/rollbackwallet/rollbackctl/internal/services/users"
	"github.com/rollbackwallet/rollbackctl/internal/services/wallets"
	"github.com/rollbackwallet/rollbackctl/internal/state"
	"github.com/rollbackwallet/rollbackctl/internal/transport"
)

// Client provides the high-level API for rollback wallet operations.
type Client struct {
	Users     *users.Service
	Wallets   *wallets.Service
	Rollback  *rollback.Service
	Monitor   *monitor.Service
	Profiles  ProfileManager
	Encryptor *crypto.Encryptor

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	store     state.Store
}

// ProfileManager provides access to locally stored wallet profiles.
type ProfileManager interface {
	ListProfiles() ([]*ProfileInfo, error)
	LoadProfile(wallet string) (*state.Profile, error)
	Reset(wallet string) error
	Migrate(backend string) (int, error)
}

// ProfileInfo summarizes a stored profile.
type ProfileInfo struct {
	WalletAddress  string `json:"wallet_address"`
	UserID         string `json:"user_id,omitempty"`
	Backups        int    `json:"backups"`
	InactivityDays int    `json:"inactivity_days"`
	Rollbacks      int    `json:"rollbacks"`
}

// New creates a new client from cfg.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if cfg.Encryption.Key == "" {
		return nil, errors.New("encryption key not configured")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	// Create transport
	transportClient := transport.NewTransport(&cfg.API, &cfg.Monitor, logger)

	// Create encryptor
	encryptor := crypto.NewEncryptor(nil)

	// Create profile store
	store, err := state.Open(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	return newClient(cfg, logger, transportClient, encryptor, store), nil
}

// NewWithTransport builds a client around an existing transport and
// store. Used by tests and embedders that bring their own backend.
func NewWithTransport(cfg *config.Config, logger *events.Logger, t transport.Transport, store state.Store) *Client {
	return newClient(cfg, logger, t, crypto.NewEncryptor(nil), store)
}

func newClient(cfg *config.Config, logger *events.Logger, t transport.Transport, encryptor *crypto.Encryptor, store state.Store) *Client {
	if cfg.Encryption.UsingDefaultKey {
		logger.Warn("Using the built-in development encryption key; set encryption.key before registering real wallets")
	}

	return &Client{
		Users:     users.NewService(t, encryptor, cfg.Encryption.Key, store, logger),
		Wallets:   wallets.NewService(t, store, logger),
		Rollback:  rollback.NewService(t, store, logger),
		Monitor:   monitor.NewService(t, logger),
		Profiles:  &profileManager{store: store, cfg: cfg.Storage, logger: logger},
		Encryptor: encryptor,
		config:    cfg,
		logger:    logger,
		transport: t,
		store:     store,
	}
}

// KeyMaterial returns the configured encryption passphrase.
func (c *Client) KeyMaterial() string {
	return c.config.Encryption.Key
}

// Close releases the transport and the profile store.
func (c *Client) Close() error {
	var errs []error
	if err := c.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// profileManager implements ProfileManager interface.
type profileManager struct {
	store  state.Store
	cfg    config.StorageConfig
	logger *events.Logger
}

func (pm *profileManager) ListProfiles() ([]*ProfileInfo, error) {
	if pm.store == nil {
		return nil, nil
	}

	wallets, err := pm.store.List()
	if err != nil {
		return nil, err
	}

	var infos []*ProfileInfo
	for _, wallet := range wallets {
		profile, err := pm.store.Load(wallet)
		if err != nil {
			continue // Skip profiles that can't be loaded
		}

		infos = append(infos, &ProfileInfo{
			WalletAddress:  profile.WalletAddress,
			UserID:         profile.UserID,
			Backups:        len(profile.BackupWallets),
			InactivityDays: profile.InactivityDays,
			Rollbacks:      len(profile.History),
		})
	}

	return infos, nil
}

func (pm *profileManager) LoadProfile(wallet string) (*state.Profile, error) {
	if pm.store == nil {
		return nil, state.ErrStateNotFound
	}
	return pm.store.Load(wallet)
}

func (pm *profileManager) Reset(wallet string) error {
	if pm.store == nil {
		return nil
	}
	return pm.store.Reset(wallet)
}

// Migrate copies every profile into a store of the given backend and
// returns how many profiles the target holds afterwards.
func (pm *profileManager) Migrate(backend string) (int, error) {
	if pm.store == nil {
		return 0, state.ErrStateNotFound
	}

	current := pm.cfg.Backend
	if current == "" {
		current = "json"
	}
	if backend == current {
		return 0, fmt.Errorf("profiles already use the %s backend", backend)
	}

	target := pm.cfg
	target.Backend = backend
	dst, err := state.Open(&target, pm.logger)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	if err := pm.store.Migrate(dst); err != nil {
		return 0, fmt.Errorf("migrate profiles: %w", err)
	}

	wallets, err := dst.List()
	if err != nil {
		return 0, err
	}
	return len(wallets), nil
}
