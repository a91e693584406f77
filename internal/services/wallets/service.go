package wallets

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/state"
	"github.com/rollbackwallet/rollbackctl/internal/transport"
)

// Service manages backup wallets.
type Service struct {
	transport transport.Transport
	store     state.Store
	logger    *events.Logger
}

// NewService creates a wallet service. store may be nil.
func NewService(transport transport.Transport, store state.Store, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		store:     store,
		logger:    logger.WithField("service", "wallets"),
	}
}

type backupsResponse struct {
	WalletAddress string                `json:"walletAddress"`
	BackupWallets []models.BackupWallet `json:"backupWallets"`
}

func walletPath(wallet string) string {
	return "/api/wallets/" + url.PathEscape(models.NormalizeAddress(wallet))
}

// List returns the backup wallets configured for wallet.
func (s *Service) List(ctx context.Context, wallet string) ([]models.BackupWallet, error) {
	s.logger.WithField("wallet", wallet).Debug("Fetching backup wallets")

	var resp backupsResponse
	if err := s.transport.GetJSON(ctx, walletPath(wallet), &resp); err != nil {
		return nil, fmt.Errorf("list backup wallets: %w", err)
	}

	s.logger.WithField("count", len(resp.BackupWallets)).Debug("Fetched backup wallets")
	return resp.BackupWallets, nil
}

// UpdateBackups replaces the backup wallets of wallet.
func (s *Service) UpdateBackups(ctx context.Context, wallet string, backups []models.BackupWallet) (*models.User, error) {
	req := models.UpdateBackupsRequest{
		WalletAddress: wallet,
		BackupWallets: backups,
	}
	if err := models.Validate(req); err != nil {
		return nil, &models.RollbackError{
			Code:   models.ErrCodeValidation,
			Op:     "update backups",
			Wallet: wallet,
			Err:    err,
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"wallet":  wallet,
		"backups": len(backups),
	}).Info("Updating backup wallets")

	var user models.User
	if err := s.transport.PutJSON(ctx, walletPath(wallet)+"/backups", req, &user); err != nil {
		return nil, fmt.Errorf("update backup wallets: %w", err)
	}

	s.syncProfile(wallet, backups)
	return &user, nil
}

// syncProfile mirrors a successful update into the local profile.
func (s *Service) syncProfile(wallet string, backups []models.BackupWallet) {
	if s.store == nil {
		return
	}

	unlock, err := s.store.Lock(wallet)
	if err != nil {
		s.logger.WithError(err).Warn("Could not lock local profile")
		return
	}
	defer unlock()

	profile, err := s.store.Load(wallet)
	if err != nil {
		return
	}

	profile.BackupWallets = backups
	profile.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(wallet, profile); err != nil {
		s.logger.WithError(err).Warn("Failed to update local profile")
	}
}
