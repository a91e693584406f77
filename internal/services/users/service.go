package users

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/state"
	"github.com/rollbackwallet/rollbackctl/internal/transport"
)

// Encrypter turns a secret into an encrypted blob.
type Encrypter interface {
	EncryptContext(ctx context.Context, plaintext, keyMaterial string) (string, error)
}

// RegisterInput is what a caller provides to register a wallet. The
// private key never leaves the process unencrypted.
type RegisterInput struct {
	WalletAddress  string
	PrivateKey     string
	BackupWallets  []models.BackupWallet
	InactivityDays int
	Email          string
}

// Service registers and looks up users.
type Service struct {
	transport   transport.Transport
	encrypter   Encrypter
	keyMaterial string
	store       state.Store
	logger      *events.Logger
}

// NewService creates a user service. store may be nil.
func NewService(transport transport.Transport, encrypter Encrypter, keyMaterial string, store state.Store, logger *events.Logger) *Service {
	return &Service{
		transport:   transport,
		encrypter:   encrypter,
		keyMaterial: keyMaterial,
		store:       store,
		logger:      logger.WithField("service", "users"),
	}
}

// Register encrypts the private key, submits the registration and
// remembers the resulting profile locally.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	wallet := strings.TrimSpace(in.WalletAddress)
	ctx = events.WithWallet(ctx, wallet)

	if strings.TrimSpace(in.PrivateKey) == "" {
		return nil, opError(models.ErrCodeValidation, "register", wallet,
			fmt.Errorf("%w: private key is required", models.ErrInvalidRequest))
	}

	req := models.RegisterRequest{
		WalletAddress:  wallet,
		BackupWallets:  in.BackupWallets,
		InactivityDays: in.InactivityDays,
		Email:          strings.TrimSpace(in.Email),
	}

	// Key derivation is slow; reject bad input first
	if err := models.ValidateRegistration(req); err != nil {
		return nil, opError(models.ErrCodeValidation, "register", wallet, err)
	}

	encrypted, err := s.encrypter.EncryptContext(ctx, in.PrivateKey, s.keyMaterial)
	if err != nil {
		return nil, opError(models.ErrCodeEncryption, "register", wallet, err)
	}
	req.EncryptedPrivateKey = encrypted

	return s.submit(ctx, "register", req, nil)
}

// Resubmit registers wallet again from its stored profile. The stored
// encrypted key is sent as is, so no passphrase is needed.
func (s *Service) Resubmit(ctx context.Context, wallet string) (*models.User, error) {
	wallet = strings.TrimSpace(wallet)
	ctx = events.WithWallet(ctx, wallet)

	if s.store == nil {
		return nil, opError(models.ErrCodeNotFound, "resubmit", wallet, state.ErrStateNotFound)
	}

	profile, err := s.store.Load(wallet)
	if err != nil {
		return nil, opError(models.ErrCodeNotFound, "resubmit", wallet, err)
	}

	req := models.RegisterRequest{
		WalletAddress:       profile.WalletAddress,
		EncryptedPrivateKey: profile.EncryptedPrivateKey,
		BackupWallets:       profile.BackupWallets,
		InactivityDays:      profile.InactivityDays,
		Email:               profile.Email,
	}

	return s.submit(ctx, "resubmit", req, profile)
}

// submit validates and posts req, then records the profile. prev, when
// set, keeps its registration time and cached history.
func (s *Service) submit(ctx context.Context, op string, req models.RegisterRequest, prev *state.Profile) (*models.User, error) {
	wallet := req.WalletAddress
	logger := s.logger.WithField("wallet", wallet)

	if err := models.Validate(req); err != nil {
		return nil, opError(models.ErrCodeValidation, op, wallet, err)
	}

	logger.WithFields(map[string]interface{}{
		"op":      op,
		"backups": len(req.BackupWallets),
	}).Info("Registering wallet")

	var user models.User
	if err := s.transport.PostJSON(ctx, "/api/users", req, &user); err != nil {
		return nil, opError(models.ErrCodeNetwork, op, wallet, err)
	}

	if s.store != nil {
		now := time.Now().UTC()
		profile := &state.Profile{RegisteredAt: now}
		if prev != nil {
			profile = prev.Clone()
		}
		profile.WalletAddress = models.NormalizeAddress(wallet)
		profile.EncryptedPrivateKey = req.EncryptedPrivateKey
		profile.BackupWallets = req.BackupWallets
		profile.InactivityDays = req.InactivityDays
		profile.Email = req.Email
		profile.UserID = user.ID
		profile.UpdatedAt = now

		if err := s.store.Save(wallet, profile); err != nil {
			logger.WithError(err).Warn("Failed to save local profile")
		}
	}

	logger.WithField("user_id", user.ID).Info("Wallet registered")
	return &user, nil
}

func opError(code, op, wallet string, err error) *models.RollbackError {
	return &models.RollbackError{Code: code, Op: op, Wallet: wallet, Err: err}
}

// Get fetches the user registered for wallet.
func (s *Service) Get(ctx context.Context, wallet string) (*models.User, error) {
	s.logger.WithField("wallet", wallet).Debug("Fetching user")

	var user models.User
	path := "/api/users/" + url.PathEscape(models.NormalizeAddress(wallet))
	if err := s.transport.GetJSON(ctx, path, &user); err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, wallet)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}
