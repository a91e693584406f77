package rollback

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

// Service queries and drives rollbacks.
type Service struct {
	transport transport.Transport
	store     state.Store
	logger    *events.Logger
}

// NewService creates a rollback service. store may be nil.
func NewService(transport transport.Transport, store state.Store, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		store:     store,
		logger:    logger.WithField("service", "rollback"),
	}
}

// History returns past rollbacks of wallet, newest first as sent by
// the server, and caches them in the local profile.
func (s *Service) History(ctx context.Context, wallet string) (*models.RollbackHistory, error) {
	if !models.ValidAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", models.ErrInvalidRequest, wallet)
	}

	s.logger.WithField("wallet", wallet).Debug("Fetching rollback history")

	var history models.RollbackHistory
	path := "/api/rollback/history/" + url.PathEscape(models.NormalizeAddress(wallet))
	if err := s.transport.GetJSON(ctx, path, &history); err != nil {
		return nil, fmt.Errorf("rollback history: %w", err)
	}
	if history.WalletAddress == "" {
		history.WalletAddress = wallet
	}

	s.cacheHistory(wallet, history.Rollbacks)
	return &history, nil
}

// Estimate asks the server what a rollback of wallet would cost.
func (s *Service) Estimate(ctx context.Context, wallet string) (*models.RollbackEstimate, error) {
	req := models.WalletRequest{WalletAddress: wallet}
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	var estimate models.RollbackEstimate
	if err := s.transport.PostJSON(ctx, "/api/rollback/estimate", req, &estimate); err != nil {
		return nil, fmt.Errorf("estimate rollback: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"wallet":   wallet,
		"gas":      estimate.GasLimit,
		"feasible": estimate.Feasible,
	}).Debug("Estimated rollback")

	return &estimate, nil
}

// Validate asks the server whether a rollback of wallet could run now.
func (s *Service) Validate(ctx context.Context, wallet string) (*models.ValidationResult, error) {
	req := models.WalletRequest{WalletAddress: wallet}
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	var result models.ValidationResult
	if err := s.transport.PostJSON(ctx, "/api/rollback/validate", req, &result); err != nil {
		return nil, fmt.Errorf("validate rollback: %w", err)
	}

	return &result, nil
}

// Retry re-runs a failed rollback.
func (s *Service) Retry(ctx context.Context, rollbackID string) (*models.RollbackRecord, error) {
	req := models.RetryRequest{RollbackID: strings.TrimSpace(rollbackID)}
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	s.logger.WithField("rollback_id", req.RollbackID).Info("Retrying rollback")

	var record models.RollbackRecord
	if err := s.transport.PostJSON(ctx, "/api/rollback/retry", req, &record); err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.NotFound():
				return nil, fmt.Errorf("%w: %s", models.ErrRollbackNotFound, req.RollbackID)
			case apiErr.StatusCode == 409:
				return nil, fmt.Errorf("%w: %s", models.ErrRollbackNotRetryable, apiErr.Message)
			}
		}
		return nil, &models.RollbackError{
			Code: models.ErrCodeRollback,
			Op:   "retry",
			Err:  err,
		}
	}

	return &record, nil
}

func (s *Service) cacheHistory(wallet string, records []models.RollbackRecord) {
	if s.store == nil {
		return
	}

	unlock, err := s.store.Lock(wallet)
	if err != nil {
		return
	}
	defer unlock()

	profile, err := s.store.Load(wallet)
	if err != nil {
		return
	}

	profile.History = records
	profile.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(wallet, profile); err != nil {
		s.logger.WithError(err).Warn("Failed to cache rollback history")
	}
}
