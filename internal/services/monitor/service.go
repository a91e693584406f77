package monitor

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/transport"
)

// Service controls inactivity monitoring.
type Service struct {
	transport transport.Transport
	logger    *events.Logger
}

// NewService creates a monitor service.
func NewService(transport transport.Transport, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		logger:    logger.WithField("service", "monitor"),
	}
}

// Trigger starts monitoring of wallet.
func (s *Service) Trigger(ctx context.Context, wallet string) (*models.MonitorStatus, error) {
	req := models.WalletRequest{WalletAddress: wallet}
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	ctx = events.WithWallet(ctx, wallet)
	s.logger.WithField("wallet", wallet).Info("Starting monitoring")

	var status models.MonitorStatus
	if err := s.transport.PostJSON(ctx, "/api/monitor", req, &status); err != nil {
		return nil, fmt.Errorf("start monitoring: %w", err)
	}

	return &status, nil
}

// Status returns the monitoring state of wallet.
func (s *Service) Status(ctx context.Context, wallet string) (*models.MonitorStatus, error) {
	if !models.ValidAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", models.ErrInvalidRequest, wallet)
	}

	var status models.MonitorStatus
	path := "/api/monitor/" + url.PathEscape(models.NormalizeAddress(wallet))
	if err := s.transport.GetJSON(ctx, path, &status); err != nil {
		return nil, fmt.Errorf("monitor status: %w", err)
	}

	return &status, nil
}

// Watch streams activity for wallet until ctx is cancelled or the
// server closes the stream.
func (s *Service) Watch(ctx context.Context, wallet string) (<-chan models.ActivityEvent, error) {
	if !models.ValidAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", models.ErrInvalidRequest, wallet)
	}

	s.logger.WithField("wallet", wallet).Info("Watching wallet activity")

	stream, err := s.transport.StreamActivity(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("watch activity: %w", err)
	}

	return stream, nil
}

// WaitForRollback consumes the activity stream until a rollback ends
// and returns the terminal event. A non-empty rollbackID skips the
// terminal events of other rollbacks.
func (s *Service) WaitForRollback(ctx context.Context, wallet, rollbackID string) (*models.ActivityEvent, error) {
	stream, err := s.Watch(ctx, wallet)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return nil, models.ErrConnectionLost
			}
			if ev.Terminal() && (rollbackID == "" || ev.RollbackID == rollbackID) {
				return &ev, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
