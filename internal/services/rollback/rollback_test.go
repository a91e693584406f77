package rollback_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/services/rollback"
	"github.com/rollbackwallet/rollbackctl/internal/state"
	"github.com/rollbackwallet/rollbackctl/internal/transport"
	"github.com/rollbackwallet/rollbackctl/test/testutil"
)

func TestHistory(t *testing.T) {
	mockTransport := transport.NewMockTransport()
	store := state.NewMockStore()
	service := rollback.NewService(mockTransport, store, testutil.NewTestLogger())

	require.NoError(t, store.Save(testutil.TestWallet, &state.Profile{WalletAddress: testutil.TestWallet}))

	mockTransport.AddResponse(http.MethodGet,
		"/api/rollback/history/"+strings.ToLower(testutil.TestWallet),
		testutil.SampleHistory(testutil.TestWallet))

	history, err := service.History(context.Background(), testutil.TestWallet)
	require.NoError(t, err)
	require.Len(t, history.Rollbacks, 2)
	assert.Equal(t, models.RollbackFailed, history.Rollbacks[0].Status)
	assert.Equal(t, 1, history.Summary()[models.RollbackCompleted])

	t.Run("cached in profile", func(t *testing.T) {
		profile, err := store.Load(testutil.TestWallet)
		require.NoError(t, err)
		require.Len(t, profile.History, 2)
		assert.Equal(t, "rb-2", profile.History[0].ID)
	})

	t.Run("invalid wallet", func(t *testing.T) {
		_, err := service.History(context.Background(), "nope")
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})
}

func TestHistory_NoProfile(t *testing.T) {
	mockTransport := transport.NewMockTransport()
	store := state.NewMockStore()
	service := rollback.NewService(mockTransport, store, testutil.NewTestLogger())

	mockTransport.AddResponse(http.MethodGet,
		"/api/rollback/history/"+strings.ToLower(testutil.TestBackupA),
		map[string]interface{}{"rollbacks": []interface{}{}})

	history, err := service.History(context.Background(), testutil.TestBackupA)
	require.NoError(t, err)
	assert.Empty(t, history.Rollbacks)
	assert.Equal(t, testutil.TestBackupA, history.WalletAddress)

	// History is only cached for registered wallets
	assert.Zero(t, store.Len())
}

func TestEstimateAndValidate(t *testing.T) {
	mockTransport := transport.NewMockTransport()
	service := rollback.NewService(mockTransport, nil, testutil.NewTestLogger())

	mockTransport.AddResponse(http.MethodPost, "/api/rollback/estimate", models.RollbackEstimate{
		WalletAddress: testutil.TestWallet,
		GasLimit:      21000,
		TotalCost:     "420000000000000",
		Feasible:      true,
	})
	mockTransport.AddResponse(http.MethodPost, "/api/rollback/validate", models.ValidationResult{
		WalletAddress: testutil.TestWallet,
		Valid:         false,
		Issues:        []string{"no backup wallets"},
	})

	estimate, err := service.Estimate(context.Background(), testutil.TestWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), estimate.GasLimit)
	assert.True(t, estimate.Feasible)

	req, _ := mockTransport.LastRequest()
	assert.Equal(t, models.WalletRequest{WalletAddress: testutil.TestWallet}, req.Payload)

	result, err := service.Validate(context.Background(), testutil.TestWallet)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"no backup wallets"}, result.Issues)

	_, err = service.Estimate(context.Background(), "0x123")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	_, err = service.Validate(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		resp   interface{}
		err    error
		target error
	}{
		{
			name: "accepted",
			id:   " rb-2 ",
			resp: models.RollbackRecord{ID: "rb-2", Status: models.RollbackPending, Attempts: 2},
		},
		{
			name:   "empty id",
			id:     "",
			target: models.ErrInvalidRequest,
		},
		{
			name:   "unknown rollback",
			id:     "rb-9",
			err:    &models.APIError{StatusCode: http.StatusNotFound},
			target: models.ErrRollbackNotFound,
		},
		{
			name:   "already completed",
			id:     "rb-1",
			err:    &models.APIError{StatusCode: http.StatusConflict, Message: "rollback is completed"},
			target: models.ErrRollbackNotRetryable,
		},
		{
			name:   "transport failure",
			id:     "rb-2",
			err:    models.ErrConnectionLost,
			target: models.ErrConnectionLost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTransport := transport.NewMockTransport()
			service := rollback.NewService(mockTransport, nil, testutil.NewTestLogger())

			if tt.resp != nil {
				mockTransport.AddResponse(http.MethodPost, "/api/rollback/retry", tt.resp)
			}
			if tt.err != nil {
				mockTransport.AddError(http.MethodPost, "/api/rollback/retry", tt.err)
			}

			record, err := service.Retry(context.Background(), tt.id)
			if tt.target == nil {
				require.NoError(t, err)
				assert.Equal(t, models.RollbackPending, record.Status)

				req, _ := mockTransport.LastRequest()
				assert.Equal(t, models.RetryRequest{RollbackID: "rb-2"}, req.Payload)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var rbErr *models.RollbackError
			if errors.As(err, &rbErr) {
				assert.Equal(t, models.ErrCodeRollback, rbErr.Code)
			}
		})
	}
}
