package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbackwallet/rollbackctl/internal/models"
)

const (
	primaryAddr = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	backupA     = "0x1111111111111111111111111111111111111111"
	backupB     = "0x2222222222222222222222222222222222222222"
	// Base64 of bytes 0..79.
	encryptedKey = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJygpKissLS4vMDEyMzQ1Njc4OTo7PD0+P0BBQkNERUZHSElKS0xNTk8="
)

func validRegister() models.RegisterRequest {
	return models.RegisterRequest{
		WalletAddress:       primaryAddr,
		EncryptedPrivateKey: encryptedKey,
		BackupWallets: []models.BackupWallet{
			{Address: backupA, Percentage: 60, Label: "cold"},
			{Address: backupB, Percentage: 40},
		},
		InactivityDays: 90,
	}
}

func TestValidate_RegisterRequest(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.RegisterRequest)
		field  string
		rule   string
	}{
		{
			name:   "valid",
			modify: func(r *models.RegisterRequest) {},
		},
		{
			name:   "missing wallet",
			modify: func(r *models.RegisterRequest) { r.WalletAddress = "" },
			field:  "walletAddress",
			rule:   "required",
		},
		{
			name:   "bad wallet",
			modify: func(r *models.RegisterRequest) { r.WalletAddress = "0x1234" },
			field:  "walletAddress",
			rule:   "eth_addr",
		},
		{
			name:   "key not base64",
			modify: func(r *models.RegisterRequest) { r.EncryptedPrivateKey = "not base64!" },
			field:  "encryptedPrivateKey",
			rule:   "base64",
		},
		{
			name:   "no backups",
			modify: func(r *models.RegisterRequest) { r.BackupWallets = nil },
			field:  "backupWallets",
			rule:   "required",
		},
		{
			name:   "inactivity too long",
			modify: func(r *models.RegisterRequest) { r.InactivityDays = 4000 },
			field:  "inactivityDays",
			rule:   "lte",
		},
		{
			name:   "bad email",
			modify: func(r *models.RegisterRequest) { r.Email = "nope" },
			field:  "email",
			rule:   "email",
		},
		{
			name:   "bad backup address",
			modify: func(r *models.RegisterRequest) { r.BackupWallets[1].Address = "xyz" },
			field:  "backupWallets[1].address",
			rule:   "eth_addr",
		},
		{
			name: "shares do not sum to 100",
			modify: func(r *models.RegisterRequest) {
				r.BackupWallets[1].Percentage = 30
			},
			field: "backupWallets",
			rule:  "percent_total",
		},
		{
			name: "primary as backup",
			modify: func(r *models.RegisterRequest) {
				r.BackupWallets[0].Address = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
			},
			field: "backupWallets",
			rule:  "not_primary",
		},
		{
			name: "duplicate backup",
			modify: func(r *models.RegisterRequest) {
				r.BackupWallets[1].Address = backupA
			},
			field: "backupWallets",
			rule:  "unique",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegister()
			tt.modify(&req)

			err := models.Validate(req)
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidRequest)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(tt.field, tt.rule), "got %v", verr.Fields)
		})
	}
}

func TestValidateRegistration(t *testing.T) {
	req := validRegister()
	req.EncryptedPrivateKey = ""
	assert.NoError(t, models.ValidateRegistration(req))
	assert.Error(t, models.Validate(req))

	req.BackupWallets[1].Percentage = 30
	var verr *models.ValidationError
	require.ErrorAs(t, models.ValidateRegistration(req), &verr)
	assert.True(t, verr.Has("backupWallets", "percent_total"))
	assert.False(t, verr.Has("encryptedPrivateKey", "required"))

	req = validRegister()
	req.EncryptedPrivateKey = "not base64!"
	require.ErrorAs(t, models.ValidateRegistration(req), &verr)
	assert.True(t, verr.Has("encryptedPrivateKey", "base64"))
}

func TestValidate_UpdateBackupsRequest(t *testing.T) {
	req := models.UpdateBackupsRequest{
		WalletAddress: primaryAddr,
		BackupWallets: []models.BackupWallet{{Address: backupA, Percentage: 100}},
	}
	assert.NoError(t, models.Validate(req))

	req.BackupWallets[0].Percentage = 50
	var verr *models.ValidationError
	require.ErrorAs(t, models.Validate(req), &verr)
	assert.True(t, verr.Has("backupWallets", "percent_total"))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, models.ValidAddress(primaryAddr))
	assert.True(t, models.ValidAddress(backupA))
	assert.False(t, models.ValidAddress(""))
	assert.False(t, models.ValidAddress("71C7656EC7ab88b098defB751B7401B5f6d8976F"))
	assert.False(t, models.ValidAddress("0xZZZ7656EC7ab88b098defB751B7401B5f6d8976F"))
}
