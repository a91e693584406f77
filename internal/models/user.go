package models

import (
	"strings"
	"time"
)

// BackupWallet receives a share of the funds when a rollback runs.
type BackupWallet struct {
	Address    string `json:"address" validate:"required,eth_addr"`
	Percentage int    `json:"percentage" validate:"required,gte=1,lte=100"`
	Label      string `json:"label,omitempty" validate:"max=64"`
}

// User is a wallet registered with the rollback service.
type User struct {
	ID                  string         `json:"id"`
	WalletAddress       string         `json:"walletAddress"`
	EncryptedPrivateKey string         `json:"encryptedPrivateKey,omitempty"`
	BackupWallets       []BackupWallet `json:"backupWallets"`
	InactivityDays      int            `json:"inactivityDays"`
	Email               string         `json:"email,omitempty"`
	MonitoringActive    bool           `json:"monitoringActive"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// RegisterRequest creates a user. The private key is only ever sent
// in its encrypted form.
type RegisterRequest struct {
	WalletAddress       string         `json:"walletAddress" validate:"required,eth_addr"`
	EncryptedPrivateKey string         `json:"encryptedPrivateKey" validate:"required,base64"`
	BackupWallets       []BackupWallet `json:"backupWallets" validate:"required,min=1,max=5,dive"`
	InactivityDays      int            `json:"inactivityDays" validate:"required,gte=1,lte=3650"`
	Email               string         `json:"email,omitempty" validate:"omitempty,email"`
}

// UpdateBackupsRequest replaces the backup wallet set of a user.
type UpdateBackupsRequest struct {
	WalletAddress string         `json:"walletAddress" validate:"required,eth_addr"`
	BackupWallets []BackupWallet `json:"backupWallets" validate:"required,min=1,max=5,dive"`
}

// NormalizeAddress lowercases an address for comparison and storage keys.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
