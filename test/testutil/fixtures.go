package testutil

import (
	"bytes"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/crypto"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// Test wallets. Backups split 60/40.
const (
	TestWallet  = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	TestBackupA = "0x1111111111111111111111111111111111111111"
	TestBackupB = "0x2222222222222222222222222222222222222222"

	TestPrivateKey  = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	TestKeyMaterial = "test-key-material"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// TestBackups returns a valid backup set.
func TestBackups() []models.BackupWallet {
	return []models.BackupWallet{
		{Address: TestBackupA, Percentage: 60, Label: "cold"},
		{Address: TestBackupB, Percentage: 40, Label: "family"},
	}
}

// fastKDF runs a single PBKDF2 round. Everything else is real.
type fastKDF struct {
	*crypto.StdPrimitives
}

func (f fastKDF) DeriveKey(passphrase, salt []byte, _, keyLen int, alg crypto.HashAlgorithm) ([]byte, error) {
	return f.StdPrimitives.DeriveKey(passphrase, salt, 1, keyLen, alg)
}

// FastEncryptor returns an encryptor with a one-round key derivation,
// for tests that do not check wire compatibility.
func FastEncryptor() *crypto.Encryptor {
	return crypto.NewEncryptor(fastKDF{crypto.NewPrimitives(nil)})
}

// SampleHistory returns one completed and one failed rollback.
func SampleHistory(wallet string) models.RollbackHistory {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.RollbackHistory{
		WalletAddress: wallet,
		Rollbacks: []models.RollbackRecord{
			{
				ID:            "rb-2",
				WalletAddress: wallet,
				Status:        models.RollbackFailed,
				Error:         "insufficient funds for gas",
				Attempts:      1,
				CreatedAt:     created.Add(24 * time.Hour),
				UpdatedAt:     created.Add(24 * time.Hour),
			},
			{
				ID:            "rb-1",
				WalletAddress: wallet,
				Status:        models.RollbackCompleted,
				TxHash:        "0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b",
				Amount:        "1500000000000000000",
				Destination:   TestBackupA,
				Attempts:      1,
				CreatedAt:     created,
				UpdatedAt:     created,
			},
		},
	}
}
