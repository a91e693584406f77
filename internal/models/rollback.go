package models

import "time"

// RollbackStatus is the lifecycle state of a rollback.
type RollbackStatus string

const (
	RollbackPending    RollbackStatus = "pending"
	RollbackProcessing RollbackStatus = "processing"
	RollbackCompleted  RollbackStatus = "completed"
	RollbackFailed     RollbackStatus = "failed"
)

// Terminal reports whether no further transitions happen without a retry.
func (s RollbackStatus) Terminal() bool {
	return s == RollbackCompleted || s == RollbackFailed
}

// RollbackRecord is one entry of a wallet's rollback history.
type RollbackRecord struct {
	ID            string         `json:"id"`
	WalletAddress string         `json:"walletAddress"`
	Status        RollbackStatus `json:"status"`
	TxHash        string         `json:"txHash,omitempty"`
	Amount        string         `json:"amount,omitempty"` // Wei, decimal string
	Token         string         `json:"token,omitempty"`
	Destination   string         `json:"destination,omitempty"`
	Error         string         `json:"error,omitempty"`
	Attempts      int            `json:"attempts"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Retryable reports whether the rollback may be retried.
func (r *RollbackRecord) Retryable() bool {
	return r.Status == RollbackFailed
}

// RollbackHistory is the response of the history endpoint.
type RollbackHistory struct {
	WalletAddress string           `json:"walletAddress"`
	Rollbacks     []RollbackRecord `json:"rollbacks"`
}

// Summary counts history entries by status.
func (h *RollbackHistory) Summary() map[RollbackStatus]int {
	counts := make(map[RollbackStatus]int)
	for _, r := range h.Rollbacks {
		counts[r.Status]++
	}
	return counts
}

// WalletRequest addresses an operation at a single wallet.
type WalletRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,eth_addr"`
}

// RetryRequest asks the backend to re-run a failed rollback.
type RetryRequest struct {
	RollbackID string `json:"rollbackId" validate:"required"`
}

// RollbackEstimate is the backend's gas estimate for a rollback.
type RollbackEstimate struct {
	WalletAddress string `json:"walletAddress"`
	GasLimit      uint64 `json:"gasLimit"`
	GasPrice      string `json:"gasPrice"`  // Wei
	TotalCost     string `json:"totalCost"` // Wei
	Balance       string `json:"balance"`   // Wei
	TokenCount    int    `json:"tokenCount"`
	Feasible      bool   `json:"feasible"`
}

// ValidationResult reports whether a rollback could run right now.
type ValidationResult struct {
	WalletAddress string   `json:"walletAddress"`
	Valid         bool     `json:"valid"`
	Issues        []string `json:"issues,omitempty"`
}
