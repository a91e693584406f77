package models

import (
	"encoding/json"
	"time"
)

// MonitorStatus describes monitoring of one wallet.
type MonitorStatus struct {
	WalletAddress  string    `json:"walletAddress"`
	Active         bool      `json:"active"`
	InactivityDays int       `json:"inactivityDays"`
	LastActivity   time.Time `json:"lastActivity"`
	NextCheck      time.Time `json:"nextCheck"`
}

// InactiveFor returns how long the wallet has been idle at now.
func (s *MonitorStatus) InactiveFor(now time.Time) time.Duration {
	if s.LastActivity.IsZero() || now.Before(s.LastActivity) {
		return 0
	}
	return now.Sub(s.LastActivity)
}

// DaysUntilRollback returns the whole days left before the inactivity
// threshold is reached. Zero means the threshold has passed.
func (s *MonitorStatus) DaysUntilRollback(now time.Time) int {
	remaining := s.InactivityDays - int(s.InactiveFor(now)/(24*time.Hour))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ActivityType classifies activity stream events.
type ActivityType string

const (
	ActivityTransaction       ActivityType = "transaction"
	ActivityInactivityWarning ActivityType = "inactivity_warning"
	ActivityRollbackStarted   ActivityType = "rollback_started"
	ActivityRollbackCompleted ActivityType = "rollback_completed"
	ActivityRollbackFailed    ActivityType = "rollback_failed"
	ActivityError             ActivityType = "error"
)

// ActivityEvent is one message of the wallet activity stream.
type ActivityEvent struct {
	Type          ActivityType    `json:"type"`
	WalletAddress string          `json:"walletAddress"`
	TxHash        string          `json:"txHash,omitempty"`
	RollbackID    string          `json:"rollbackId,omitempty"`
	Message       string          `json:"message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Terminal reports whether the event ends a rollback.
func (e *ActivityEvent) Terminal() bool {
	return e.Type == ActivityRollbackCompleted || e.Type == ActivityRollbackFailed
}

// SubscribeMessage is sent when the activity stream opens.
type SubscribeMessage struct {
	Op            string `json:"op"` // "subscribe"
	WalletAddress string `json:"walletAddress"`
}
