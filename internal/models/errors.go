package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes for structured error handling.
const (
	ErrCodeEncryption  = "ENCRYPTION_ERROR"
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeNetwork     = "NETWORK_ERROR"
	ErrCodeStorage     = "STORAGE_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
	ErrCodeRateLimit   = "RATE_LIMIT"
	ErrCodeServerError = "SERVER_ERROR"
	ErrCodeRollback    = "ROLLBACK_ERROR"
)

// Sentinel errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRollbackNotFound     = errors.New("rollback not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRollbackNotRetryable = errors.New("rollback is not retryable")
	ErrRateLimited          = errors.New("rate limited")
	ErrConnectionLost       = errors.New("connection lost")
)

// APIError represents an error from the API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is maps HTTP statuses onto sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrInvalidRequest:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RollbackError provides detailed failure information for an operation
// on a wallet.
type RollbackError struct {
	Code   string
	Op     string
	Wallet string
	Err    error
}

func (e *RollbackError) Error() string {
	if e.Wallet != "" {
		return fmt.Sprintf("%s [%s]: wallet %s: %v", e.Op, e.Code, e.Wallet, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s (%s=%s)", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s (%s)", f.Field, f.Rule)
}

// ValidationError lists every rule a payload failed.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Is makes every ValidationError match ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Has reports whether field failed rule.
func (e *ValidationError) Has(field, rule string) bool {
	for _, f := range e.Fields {
		if f.Field == field && f.Rule == rule {
			return true
		}
	}
	return false
}
