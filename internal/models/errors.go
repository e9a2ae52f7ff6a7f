package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrTrustDenied       = errors.New("trust denied")
	ErrInvalidTransition = errors.New("invalid report transition")
	ErrLineageCycle      = errors.New("fork lineage does not terminate")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ValidationError is returned for rejected input. Message is safe to show to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RateLimitError names the window that was exhausted.
type RateLimitError struct {
	Window string
	Limit  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %d per %s", e.Limit, e.Window)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// TrustError carries the gate that failed.
type TrustError struct {
	Reason string
}

func (e *TrustError) Error() string {
	return "trust denied: " + e.Reason
}

func (e *TrustError) Unwrap() error {
	return ErrTrustDenied
}
