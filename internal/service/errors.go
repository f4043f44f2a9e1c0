package service

import (
	"errors"
	"fmt"
)

var (
	ErrChargerNotFound        = errors.New("charger not found")
	ErrAlreadyExists          = errors.New("charger already exists")
	ErrInvalidTransition      = errors.New("invalid charger status transition")
	ErrConflictingTransaction = errors.New("charger already has an active transaction")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAlreadyStopped         = errors.New("transaction already stopped")
	ErrNoActiveTransaction    = errors.New("no active transaction")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrCommandRejected        = errors.New("command rejected by charger")
	// ErrPersistence wraps every failure reported by the storage layer.
	ErrPersistence = errors.New("persistence error")
)

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
