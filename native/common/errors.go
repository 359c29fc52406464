package common

import "errors"

// Error kinds shared by every contract. Packages wrap these with their own
// sentinels so callers can match on the kind with errors.Is.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotFound               = errors.New("not found")
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrNotEmpty               = errors.New("position not empty")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrPositionHealthy        = errors.New("position is healthy")
	ErrOracleUnavailable      = errors.New("oracle unavailable")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrZeroAddress            = errors.New("zero address")
	ErrAlreadyInitialized     = errors.New("contract already initialised")
	ErrNotInitialized         = errors.New("contract not initialised")
	ErrCallDepth              = errors.New("call depth exceeded")
)
