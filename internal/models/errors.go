package models

import "errors"

// Sentinel errors returned by the settlement services. Handlers map these to
// problem responses; storage details never leak past this set.
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAlreadyHasActiveTask = errors.New("worker already has an active task of this type")
	ErrNotFoundOrWrongState = errors.New("order not found, not owned, or in the wrong state")
	ErrExpired              = errors.New("order has expired")
	ErrProofMissing         = errors.New("payment proof has not been uploaded")
	ErrSignatureInvalid     = errors.New("signature verification failed")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrFeatureDisabled      = errors.New("payin tasks are currently disabled")
	ErrAccountUnusable      = errors.New("collection account missing, inactive, or not payin-enabled")

	// ErrLedgerInconsistency is a defensive invariant check; it must never
	// fire in a healthy system and is logged as a critical alert when it does.
	ErrLedgerInconsistency = errors.New("ledger inconsistency detected")
)
