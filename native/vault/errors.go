package vault

import "errors"

// Operation failures surfaced to callers. Preconditions are checked before any
// record or ledger mutation, so observing one of these means nothing changed.
var (
	// ErrZeroAmount rejects deposits and withdrawals of zero.
	ErrZeroAmount = errors.New("vault: amount must be greater than zero")
	// ErrUnauthorized rejects callers whose identity does not equal the
	// stored admin (price updates) or owner (withdrawals).
	ErrUnauthorized = errors.New("vault: caller does not match stored identity")
	// ErrInsufficientFunds rejects withdrawals above the record's receipt
	// balance.
	ErrInsufficientFunds = errors.New("vault: receipt balance too low")
	// ErrArithmeticOverflow fails closed when a balance or price computation
	// would exceed the representable range.
	ErrArithmeticOverflow = errors.New("vault: arithmetic overflow")
	// ErrArithmeticUnderflow fails closed on negative elapsed time or a
	// subtraction below zero.
	ErrArithmeticUnderflow = errors.New("vault: arithmetic underflow")
	// ErrNotInitialized signals an absent VaultState or VaultDeposit record.
	ErrNotInitialized = errors.New("vault: record not initialised")
	// ErrAlreadyInitialized rejects re-running an initialisation.
	ErrAlreadyInitialized = errors.New("vault: record already initialised")
	// ErrConstraintViolation rejects a supplied signing authority that does
	// not match the canonical derivation.
	ErrConstraintViolation = errors.New("vault: capability does not match canonical derivation")
	// ErrCustodyShortfall aborts a withdrawal whose payout exceeds the base
	// units held in vault custody.
	ErrCustodyShortfall = errors.New("vault: custody balance below payout")
	// ErrBackdateDisabled rejects the timestamp override outside development
	// deployments.
	ErrBackdateDisabled = errors.New("vault: backdating disabled")

	errNilState  = errors.New("vault: state not configured")
	errNilLedger = errors.New("vault: token ledger not configured")
)
