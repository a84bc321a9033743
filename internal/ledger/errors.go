package ledger

import "errors"

var (
	ErrInvalidAmount         = errors.New("amount must be a positive whole number of base units")
	ErrInvalidIdentity       = errors.New("identity must not be empty")
	ErrInsufficientPrincipal = errors.New("insufficient principal")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrNoRewardsAvailable    = errors.New("no rewards available")
	ErrNegativePrincipal     = errors.New("principal would become negative")
	ErrGatewayUnavailable    = errors.New("gateway unavailable")
	ErrCommitFailed          = errors.New("ledger commit failed after transfer")
	ErrOperationPending      = errors.New("an earlier operation is still pending resolution")
	ErrIdempotencyConflict   = errors.New("idempotency key reused for a different operation")
	ErrIntentNotFound        = errors.New("intent not found")
	ErrIntentClosed          = errors.New("intent already resolved")
	ErrBeneficiaryMismatch   = errors.New("beneficiary differs from the persisted vault")
	ErrInvariantViolation    = errors.New("total principal does not match the sum of donor principals")

	// ErrShortfallDetected is an observability signal, never an operation failure.
	ErrShortfallDetected = errors.New("vault balance below total principal")
)
