package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/giving-vault/internal/models"
)

var (
	ErrVaultNotFound    = errors.New("vault not found")
	ErrVaultExists      = errors.New("vault already exists")
	ErrIntentNotFound   = errors.New("intent not found")
	ErrIntentNotPending = errors.New("intent is not pending")
	ErrDuplicateKey     = errors.New("idempotency key already in use")
)

// LedgerStore is the durable side of the ledger. CommitEntry must apply the
// principal delta, the total, the journal row and the intent status change in
// one atomic step.
type LedgerStore interface {
	LoadVault(ctx context.Context) (*models.VaultState, error)
	CreateVault(ctx context.Context, beneficiary string) error

	SaveIntent(ctx context.Context, intent models.Intent) error
	IntentByKey(ctx context.Context, idempotencyKey string) (*models.Intent, error)
	GetIntent(ctx context.Context, id string) (*models.Intent, error)
	PendingIntents(ctx context.Context) ([]models.Intent, error)
	AbandonIntent(ctx context.Context, id, reason string) error

	CommitEntry(ctx context.Context, entry models.LedgerEntry) error
	GetEntriesByDonor(ctx context.Context, donor string) ([]models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)
}
