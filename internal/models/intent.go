package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus tracks an intent through its lifecycle.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCommitted IntentStatus = "committed"
	IntentAbandoned IntentStatus = "abandoned"
)

// Intent is the durable record of an operation written before its external
// transfer is issued. A pending intent found after a restart means the
// transfer outcome is unknown and has to be reconciled.
type Intent struct {
	ID             string
	IdempotencyKey string
	Kind           EntryKind
	Donor          string
	Amount         decimal.Decimal
	Status         IntentStatus
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Receipt is returned to callers for a committed operation.
type Receipt struct {
	OperationID    string          `json:"operation_id"`
	Kind           EntryKind       `json:"kind"`
	Donor          string          `json:"donor"`
	Amount         decimal.Decimal `json:"amount"`
	Principal      decimal.Decimal `json:"principal"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
	Replayed       bool            `json:"replayed"`
	CommittedAt    time.Time       `json:"committed_at"`
}

// VaultState is the persisted aggregate loaded on startup.
type VaultState struct {
	Beneficiary    string
	Principals     map[string]decimal.Decimal
	TotalPrincipal decimal.Decimal
	CreatedAt      time.Time
}
