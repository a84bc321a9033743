package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicDeposit   = "vault.deposit"
	TopicWithdraw  = "vault.withdrawal"
	TopicDonation  = "vault.donation"
	TopicShortfall = "vault.shortfall"
)

// PrincipalChanged is emitted after a deposit or withdrawal commits.
type PrincipalChanged struct {
	OperationID    string          `json:"operation_id"`
	Kind           string          `json:"kind"`
	Donor          string          `json:"donor"`
	Amount         decimal.Decimal `json:"amount"`
	Principal      decimal.Decimal `json:"principal"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (e PrincipalChanged) PartitionKey() string { return e.Donor }

type RewardsDonated struct {
	OperationID string          `json:"operation_id"`
	Beneficiary string          `json:"beneficiary"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (e RewardsDonated) PartitionKey() string { return e.Beneficiary }

// ShortfallDetected reports that the pooled balance fell below total principal.
type ShortfallDetected struct {
	VaultBalance   decimal.Decimal `json:"vault_balance"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
