package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/metrics"
	"github.com/shopspring/decimal"
)

// Snapshot is one consistent reading of the vault's yield position.
type Snapshot struct {
	VaultBalance   decimal.Decimal `json:"vault_balance"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
	Rewards        decimal.Decimal `json:"staking_rewards"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	TakenAt        time.Time       `json:"taken_at"`
}

// Err returns ErrShortfallDetected when the pooled balance does not cover
// total principal.
func (s Snapshot) Err() error {
	if s.Shortfall.IsPositive() {
		return ErrShortfallDetected
	}
	return nil
}

// RewardCalculator derives undistributed yield from the ledger and a fresh
// gateway balance. Nothing is cached between calls.
type RewardCalculator struct {
	vaultID string
	gateway interfaces.AssetGateway
	ledger  *Ledger
	logger  zerolog.Logger

	mu          sync.Mutex
	inShortfall bool
	// unannounced holds the snapshot that began the current shortfall until
	// takeShortfall hands it out.
	unannounced *Snapshot
}

func NewRewardCalculator(vaultID string, gateway interfaces.AssetGateway, l *Ledger, logger zerolog.Logger) *RewardCalculator {
	return &RewardCalculator{
		vaultID: vaultID,
		gateway: gateway,
		ledger:  l,
		logger:  logger,
	}
}

func (c *RewardCalculator) VaultBalance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := c.gateway.BalanceOf(ctx, c.vaultID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	metrics.SetVaultBalance(bal)
	return bal, nil
}

// Snapshot reads the pooled balance and compares it with total principal.
// Rewards are floored at zero; a shortfall is reported, never returned as an
// error.
func (c *RewardCalculator) Snapshot(ctx context.Context) (Snapshot, error) {
	bal, err := c.VaultBalance(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	total := c.ledger.TotalPrincipal()

	snap := Snapshot{
		VaultBalance:   bal,
		TotalPrincipal: total,
		Rewards:        decimal.Zero,
		Shortfall:      decimal.Zero,
		TakenAt:        time.Now().UTC(),
	}
	diff := bal.Sub(total)
	if diff.IsNegative() {
		snap.Shortfall = diff.Neg()
		c.raiseShortfall(snap)
		return snap, nil
	}

	snap.Rewards = diff.Floor()
	c.mu.Lock()
	if c.inShortfall {
		c.logger.Info().Str("vault_balance", bal.String()).Str("total_principal", total.String()).Msg("vault shortfall cleared")
	}
	c.inShortfall = false
	c.mu.Unlock()
	return snap, nil
}

func (c *RewardCalculator) raiseShortfall(snap Snapshot) {
	metrics.IncShortfall()

	c.mu.Lock()
	entering := !c.inShortfall
	c.inShortfall = true
	if entering {
		c.unannounced = &snap
	}
	c.mu.Unlock()

	if !entering {
		return
	}
	c.logger.Warn().
		Err(snap.Err()).
		Str("vault_balance", snap.VaultBalance.String()).
		Str("total_principal", snap.TotalPrincipal.String()).
		Str("shortfall", snap.Shortfall.String()).
		Msg("pooled balance below total principal")
}

// takeShortfall returns the snapshot that began the current shortfall, once.
func (c *RewardCalculator) takeShortfall() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unannounced == nil {
		return Snapshot{}, false
	}
	snap := *c.unannounced
	c.unannounced = nil
	return snap, true
}
