package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sheikh-saqib/giving-vault/internal/metrics"
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/sheikh-saqib/giving-vault/internal/models/events"
)

// DonateRewards moves the yield currently sitting in the vault to the
// beneficiary. The amount is computed from a fresh balance read while holding
// the same lock as deposits and withdrawals, so it can never include principal
// that is being deposited concurrently, and a second call with no new yield
// finds nothing to donate.
func (v *Vault) DonateRewards(ctx context.Context) (receipt *models.Receipt, err error) {
	started := time.Now()
	defer func() { metrics.RecordOperation("donate", err, started) }()

	receipt, err = v.donate(ctx)
	v.announceShortfall(ctx)
	if err != nil {
		return nil, err
	}
	v.publish(context.WithoutCancel(ctx), events.TopicDonation, events.RewardsDonated{
		OperationID: receipt.OperationID,
		Beneficiary: receipt.Donor,
		Amount:      receipt.Amount,
		OccurredAt:  receipt.CommittedAt,
	})
	return receipt, nil
}

func (v *Vault) donate(ctx context.Context) (*models.Receipt, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	// An unresolved intent means the pooled balance may hold funds the ledger
	// has not accounted for yet.
	pending, err := v.store.PendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %d unresolved intents", ErrOperationPending, len(pending))
	}

	snap, err := v.rewards.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Rewards.IsPositive() {
		return nil, ErrNoRewardsAvailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	beneficiary := v.ledger.Beneficiary()
	intent, err := v.openIntent(ctx, models.KindDonation, beneficiary, snap.Rewards, "")
	if err != nil {
		return nil, err
	}
	log := v.opLogger(intent)

	opCtx := context.WithoutCancel(ctx)
	if err := v.transfer(opCtx, intent, v.id, beneficiary, log); err != nil {
		v.abandon(opCtx, intent, err, log)
		return nil, err
	}

	entry := models.NewLedgerEntry(v.newID(), intent, v.now())
	if err := v.ledger.commit(opCtx, entry, nil); err != nil {
		log.Error().Err(err).Msg("donation transferred but not recorded, intent left pending")
		v.refreshPending(opCtx)
		return nil, err
	}
	metrics.AddDonated(snap.Rewards)

	receipt := v.receipt(intent, entry.CreatedAt)
	log.Info().Str("vault_balance", snap.VaultBalance.String()).Msg("rewards donated")
	return receipt, nil
}
