package ledger

import (
	"context"
	"errors"
	"fmt"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/metrics"
	"github.com/sheikh-saqib/giving-vault/internal/models"
)

// Recover reports intents whose transfer was issued (or about to be) when the
// process stopped. Each one needs ResolveIntent once the operator has checked
// the gateway.
func (v *Vault) Recover(ctx context.Context) ([]models.Intent, error) {
	pending, err := v.PendingIntents(ctx)
	if err != nil {
		return nil, err
	}
	for _, intent := range pending {
		log := v.opLogger(intent)
		log.Warn().
			Time("created_at", intent.CreatedAt).
			Msg("unresolved intent, transfer outcome unknown")
	}
	return pending, nil
}

func (v *Vault) PendingIntents(ctx context.Context) ([]models.Intent, error) {
	pending, err := v.store.PendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}
	metrics.SetPendingIntents(len(pending))
	return pending, nil
}

// ResolveIntent settles a pending intent. transferred=true means the gateway
// did move the funds, so the entry is committed as if the operation had
// finished; otherwise the intent is abandoned and any withdrawal reservation
// released. The receipt is nil for an abandoned intent.
func (v *Vault) ResolveIntent(ctx context.Context, id string, transferred bool) (receipt *models.Receipt, err error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()
	defer v.refreshPending(context.WithoutCancel(ctx))

	intent, err := v.store.GetIntent(ctx, id)
	if errors.Is(err, interfaces.ErrIntentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if intent.Status != models.IntentPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrIntentClosed, id, intent.Status)
	}

	log := v.opLogger(*intent)
	var res *reservation
	if intent.Kind == models.KindWithdrawal {
		res = v.ledger.reservationFor(*intent)
	}

	if !transferred {
		if err := v.store.AbandonIntent(ctx, id, "resolved: not transferred"); err != nil {
			return nil, fmt.Errorf("abandon intent: %w", err)
		}
		if res != nil {
			res.release()
		}
		log.Info().Msg("intent abandoned")
		return nil, nil
	}

	entry := models.NewLedgerEntry(v.newID(), *intent, v.now())
	if err := v.ledger.commit(ctx, entry, res); err != nil {
		log.Error().Err(err).Msg("resolve intent")
		return nil, err
	}
	if intent.Kind == models.KindDonation {
		metrics.AddDonated(intent.Amount)
	}
	log.Info().Msg("intent committed")
	return v.receipt(*intent, entry.CreatedAt), nil
}
