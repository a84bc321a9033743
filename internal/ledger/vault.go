package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/metrics"
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/sheikh-saqib/giving-vault/internal/models/events"
	"github.com/shopspring/decimal"
)

// Config wires a Vault to its collaborators.
type Config struct {
	VaultID     string // the vault's own account on the gateway
	Beneficiary string
	Store       interfaces.LedgerStore
	Gateway     interfaces.AssetGateway
	Publisher   interfaces.EventPublisher // optional
	Logger      zerolog.Logger

	// GatewayTimeout bounds each transfer. Zero leaves it to the gateway.
	GatewayTimeout time.Duration
}

// Vault is the giving vault: principal-affecting operations, donation of
// yield, and the read surface used by drivers.
//
// Deposit, Withdraw, DonateRewards and ResolveIntent run one at a time under
// the write side of opMu, across their whole validate-transfer-commit
// sequence. Reads that involve the pooled balance take the read side, so they
// never see a transfer whose ledger commit has not happened yet. Events are
// published only after opMu is released.
type Vault struct {
	id             string
	ledger         *Ledger
	rewards        *RewardCalculator
	store          interfaces.LedgerStore
	gateway        interfaces.AssetGateway
	publisher      interfaces.EventPublisher
	logger         zerolog.Logger
	gatewayTimeout time.Duration

	opMu sync.RWMutex

	now   func() time.Time
	newID func() string
}

// DepositRequest asks to move Amount base units from Donor into the vault.
type DepositRequest struct {
	Donor          string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// WithdrawRequest asks to return Amount base units of principal to Donor.
type WithdrawRequest struct {
	Donor          string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// New opens the ledger behind cfg.Store and returns a ready vault.
func New(ctx context.Context, cfg Config) (*Vault, error) {
	if cfg.VaultID == "" {
		return nil, fmt.Errorf("vault id: %w", ErrInvalidIdentity)
	}
	if cfg.Beneficiary == cfg.VaultID {
		return nil, fmt.Errorf("beneficiary must not be the vault itself: %w", ErrInvalidIdentity)
	}
	if cfg.Store == nil || cfg.Gateway == nil {
		return nil, errors.New("vault needs a store and a gateway")
	}

	l, err := Open(ctx, cfg.Store, cfg.Beneficiary)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		id:             cfg.VaultID,
		ledger:         l,
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		publisher:      cfg.Publisher,
		logger:         cfg.Logger.With().Str("vault", cfg.VaultID).Logger(),
		gatewayTimeout: cfg.GatewayTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	v.rewards = NewRewardCalculator(cfg.VaultID, cfg.Gateway, l, v.logger)
	return v, nil
}

func (v *Vault) ID() string { return v.id }

func (v *Vault) Beneficiary() string { return v.ledger.Beneficiary() }

func (v *Vault) PrincipalOf(donor string) decimal.Decimal { return v.ledger.PrincipalOf(donor) }

func (v *Vault) BalanceOf(donor string) decimal.Decimal { return v.ledger.BalanceOf(donor) }

func (v *Vault) TotalPrincipal() decimal.Decimal { return v.ledger.TotalPrincipal() }

func (v *Vault) Donors() []DonorPrincipal { return v.ledger.Donors() }

func (v *Vault) VaultBalance(ctx context.Context) (decimal.Decimal, error) {
	v.opMu.RLock()
	defer v.opMu.RUnlock()

	return v.rewards.VaultBalance(ctx)
}

func (v *Vault) StakingRewards(ctx context.Context) (decimal.Decimal, error) {
	snap, err := v.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Rewards, nil
}

// AccountBalance reads any account's asset balance from the gateway, e.g. a
// donor's wallet before depositing.
func (v *Vault) AccountBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	bal, err := v.gateway.BalanceOf(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return bal, nil
}

func (v *Vault) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := v.snapshot(ctx)
	v.announceShortfall(ctx)
	return snap, err
}

func (v *Vault) snapshot(ctx context.Context) (Snapshot, error) {
	v.opMu.RLock()
	defer v.opMu.RUnlock()

	return v.rewards.Snapshot(ctx)
}

// Deposit transfers the amount from the donor into the vault and credits the
// donor's principal only once the transfer succeeded and the entry is durable.
func (v *Vault) Deposit(ctx context.Context, req DepositRequest) (receipt *models.Receipt, err error) {
	started := time.Now()
	defer func() { metrics.RecordOperation("deposit", err, started) }()

	if err := v.validate(req.Donor, req.Amount); err != nil {
		return nil, err
	}

	receipt, err = v.deposit(ctx, req)
	if err == nil && !receipt.Replayed {
		v.publish(context.WithoutCancel(ctx), events.TopicDeposit, principalEvent(receipt))
	}
	return receipt, err
}

func (v *Vault) deposit(ctx context.Context, req DepositRequest) (*models.Receipt, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if r, err := v.replay(ctx, req.IdempotencyKey, models.KindDeposit, req.Donor, req.Amount); r != nil || err != nil {
		return r, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	intent, err := v.openIntent(ctx, models.KindDeposit, req.Donor, req.Amount, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	log := v.opLogger(intent)

	// Once the transfer is issued the caller can no longer cancel.
	opCtx := context.WithoutCancel(ctx)
	if err := v.transfer(opCtx, intent, req.Donor, v.id, log); err != nil {
		v.abandon(opCtx, intent, err, log)
		return nil, err
	}

	entry := models.NewLedgerEntry(v.newID(), intent, v.now())
	if err := v.ledger.commit(opCtx, entry, nil); err != nil {
		log.Error().Err(err).Msg("deposit transferred but not committed, intent left pending")
		v.refreshPending(opCtx)
		return nil, err
	}

	receipt := v.receipt(intent, entry.CreatedAt)
	log.Info().Str("principal", receipt.Principal.String()).Msg("deposit committed")
	return receipt, nil
}

// Withdraw returns up to the donor's own principal. The debit is reserved
// before the transfer and released untouched if the transfer fails.
func (v *Vault) Withdraw(ctx context.Context, req WithdrawRequest) (receipt *models.Receipt, err error) {
	started := time.Now()
	defer func() { metrics.RecordOperation("withdraw", err, started) }()

	if err := v.validate(req.Donor, req.Amount); err != nil {
		return nil, err
	}

	receipt, err = v.withdraw(ctx, req)
	if err == nil && !receipt.Replayed {
		v.publish(context.WithoutCancel(ctx), events.TopicWithdraw, principalEvent(receipt))
	}
	return receipt, err
}

func (v *Vault) withdraw(ctx context.Context, req WithdrawRequest) (*models.Receipt, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if r, err := v.replay(ctx, req.IdempotencyKey, models.KindWithdrawal, req.Donor, req.Amount); r != nil || err != nil {
		return r, err
	}
	if avail := v.ledger.Available(req.Donor); avail.LessThan(req.Amount) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientPrincipal, req.Amount, avail)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := v.ledger.reserve(req.Donor, req.Amount)
	if err != nil {
		v.logger.Error().Err(err).Str("donor", req.Donor).Msg("reservation refused after availability check")
		return nil, err
	}
	intent, err := v.openIntent(ctx, models.KindWithdrawal, req.Donor, req.Amount, req.IdempotencyKey)
	if err != nil {
		res.release()
		return nil, err
	}
	log := v.opLogger(intent)

	opCtx := context.WithoutCancel(ctx)
	if err := v.transfer(opCtx, intent, v.id, req.Donor, log); err != nil {
		res.release()
		v.abandon(opCtx, intent, err, log)
		return nil, err
	}

	entry := models.NewLedgerEntry(v.newID(), intent, v.now())
	if err := v.ledger.commit(opCtx, entry, res); err != nil {
		// The reservation stays held until the intent is resolved.
		log.Error().Err(err).Msg("withdrawal transferred but not committed, intent left pending")
		v.refreshPending(opCtx)
		return nil, err
	}

	receipt := v.receipt(intent, entry.CreatedAt)
	log.Info().Str("principal", receipt.Principal.String()).Msg("withdrawal committed")
	return receipt, nil
}

// Entries returns the committed journal, optionally for one donor only.
func (v *Vault) Entries(ctx context.Context, donor string) ([]models.LedgerEntry, error) {
	if donor == "" {
		return v.store.GetLedgerEntries(ctx)
	}
	return v.store.GetEntriesByDonor(ctx, donor)
}

func (v *Vault) validate(donor string, amount decimal.Decimal) error {
	if donor == "" {
		return ErrInvalidIdentity
	}
	if donor == v.id {
		return fmt.Errorf("%w: donor is the vault itself", ErrInvalidIdentity)
	}
	// checked before anything formats or inspects the digits
	if !models.InRange(amount) {
		return fmt.Errorf("%w: outside the %d-digit base unit range", ErrInvalidAmount, models.MaxBaseDigits)
	}
	if !amount.IsPositive() || !models.IsBaseUnits(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// replay returns the receipt of an already committed operation carrying the
// same idempotency key. A key reused for a different operation is rejected.
func (v *Vault) replay(ctx context.Context, key string, kind models.EntryKind, donor string, amount decimal.Decimal) (*models.Receipt, error) {
	if key == "" {
		return nil, nil
	}
	intent, err := v.store.IntentByKey(ctx, key)
	if errors.Is(err, interfaces.ErrIntentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if intent.Kind != kind || intent.Donor != donor || !intent.Amount.Equal(amount) {
		return nil, fmt.Errorf("%w: key %q", ErrIdempotencyConflict, key)
	}
	if intent.Status == models.IntentPending {
		return nil, ErrOperationPending
	}

	r := v.receipt(*intent, intent.UpdatedAt)
	r.Replayed = true
	return r, nil
}

func (v *Vault) openIntent(ctx context.Context, kind models.EntryKind, donor string, amount decimal.Decimal, key string) (models.Intent, error) {
	now := v.now()
	intent := models.Intent{
		ID:             v.newID(),
		IdempotencyKey: key,
		Kind:           kind,
		Donor:          donor,
		Amount:         amount,
		Status:         models.IntentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := v.store.SaveIntent(ctx, intent); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateKey) {
			return models.Intent{}, ErrOperationPending
		}
		return models.Intent{}, fmt.Errorf("save intent: %w", err)
	}
	return intent, nil
}

// transfer moves the intent's amount, using the intent ID as the gateway
// reference.
func (v *Vault) transfer(ctx context.Context, intent models.Intent, from, to string, log zerolog.Logger) error {
	if v.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.gatewayTimeout)
		defer cancel()
	}
	log.Debug().Str("from", from).Str("to", to).Msg("issuing transfer")
	if err := v.gateway.Transfer(ctx, intent.ID, from, to, intent.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (v *Vault) abandon(ctx context.Context, intent models.Intent, cause error, log zerolog.Logger) {
	log.Warn().Err(cause).Msg("transfer failed, ledger unchanged")
	if err := v.store.AbandonIntent(ctx, intent.ID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("abandon intent")
		v.refreshPending(ctx)
	}
}

func (v *Vault) refreshPending(ctx context.Context) {
	pending, err := v.store.PendingIntents(ctx)
	if err != nil {
		v.logger.Error().Err(err).Msg("count pending intents")
		return
	}
	metrics.SetPendingIntents(len(pending))
}

func (v *Vault) receipt(intent models.Intent, at time.Time) *models.Receipt {
	r := &models.Receipt{
		OperationID:    intent.ID,
		Kind:           intent.Kind,
		Donor:          intent.Donor,
		Amount:         intent.Amount,
		Principal:      decimal.Zero,
		TotalPrincipal: v.ledger.TotalPrincipal(),
		CommittedAt:    at,
	}
	if intent.Kind != models.KindDonation {
		r.Principal = v.ledger.PrincipalOf(intent.Donor)
	}
	return r
}

func (v *Vault) opLogger(intent models.Intent) zerolog.Logger {
	return v.logger.With().
		Str("op_id", intent.ID).
		Str("op", string(intent.Kind)).
		Str("donor", intent.Donor).
		Str("amount", intent.Amount.String()).
		Logger()
}

// announceShortfall publishes a shortfall the calculator has seen begin since
// the last call. Callers must not hold opMu.
func (v *Vault) announceShortfall(ctx context.Context) {
	snap, ok := v.rewards.takeShortfall()
	if !ok {
		return
	}
	v.publish(context.WithoutCancel(ctx), events.TopicShortfall, events.ShortfallDetected{
		VaultBalance:   snap.VaultBalance,
		TotalPrincipal: snap.TotalPrincipal,
		Shortfall:      snap.Shortfall,
		OccurredAt:     snap.TakenAt,
	})
}

// publish never fails the operation; the ledger is already committed.
// Callers must not hold opMu.
func (v *Vault) publish(ctx context.Context, topic string, event any) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.Publish(ctx, topic, event); err != nil {
		v.logger.Warn().Err(err).Str("topic", topic).Msg("publish event")
	}
}

func principalEvent(r *models.Receipt) events.PrincipalChanged {
	return events.PrincipalChanged{
		OperationID:    r.OperationID,
		Kind:           string(r.Kind),
		Donor:          r.Donor,
		Amount:         r.Amount,
		Principal:      r.Principal,
		TotalPrincipal: r.TotalPrincipal,
		OccurredAt:     r.CommittedAt,
	}
}
