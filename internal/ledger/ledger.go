package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/metrics"
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/shopspring/decimal"
)

// Ledger keeps the committed donor -> principal map and the total principal.
// It holds a reference to the storage layer, which is written before any
// in-memory change becomes visible to readers.
type Ledger struct {
	store interfaces.LedgerStore // durable side, can be any storage implementation

	mu          sync.RWMutex               // protects the fields below
	beneficiary string                     // fixed at vault creation
	principal   map[string]decimal.Decimal // committed principal per donor
	total       decimal.Decimal            // always the sum of principal
	reserved    map[string]decimal.Decimal // principal held by in-flight withdrawals
}

// DonorPrincipal is one row of the principal map.
type DonorPrincipal struct {
	Donor     string          `json:"donor"`
	Principal decimal.Decimal `json:"principal"`
}

// Open loads the persisted vault, or creates it with zero principal and the
// given beneficiary. Reservations of withdrawals that were still pending when
// the process stopped are restored so their principal cannot be spent twice.
func Open(ctx context.Context, store interfaces.LedgerStore, beneficiary string) (*Ledger, error) {
	if beneficiary == "" {
		return nil, fmt.Errorf("beneficiary: %w", ErrInvalidIdentity)
	}

	state, err := store.LoadVault(ctx)
	if errors.Is(err, interfaces.ErrVaultNotFound) {
		if err := store.CreateVault(ctx, beneficiary); err != nil && !errors.Is(err, interfaces.ErrVaultExists) {
			return nil, fmt.Errorf("create vault: %w", err)
		}
		state, err = store.LoadVault(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	if state.Beneficiary != beneficiary {
		return nil, fmt.Errorf("%w: persisted %s, configured %s", ErrBeneficiaryMismatch, state.Beneficiary, beneficiary)
	}

	l := &Ledger{
		store:       store,
		beneficiary: state.Beneficiary,
		principal:   state.Principals,
		total:       state.TotalPrincipal,
		reserved:    make(map[string]decimal.Decimal),
	}
	if l.principal == nil {
		l.principal = make(map[string]decimal.Decimal)
	}
	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}

	pending, err := store.PendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}
	for _, intent := range pending {
		if intent.Kind == models.KindWithdrawal {
			l.reserved[intent.Donor] = l.reserved[intent.Donor].Add(intent.Amount)
		}
	}

	metrics.SetTotalPrincipal(l.total)
	return l, nil
}

func (l *Ledger) Beneficiary() string {
	return l.beneficiary
}

// PrincipalOf returns the committed principal of donor, zero if never seen.
func (l *Ledger) PrincipalOf(donor string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.principal[donor]
}

// BalanceOf is the receipt-style view of PrincipalOf.
func (l *Ledger) BalanceOf(donor string) decimal.Decimal {
	return l.PrincipalOf(donor)
}

func (l *Ledger) TotalPrincipal() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.total
}

// Available is the principal a donor can still withdraw: committed principal
// minus what in-flight withdrawals hold.
func (l *Ledger) Available(donor string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.available(donor)
}

func (l *Ledger) available(donor string) decimal.Decimal {
	avail := l.principal[donor].Sub(l.reserved[donor])
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Donors returns every known donor, including those withdrawn to zero.
func (l *Ledger) Donors() []DonorPrincipal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]DonorPrincipal, 0, len(l.principal))
	for donor, p := range l.principal {
		out = append(out, DonorPrincipal{Donor: donor, Principal: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Donor < out[j].Donor })
	return out
}

// CheckInvariants verifies that no principal is negative and that the total
// equals the sum of all principals.
func (l *Ledger) CheckInvariants() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum := decimal.Zero
	for donor, p := range l.principal {
		if p.IsNegative() {
			return fmt.Errorf("%w: %s has %s", ErrNegativePrincipal, donor, p)
		}
		sum = sum.Add(p)
	}
	if !sum.Equal(l.total) {
		return fmt.Errorf("%w: sum %s, total %s", ErrInvariantViolation, sum, l.total)
	}
	return nil
}

// applyDelta moves a donor's principal and the total by the same signed
// amount, both or neither.
func (l *Ledger) applyDelta(donor string, delta decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.applyDeltaLocked(donor, delta)
}

func (l *Ledger) applyDeltaLocked(donor string, delta decimal.Decimal) error {
	next := l.principal[donor].Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s by %s", ErrNegativePrincipal, donor, delta)
	}
	l.principal[donor] = next
	l.total = l.total.Add(delta)
	return nil
}

// commit durably records entry and only then applies it in memory. A non-nil
// reservation is consumed as part of the same in-memory step.
func (l *Ledger) commit(ctx context.Context, entry models.LedgerEntry, res *reservation) error {
	if err := l.store.CommitEntry(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	var err error
	if res != nil {
		err = res.commit()
	} else if !entry.PrincipalDelta.IsZero() {
		err = l.applyDelta(entry.Donor, entry.PrincipalDelta)
	}
	if err != nil {
		return err
	}

	metrics.SetTotalPrincipal(l.TotalPrincipal())
	return nil
}

// reservation holds part of a donor's principal for a withdrawal whose
// transfer has not settled yet. Readers keep seeing the committed principal.
type reservation struct {
	l      *Ledger
	donor  string
	amount decimal.Decimal
	done   bool
}

func (l *Ledger) reserve(donor string, amount decimal.Decimal) (*reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.available(donor).LessThan(amount) {
		return nil, fmt.Errorf("%w: reserve %s for %s", ErrNegativePrincipal, amount, donor)
	}
	l.reserved[donor] = l.reserved[donor].Add(amount)
	return &reservation{l: l, donor: donor, amount: amount}, nil
}

// reservationFor adopts a reservation restored by Open for a pending intent.
func (l *Ledger) reservationFor(intent models.Intent) *reservation {
	return &reservation{l: l, donor: intent.Donor, amount: intent.Amount}
}

func (r *reservation) commit() error {
	if r.done {
		return nil
	}
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if err := r.l.applyDeltaLocked(r.donor, r.amount.Neg()); err != nil {
		return err
	}
	r.l.unreserveLocked(r.donor, r.amount)
	r.done = true
	return nil
}

func (r *reservation) release() {
	if r.done {
		return
	}
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	r.l.unreserveLocked(r.donor, r.amount)
	r.done = true
}

func (l *Ledger) unreserveLocked(donor string, amount decimal.Decimal) {
	left := l.reserved[donor].Sub(amount)
	if left.IsPositive() {
		l.reserved[donor] = left
		return
	}
	delete(l.reserved, donor)
}
