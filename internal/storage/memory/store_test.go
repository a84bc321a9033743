package memory

import (
	"context"
	"testing"
	"time"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *MemoryLedgerStore {
	t.Helper()
	s := NewMemoryLedgerStore()
	require.NoError(t, s.CreateVault(context.Background(), "0xBENEFICIARY"))
	return s
}

func newIntent(id, key string, kind models.EntryKind, donor string, amount int64) models.Intent {
	return models.Intent{
		ID:             id,
		IdempotencyKey: key,
		Kind:           kind,
		Donor:          donor,
		Amount:         decimal.NewFromInt(amount),
		CreatedAt:      time.Now().UTC(),
	}
}

func TestLoadVaultBeforeCreate(t *testing.T) {
	s := NewMemoryLedgerStore()

	_, err := s.LoadVault(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound)

	require.NoError(t, s.CreateVault(context.Background(), "0xB"))
	assert.ErrorIs(t, s.CreateVault(context.Background(), "0xC"), interfaces.ErrVaultExists)

	state, err := s.LoadVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xB", state.Beneficiary)
	assert.True(t, state.TotalPrincipal.IsZero())
}

func TestCommitEntryMovesPrincipal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	dep := newIntent("i-1", "", models.KindDeposit, "0xA", 70)
	require.NoError(t, s.SaveIntent(ctx, dep))
	require.NoError(t, s.CommitEntry(ctx, models.NewLedgerEntry("e-1", dep, time.Now().UTC())))

	wd := newIntent("i-2", "", models.KindWithdrawal, "0xA", 20)
	require.NoError(t, s.SaveIntent(ctx, wd))
	require.NoError(t, s.CommitEntry(ctx, models.NewLedgerEntry("e-2", wd, time.Now().UTC())))

	state, err := s.LoadVault(ctx)
	require.NoError(t, err)
	assert.True(t, state.Principals["0xA"].Equal(decimal.NewFromInt(50)))
	assert.True(t, state.TotalPrincipal.Equal(decimal.NewFromInt(50)))

	got, err := s.GetIntent(ctx, "i-2")
	require.NoError(t, err)
	assert.Equal(t, models.IntentCommitted, got.Status)

	entries, err := s.GetEntriesByDonor(ctx, "0xA")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCommitEntryIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	wd := newIntent("i-1", "", models.KindWithdrawal, "0xA", 5)
	require.NoError(t, s.SaveIntent(ctx, wd))

	err := s.CommitEntry(ctx, models.NewLedgerEntry("e-1", wd, time.Now().UTC()))
	require.Error(t, err)

	got, err := s.GetIntent(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, got.Status)
	entries, err := s.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitEntryRequiresPendingIntent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	dep := newIntent("i-1", "", models.KindDeposit, "0xA", 5)
	err := s.CommitEntry(ctx, models.NewLedgerEntry("e-1", dep, time.Now().UTC()))
	assert.ErrorIs(t, err, interfaces.ErrIntentNotFound)

	require.NoError(t, s.SaveIntent(ctx, dep))
	require.NoError(t, s.CommitEntry(ctx, models.NewLedgerEntry("e-1", dep, time.Now().UTC())))

	err = s.CommitEntry(ctx, models.NewLedgerEntry("e-2", dep, time.Now().UTC()))
	assert.ErrorIs(t, err, interfaces.ErrIntentNotPending)
}

func TestIdempotencyKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := newIntent("i-1", "k", models.KindDeposit, "0xA", 5)
	require.NoError(t, s.SaveIntent(ctx, first))
	assert.ErrorIs(t, s.SaveIntent(ctx, newIntent("i-2", "k", models.KindDeposit, "0xA", 5)), interfaces.ErrDuplicateKey)

	got, err := s.IntentByKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "i-1", got.ID)

	// abandoning frees the key
	require.NoError(t, s.AbandonIntent(ctx, "i-1", "transfer failed"))
	_, err = s.IntentByKey(ctx, "k")
	assert.ErrorIs(t, err, interfaces.ErrIntentNotFound)
	assert.ErrorIs(t, s.AbandonIntent(ctx, "i-1", "again"), interfaces.ErrIntentNotPending)

	retry := newIntent("i-3", "k", models.KindDeposit, "0xA", 5)
	require.NoError(t, s.SaveIntent(ctx, retry))
	require.NoError(t, s.CommitEntry(ctx, models.NewLedgerEntry("e-1", retry, time.Now().UTC())))

	got, err = s.IntentByKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "i-3", got.ID)
	assert.Equal(t, models.IntentCommitted, got.Status)
}

func TestPendingIntentsInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Now().UTC()

	for i, id := range []string{"c", "a", "b"} {
		in := newIntent(id, "", models.KindDeposit, "0xA", 1)
		in.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.SaveIntent(ctx, in))
	}
	require.NoError(t, s.AbandonIntent(ctx, "a", "gone"))

	pending, err := s.PendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].ID)
	assert.Equal(t, "b", pending[1].ID)
}

func TestLoadVaultReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	dep := newIntent("i-1", "", models.KindDeposit, "0xA", 10)
	require.NoError(t, s.SaveIntent(ctx, dep))
	require.NoError(t, s.CommitEntry(ctx, models.NewLedgerEntry("e-1", dep, time.Now().UTC())))

	state, err := s.LoadVault(ctx)
	require.NoError(t, err)
	state.Principals["0xA"] = decimal.NewFromInt(1000)

	again, err := s.LoadVault(ctx)
	require.NoError(t, err)
	assert.True(t, again.Principals["0xA"].Equal(decimal.NewFromInt(10)))
}
