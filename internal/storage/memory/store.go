package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"fmt"
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex
	"time"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/giving-vault/internal/models"                // domain models: LedgerEntry, Intent
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Nothing survives a restart; it backs tests and the simulation mode of the server.
type MemoryLedgerStore struct {
	mu          sync.Mutex                 // protects every field below
	created     bool                       // CreateVault has been called
	beneficiary string                     // fixed at creation
	createdAt   time.Time                  // vault creation time
	principals  map[string]decimal.Decimal // donor -> principal, zero entries are kept
	total       decimal.Decimal            // sum of principals
	entries     []models.LedgerEntry       // committed journal in commit order
	intents     map[string]models.Intent   // intent ID -> intent
	keys        map[string]string          // idempotency key -> intent ID for live (pending or committed) intents
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		principals: make(map[string]decimal.Decimal),
		total:      decimal.Zero,
		entries:    make([]models.LedgerEntry, 0),
		intents:    make(map[string]models.Intent),
		keys:       make(map[string]string),
	}
}

func (m *MemoryLedgerStore) LoadVault(ctx context.Context) (*models.VaultState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return nil, interfaces.ErrVaultNotFound
	}

	// copy so callers can't modify internal state
	principals := make(map[string]decimal.Decimal, len(m.principals))
	for donor, p := range m.principals {
		principals[donor] = p
	}
	return &models.VaultState{
		Beneficiary:    m.beneficiary,
		Principals:     principals,
		TotalPrincipal: m.total,
		CreatedAt:      m.createdAt,
	}, nil
}

func (m *MemoryLedgerStore) CreateVault(ctx context.Context, beneficiary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created {
		return interfaces.ErrVaultExists
	}
	m.created = true
	m.beneficiary = beneficiary
	m.createdAt = time.Now().UTC()
	return nil
}

// SaveIntent records a pending intent. A live intent with the same
// idempotency key makes this fail with ErrDuplicateKey.
func (m *MemoryLedgerStore) SaveIntent(ctx context.Context, intent models.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.intents[intent.ID]; exists {
		return fmt.Errorf("intent %s already exists", intent.ID)
	}
	if intent.IdempotencyKey != "" {
		if _, exists := m.keys[intent.IdempotencyKey]; exists {
			return interfaces.ErrDuplicateKey
		}
		m.keys[intent.IdempotencyKey] = intent.ID
	}
	intent.Status = models.IntentPending
	m.intents[intent.ID] = intent
	return nil
}

func (m *MemoryLedgerStore) IntentByKey(ctx context.Context, idempotencyKey string) (*models.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.keys[idempotencyKey]
	if !exists {
		return nil, interfaces.ErrIntentNotFound
	}
	intent := m.intents[id]
	return &intent, nil
}

func (m *MemoryLedgerStore) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, exists := m.intents[id]
	if !exists {
		return nil, interfaces.ErrIntentNotFound
	}
	return &intent, nil
}

func (m *MemoryLedgerStore) PendingIntents(ctx context.Context) ([]models.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []models.Intent
	for _, intent := range m.intents {
		if intent.Status == models.IntentPending {
			pending = append(pending, intent)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// AbandonIntent closes a pending intent without touching principal and frees
// its idempotency key for a retry.
func (m *MemoryLedgerStore) AbandonIntent(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, exists := m.intents[id]
	if !exists {
		return interfaces.ErrIntentNotFound
	}
	if intent.Status != models.IntentPending {
		return interfaces.ErrIntentNotPending
	}
	intent.Status = models.IntentAbandoned
	intent.Reason = reason
	intent.UpdatedAt = time.Now().UTC()
	m.intents[id] = intent
	if intent.IdempotencyKey != "" {
		delete(m.keys, intent.IdempotencyKey)
	}
	return nil
}

// CommitEntry applies an entry and closes its intent. Either everything is
// applied or nothing is.
func (m *MemoryLedgerStore) CommitEntry(ctx context.Context, entry models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return interfaces.ErrVaultNotFound
	}
	intent, exists := m.intents[entry.IntentID]
	if !exists {
		return interfaces.ErrIntentNotFound
	}
	if intent.Status != models.IntentPending {
		return interfaces.ErrIntentNotPending
	}

	if !entry.PrincipalDelta.IsZero() {
		next := m.principals[entry.Donor].Add(entry.PrincipalDelta)
		if next.IsNegative() {
			return fmt.Errorf("principal of %s would become %s", entry.Donor, next)
		}
		m.principals[entry.Donor] = next
		m.total = m.total.Add(entry.PrincipalDelta)
	}

	intent.Status = models.IntentCommitted
	intent.UpdatedAt = entry.CreatedAt
	m.intents[intent.ID] = intent
	m.entries = append(m.entries, entry)
	return nil
}

// GetLedgerEntries returns a copy of all ledger entries stored in memory.
func (m *MemoryLedgerStore) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]models.LedgerEntry, len(m.entries))
	copy(copied, m.entries)
	return copied, nil
}

func (m *MemoryLedgerStore) GetEntriesByDonor(ctx context.Context, donor string) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.LedgerEntry
	for _, e := range m.entries {
		if e.Donor == donor {
			result = append(result, e)
		}
	}
	return result, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
