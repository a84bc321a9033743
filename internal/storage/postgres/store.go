package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// ErrUnknownKind marks a row whose kind column holds no known entry kind.
var ErrUnknownKind = errors.New("unknown entry kind")

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

func (p *PostgresLedgerStore) LoadVault(ctx context.Context) (*models.VaultState, error) {
	const vaultQuery = `SELECT beneficiary, total_principal, created_at FROM vaults WHERE id = 1`

	state := models.VaultState{Principals: make(map[string]decimal.Decimal)}
	err := p.db.QueryRowContext(ctx, vaultQuery).Scan(&state.Beneficiary, &state.TotalPrincipal, &state.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrVaultNotFound
	}
	if err != nil {
		return nil, err
	}

	const principalsQuery = `SELECT donor, principal FROM donor_principals`

	rows, err := p.db.QueryContext(ctx, principalsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var donor string
		var principal decimal.Decimal
		if err := rows.Scan(&donor, &principal); err != nil {
			return nil, err
		}
		state.Principals[donor] = principal
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &state, nil
}

func (p *PostgresLedgerStore) CreateVault(ctx context.Context, beneficiary string) error {
	const query = `INSERT INTO vaults (id, beneficiary) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`

	res, err := p.db.ExecContext(ctx, query, beneficiary)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrVaultExists
	}
	return nil
}

func (p *PostgresLedgerStore) SaveIntent(ctx context.Context, intent models.Intent) error {
	const query = `INSERT INTO intents (id, idempotency_key, kind, donor, amount, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`

	key := sql.NullString{String: intent.IdempotencyKey, Valid: intent.IdempotencyKey != ""}
	_, err := p.db.ExecContext(ctx, query, intent.ID, key, string(intent.Kind), intent.Donor, intent.Amount, intent.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return interfaces.ErrDuplicateKey
	}
	return err
}

const intentColumns = `id, COALESCE(idempotency_key, ''), kind, donor, amount, status, reason, created_at, updated_at`

func (p *PostgresLedgerStore) IntentByKey(ctx context.Context, idempotencyKey string) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents
	WHERE idempotency_key = $1 AND status IN ('pending', 'committed') LIMIT 1`

	return p.scanIntent(p.db.QueryRowContext(ctx, query, idempotencyKey))
}

func (p *PostgresLedgerStore) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE id = $1`

	return p.scanIntent(p.db.QueryRowContext(ctx, query, id))
}

func (p *PostgresLedgerStore) scanIntent(row *sql.Row) (*models.Intent, error) {
	intent, err := scanIntentRow(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func scanIntentRow(row rowScanner) (models.Intent, error) {
	var intent models.Intent
	err := row.Scan(&intent.ID, &intent.IdempotencyKey, &intent.Kind, &intent.Donor, &intent.Amount,
		&intent.Status, &intent.Reason, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return models.Intent{}, err
	}
	if !intent.Kind.Valid() {
		return models.Intent{}, fmt.Errorf("intent %s: %w %q", intent.ID, ErrUnknownKind, intent.Kind)
	}
	return intent, nil
}

func (p *PostgresLedgerStore) PendingIntents(ctx context.Context) ([]models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE status = 'pending' ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []models.Intent
	for rows.Next() {
		intent, err := scanIntentRow(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return intents, nil
}

// AbandonIntent returns ErrIntentNotPending for unknown or already closed intents.
func (p *PostgresLedgerStore) AbandonIntent(ctx context.Context, id, reason string) error {
	const query = `UPDATE intents SET status = 'abandoned', reason = $2, updated_at = now()
	WHERE id = $1 AND status = 'pending'`

	res, err := p.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrIntentNotPending
	}
	return nil
}

// CommitEntry closes the intent, writes the journal row and moves principal in
// a single database transaction.
func (p *PostgresLedgerStore) CommitEntry(ctx context.Context, entry models.LedgerEntry) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const closeIntent = `UPDATE intents SET status = 'committed', updated_at = $2
	WHERE id = $1 AND status = 'pending'`

	res, err := dbTx.ExecContext(ctx, closeIntent, entry.IntentID, entry.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = interfaces.ErrIntentNotPending
		return err
	}

	const insertEntry = `INSERT INTO ledger_entries (id, intent_id, kind, donor, amount, principal_delta, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = dbTx.ExecContext(ctx, insertEntry, entry.ID, entry.IntentID, string(entry.Kind), entry.Donor,
		entry.Amount, entry.PrincipalDelta, entry.CreatedAt)
	if err != nil {
		return err
	}

	if !entry.PrincipalDelta.IsZero() {
		const upsertPrincipal = `INSERT INTO donor_principals (donor, principal, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (donor) DO UPDATE
		SET principal = donor_principals.principal + EXCLUDED.principal, updated_at = EXCLUDED.updated_at`

		_, err = dbTx.ExecContext(ctx, upsertPrincipal, entry.Donor, entry.PrincipalDelta, entry.CreatedAt)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == checkViolation {
			err = fmt.Errorf("principal of %s would become negative: %w", entry.Donor, err)
		}
		if err != nil {
			return err
		}

		const updateTotal = `UPDATE vaults SET total_principal = total_principal + $1 WHERE id = 1`

		_, err = dbTx.ExecContext(ctx, updateTotal, entry.PrincipalDelta)
		if err != nil {
			return err
		}
	}

	err = dbTx.Commit()
	return err
}

const entryColumns = `id, intent_id, kind, donor, amount, principal_delta, created_at`

func (p *PostgresLedgerStore) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresLedgerStore) GetEntriesByDonor(ctx context.Context, donor string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
	WHERE donor = $1 ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query, donor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.IntentID,
			&entry.Kind,
			&entry.Donor,
			&entry.Amount,
			&entry.PrincipalDelta,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if !entry.Kind.Valid() {
			return nil, fmt.Errorf("entry %s: %w %q", entry.ID, ErrUnknownKind, entry.Kind)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
