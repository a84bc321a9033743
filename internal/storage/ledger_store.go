package storage

import (
	"context"
	"database/sql"
	"fmt"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/storage/memory"
	"github.com/sheikh-saqib/giving-vault/internal/storage/postgres"
)

// Open picks the ledger store for the process. Without a database the ledger
// lives in memory and is lost on restart.
func Open(ctx context.Context, db *sql.DB) (interfaces.LedgerStore, error) {
	if db == nil {
		return memory.NewMemoryLedgerStore(), nil
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return postgres.NewPostgresLedgerStore(db), nil
}

// Durable reports whether store survives a process restart.
func Durable(store interfaces.LedgerStore) bool {
	_, inMemory := store.(*memory.MemoryLedgerStore)
	return !inMemory
}
