// Package memory is a simulated asset gateway. Balances live in a map, yield
// and losses are injected by hand, and transfers can be made to fail.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("gateway unavailable")
)

// Transfer records one successful transfer.
type Transfer struct {
	Reference string
	From      string
	To        string
	Amount    decimal.Decimal
}

type Gateway struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	transfers   []Transfer
	failNext    int
	failWith    error
	unavailable bool
}

func New() *Gateway {
	return &Gateway{balances: make(map[string]decimal.Decimal)}
}

func (g *Gateway) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unavailable {
		return decimal.Zero, ErrUnavailable
	}
	return g.balances[account], nil
}

func (g *Gateway) Transfer(ctx context.Context, reference, from, to string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unavailable {
		return ErrUnavailable
	}
	if g.failNext > 0 {
		g.failNext--
		return g.failWith
	}
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount %s must be positive", amount)
	}
	if g.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from, g.balances[from], amount)
	}
	g.balances[from] = g.balances[from].Sub(amount)
	g.balances[to] = g.balances[to].Add(amount)
	g.transfers = append(g.transfers, Transfer{Reference: reference, From: from, To: to, Amount: amount})
	return nil
}

// Credit adds funds to an account out of thin air: a faucet for donors, or
// staking yield when the account is the vault.
func (g *Gateway) Credit(account string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.balances[account] = g.balances[account].Add(amount)
}

// Debit removes funds without a counterparty, e.g. slashing. The balance
// never goes below zero.
func (g *Gateway) Debit(account string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.balances[account].Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	g.balances[account] = next
}

// FailTransfers makes the next n transfers fail with err.
func (g *Gateway) FailTransfers(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		err = errors.New("transfer rejected")
	}
	g.failNext = n
	g.failWith = err
}

func (g *Gateway) SetUnavailable(unavailable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unavailable = unavailable
}

// Transfers returns the successful transfers in order.
func (g *Gateway) Transfers() []Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Transfer, len(g.transfers))
	copy(out, g.transfers)
	return out
}

var _ interfaces.AssetGateway = (*Gateway)(nil)
