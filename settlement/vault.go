// Package settlement keeps account balances and the pool custody in memory and
// settles the transfers produced by the manager.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/defistate/clamm-engine-go/manager"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient account balance")
	ErrInsufficientCustody = errors.New("insufficient pool custody")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type balanceKey struct {
	account  common.Address
	currency clamm.Currency
}

// Vault is an in-memory ledger of account balances and the currencies held in
// custody for the pools. It is safe for concurrent use.
type Vault struct {
	mu       sync.Mutex
	balances map[balanceKey]*big.Int
	custody  map[clamm.Currency]*big.Int
}

var _ manager.Settler = (*Vault)(nil)

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[balanceKey]*big.Int),
		custody:  make(map[clamm.Currency]*big.Int),
	}
}

func get[K comparable](m map[K]*big.Int, k K) *big.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return new(big.Int)
}

// Deposit credits amount of currency to account.
func (v *Vault) Deposit(account common.Address, currency clamm.Currency, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	k := balanceKey{account, currency}
	v.balances[k] = new(big.Int).Add(get(v.balances, k), amount)
	return nil
}

// Withdraw debits amount of currency from account.
func (v *Vault) Withdraw(account common.Address, currency clamm.Currency, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	k := balanceKey{account, currency}
	bal := get(v.balances, k)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, account.Hex(), bal, currency.Hex(), amount)
	}
	v.balances[k] = new(big.Int).Sub(bal, amount)
	return nil
}

// Balance returns the balance of account in currency.
func (v *Vault) Balance(account common.Address, currency clamm.Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(get(v.balances, balanceKey{account, currency}))
}

// Custody returns the amount of currency held for the pools.
func (v *Vault) Custody(currency clamm.Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(get(v.custody, currency))
}

// Currencies returns every currency held in custody, in byte order.
func (v *Vault) Currencies() []clamm.Currency {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]clamm.Currency, 0, len(v.custody))
	for c := range v.custody {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Settle applies transfers atomically. Transfers are netted per account and per
// custody currency first; nothing changes when a net result would go negative.
func (v *Vault) Settle(ctx context.Context, transfers []manager.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	balances := make(map[balanceKey]*big.Int)
	custody := make(map[clamm.Currency]*big.Int)
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() == 0 {
			continue
		}
		k := balanceKey{t.Account, t.Currency}
		bal, ok := balances[k]
		if !ok {
			bal = new(big.Int).Set(get(v.balances, k))
			balances[k] = bal
		}
		held, ok := custody[t.Currency]
		if !ok {
			held = new(big.Int).Set(get(v.custody, t.Currency))
			custody[t.Currency] = held
		}

		bal.Sub(bal, t.Amount)
		held.Add(held, t.Amount)
	}

	// only the net result of the batch has to be covered
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() == 0 {
			continue
		}
		if bal := balances[balanceKey{t.Account, t.Currency}]; bal.Sign() < 0 {
			return fmt.Errorf("%w: %s short %s of %s", ErrInsufficientBalance, t.Account.Hex(), new(big.Int).Neg(bal), t.Currency.Hex())
		}
		if held := custody[t.Currency]; held.Sign() < 0 {
			return fmt.Errorf("%w: short %s of %s", ErrInsufficientCustody, new(big.Int).Neg(held), t.Currency.Hex())
		}
	}

	for k, bal := range balances {
		v.balances[k] = bal
	}
	for c, held := range custody {
		v.custody[c] = held
	}
	return nil
}
