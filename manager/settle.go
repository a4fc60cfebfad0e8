package manager

import (
	"context"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/ethereum/go-ethereum/common"
)

// Transfer moves one currency between an account and the pool custody.
// A positive Amount is paid by the account, a negative Amount is paid to it.
type Transfer struct {
	Account  common.Address `json:"account"`
	Currency clamm.Currency `json:"currency"`
	Amount   *big.Int       `json:"amount"`
}

// Settler moves assets for a committed operation. Settle must apply every
// transfer or none of them.
type Settler interface {
	Settle(ctx context.Context, transfers []Transfer) error
}

// deltaTransfers turns a delta owed by account into transfers, skipping zero amounts.
func deltaTransfers(account common.Address, key clamm.PoolKey, delta clamm.BalanceDelta) []Transfer {
	var out []Transfer
	if delta.Amount0 != nil && delta.Amount0.Sign() != 0 {
		out = append(out, Transfer{Account: account, Currency: key.Currency0, Amount: new(big.Int).Set(delta.Amount0)})
	}
	if delta.Amount1 != nil && delta.Amount1.Sign() != 0 {
		out = append(out, Transfer{Account: account, Currency: key.Currency1, Amount: new(big.Int).Set(delta.Amount1)})
	}
	return out
}
