package indexer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	tokenregistry "github.com/defistate/clamm-engine-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned by Resolve for references matching no token.
var ErrUnknownToken = errors.New("unknown token")

// IndexableTokenSystem provides indexed access to a fixed token set.
type IndexableTokenSystem struct {
	byAddress map[common.Address]tokenregistry.Token
	bySymbol  map[string]tokenregistry.Token
	all       []tokenregistry.Token
}

var _ IndexedTokenSystem = (*IndexableTokenSystem)(nil)

// NewIndexableTokenSystem indexes tokens by address and by case-insensitive symbol.
// Addresses and symbols must be unique.
func NewIndexableTokenSystem(tokens []tokenregistry.Token) (*IndexableTokenSystem, error) {
	its := &IndexableTokenSystem{
		byAddress: make(map[common.Address]tokenregistry.Token, len(tokens)),
		bySymbol:  make(map[string]tokenregistry.Token, len(tokens)),
		all:       make([]tokenregistry.Token, 0, len(tokens)),
	}
	for _, t := range tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token %s has no symbol", t.Address.Hex())
		}
		if t.Decimals > tokenregistry.MaxDecimals {
			return nil, fmt.Errorf("token %s: decimals %d exceed %d", t.Symbol, t.Decimals, tokenregistry.MaxDecimals)
		}
		if _, dup := its.byAddress[t.Address]; dup {
			return nil, fmt.Errorf("duplicate token address %s", t.Address.Hex())
		}
		sym := strings.ToUpper(t.Symbol)
		if _, dup := its.bySymbol[sym]; dup {
			return nil, fmt.Errorf("duplicate token symbol %s", t.Symbol)
		}
		its.byAddress[t.Address] = t
		its.bySymbol[sym] = t
		its.all = append(its.all, t)
	}
	sort.Slice(its.all, func(i, j int) bool {
		return bytes.Compare(its.all[i].Address.Bytes(), its.all[j].Address.Bytes()) < 0
	})
	return its, nil
}

// GetByAddress retrieves a token by its address.
func (its *IndexableTokenSystem) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves a token by symbol, ignoring case.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) (tokenregistry.Token, bool) {
	t, ok := its.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Resolve accepts either a symbol or a hex address.
func (its *IndexableTokenSystem) Resolve(ref string) (tokenregistry.Token, error) {
	if t, ok := its.GetBySymbol(ref); ok {
		return t, nil
	}
	if common.IsHexAddress(ref) {
		if t, ok := its.byAddress[common.HexToAddress(ref)]; ok {
			return t, nil
		}
	}
	return tokenregistry.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, ref)
}

// All returns a copy of every token, sorted by address.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
