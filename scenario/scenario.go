// Package scenario replays YAML-described sequences of pool operations against
// a manager and a settlement vault.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	tokenregistry "github.com/defistate/clamm-engine-go/protocols/tokenregistry"
	"github.com/defistate/clamm-engine-go/protocols/tokenregistry/indexer"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Step kinds.
const (
	KindDeposit             = "deposit"
	KindWithdraw            = "withdraw"
	KindModifyLiquidity     = "modifyLiquidity"
	KindSwap                = "swap"
	KindDonate              = "donate"
	KindDonateRange         = "donateRange"
	KindSetProtocolFee      = "setProtocolFee"
	KindCollectProtocolFees = "collectProtocolFees"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is the decoded form of a scenario file.
type Scenario struct {
	Name     string            `yaml:"name"`
	Accounts map[string]string `yaml:"accounts"`
	Tokens   []TokenSpec       `yaml:"tokens"`
	Pools    []PoolSpec        `yaml:"pools"`
	Steps    []Step            `yaml:"steps"`
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolSpec declares a pool initialized before the first step. Exactly one of
// Tick and SqrtPriceX96 sets the starting price.
type PoolSpec struct {
	Name         string `yaml:"name"`
	Currency0    string `yaml:"currency0"`
	Currency1    string `yaml:"currency1"`
	Fee          uint32 `yaml:"fee"`
	TickSpacing  int32  `yaml:"tickSpacing"`
	Hooks        string `yaml:"hooks"`
	Tick         *int32 `yaml:"tick"`
	SqrtPriceX96 string `yaml:"sqrtPriceX96"`
	Owner        string `yaml:"owner"`
}

type FeeSpec struct {
	ZeroForOne uint16 `yaml:"zeroForOne"`
	OneForZero uint16 `yaml:"oneForZero"`
}

// Step is one operation. Amounts are integers in base units and may use an
// exponent, as in "1e18".
type Step struct {
	Kind    string `yaml:"kind"`
	Account string `yaml:"account"`
	Pool    string `yaml:"pool"`

	Currency string `yaml:"currency"`
	Amount   string `yaml:"amount"`

	TickLower int32  `yaml:"tickLower"`
	TickUpper int32  `yaml:"tickUpper"`
	Liquidity string `yaml:"liquidity"`
	Salt      string `yaml:"salt"`

	ZeroForOne        bool   `yaml:"zeroForOne"`
	SqrtPriceLimitX96 string `yaml:"sqrtPriceLimitX96"`

	Amount0  string   `yaml:"amount0"`
	Amount1  string   `yaml:"amount1"`
	Amounts0 []string `yaml:"amounts0"`
	Amounts1 []string `yaml:"amounts1"`
	Ticks    []int32  `yaml:"ticks"`

	ProtocolFee FeeSpec `yaml:"protocolFee"`

	// ExpectError makes the step pass only if it fails with a message containing this text.
	ExpectError string `yaml:"expectError"`
}

// Load reads and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a scenario and rejects unknown fields.
func Decode(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if _, err := sc.compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// plan is a scenario with every reference resolved.
type plan struct {
	tokens   *indexer.IndexableTokenSystem
	accounts map[string]common.Address
	pools    map[string]clamm.PoolKey
	inits    []poolInit
	steps    []step
}

type poolInit struct {
	name         string
	key          clamm.PoolKey
	owner        common.Address
	sqrtPriceX96 *big.Int
}

type step struct {
	Step
	index     int
	account   common.Address
	key       clamm.PoolKey
	currency  clamm.Currency
	amount    *big.Int
	liquidity *big.Int
	salt      [32]byte
	limit     *big.Int
	amount0   *big.Int
	amount1   *big.Int
	amounts0  []*big.Int
	amounts1  []*big.Int
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

// parseInt accepts plain integers and exponent forms that evaluate to an integer.
func parseInt(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || !r.IsInt() {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

func optionalInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseInt(s)
}

func (sc *Scenario) compile() (*plan, error) {
	p := &plan{
		accounts: make(map[string]common.Address, len(sc.Accounts)),
		pools:    make(map[string]clamm.PoolKey, len(sc.Pools)),
	}

	tokens := make([]tokenregistry.Token, 0, len(sc.Tokens))
	for _, t := range sc.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, invalid("token %s: bad address %q", t.Symbol, t.Address)
		}
		tokens = append(tokens, tokenregistry.Token{
			Address:  common.HexToAddress(t.Address),
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	var err error
	if p.tokens, err = indexer.NewIndexableTokenSystem(tokens); err != nil {
		return nil, invalid("%v", err)
	}

	for name, addr := range sc.Accounts {
		if !common.IsHexAddress(addr) {
			return nil, invalid("account %s: bad address %q", name, addr)
		}
		p.accounts[name] = common.HexToAddress(addr)
	}

	for _, ps := range sc.Pools {
		pi, err := p.compilePool(ps)
		if err != nil {
			return nil, err
		}
		if _, dup := p.pools[ps.Name]; dup {
			return nil, invalid("duplicate pool %q", ps.Name)
		}
		p.pools[ps.Name] = pi.key
		p.inits = append(p.inits, pi)
	}

	for i, s := range sc.Steps {
		st, err := p.compileStep(i, s)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, s.Kind, err)
		}
		p.steps = append(p.steps, st)
	}
	return p, nil
}

func (p *plan) account(ref string) (common.Address, error) {
	if a, ok := p.accounts[ref]; ok {
		return a, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, invalid("unknown account %q", ref)
}

// currency resolves a token symbol, a hex address or "native".
func (p *plan) currency(ref string) (clamm.Currency, error) {
	if strings.EqualFold(ref, "native") {
		return clamm.NativeCurrency, nil
	}
	if t, err := p.tokens.Resolve(ref); err == nil {
		return t.Address, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return clamm.Currency{}, invalid("unknown currency %q", ref)
}

func (p *plan) compilePool(ps PoolSpec) (poolInit, error) {
	if ps.Name == "" {
		return poolInit{}, invalid("pool without a name")
	}
	c0, err := p.currency(ps.Currency0)
	if err != nil {
		return poolInit{}, err
	}
	c1, err := p.currency(ps.Currency1)
	if err != nil {
		return poolInit{}, err
	}
	key := clamm.PoolKey{Currency0: c0, Currency1: c1, Fee: ps.Fee, TickSpacing: ps.TickSpacing}
	if ps.Hooks != "" {
		if !common.IsHexAddress(ps.Hooks) {
			return poolInit{}, invalid("pool %s: bad hooks address %q", ps.Name, ps.Hooks)
		}
		key.Hooks = common.HexToAddress(ps.Hooks)
	}

	pi := poolInit{name: ps.Name, key: key}
	switch {
	case ps.Tick != nil && ps.SqrtPriceX96 != "":
		return poolInit{}, invalid("pool %s: tick and sqrtPriceX96 are exclusive", ps.Name)
	case ps.Tick != nil:
		pi.sqrtPriceX96 = new(big.Int)
		if err := tickmath.GetSqrtRatioAtTick(pi.sqrtPriceX96, *ps.Tick); err != nil {
			return poolInit{}, invalid("pool %s: %v", ps.Name, err)
		}
	case ps.SqrtPriceX96 != "":
		if pi.sqrtPriceX96, err = parseInt(ps.SqrtPriceX96); err != nil {
			return poolInit{}, invalid("pool %s: %v", ps.Name, err)
		}
	default:
		return poolInit{}, invalid("pool %s: no starting price", ps.Name)
	}
	if ps.Owner != "" {
		if pi.owner, err = p.account(ps.Owner); err != nil {
			return poolInit{}, err
		}
	}
	return pi, nil
}

func (p *plan) compileStep(i int, s Step) (step, error) {
	st := step{Step: s, index: i}
	var err error
	if st.account, err = p.account(s.Account); err != nil {
		return step{}, err
	}

	needsPool := s.Kind != KindDeposit && s.Kind != KindWithdraw && s.Kind != KindCollectProtocolFees
	if needsPool {
		key, ok := p.pools[s.Pool]
		if !ok {
			return step{}, invalid("unknown pool %q", s.Pool)
		}
		st.key = key
	}

	switch s.Kind {
	case KindDeposit, KindWithdraw:
		if st.currency, err = p.currency(s.Currency); err != nil {
			return step{}, err
		}
		if st.amount, err = parseInt(s.Amount); err != nil {
			return step{}, invalid("amount: %v", err)
		}
	case KindCollectProtocolFees:
		if st.currency, err = p.currency(s.Currency); err != nil {
			return step{}, err
		}
		// empty collects everything accrued
		if st.amount, err = optionalInt(s.Amount); err != nil {
			return step{}, invalid("amount: %v", err)
		}
	case KindModifyLiquidity:
		if st.liquidity, err = parseInt(s.Liquidity); err != nil {
			return step{}, invalid("liquidity: %v", err)
		}
		if s.Salt != "" {
			st.salt = common.HexToHash(s.Salt)
		}
	case KindSwap:
		if st.amount, err = parseInt(s.Amount); err != nil {
			return step{}, invalid("amount: %v", err)
		}
		if st.limit, err = optionalInt(s.SqrtPriceLimitX96); err != nil {
			return step{}, invalid("sqrtPriceLimitX96: %v", err)
		}
	case KindDonate:
		if st.amount0, err = optionalInt(s.Amount0); err != nil {
			return step{}, invalid("amount0: %v", err)
		}
		if st.amount1, err = optionalInt(s.Amount1); err != nil {
			return step{}, invalid("amount1: %v", err)
		}
	case KindDonateRange:
		if st.amounts0, err = parseInts(s.Amounts0); err != nil {
			return step{}, invalid("amounts0: %v", err)
		}
		if st.amounts1, err = parseInts(s.Amounts1); err != nil {
			return step{}, invalid("amounts1: %v", err)
		}
	case KindSetProtocolFee:
	default:
		return step{}, invalid("unknown step kind %q", s.Kind)
	}
	return st, nil
}

func parseInts(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, err := parseInt(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
