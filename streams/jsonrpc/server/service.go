package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine-go/manager"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/defistate/clamm-engine-go/protocols/tokenpoolregistry"
	tokenregistry "github.com/defistate/clamm-engine-go/protocols/tokenregistry"
	"github.com/defistate/clamm-engine-go/protocols/tokenregistry/indexer"
	"github.com/defistate/clamm-engine-go/settlement"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrNoVault       = errors.New("service has no vault")
	ErrNoTokens      = errors.New("service has no token registry")
	ErrNoPairs       = errors.New("service has no pair graph")
	ErrMissingAmount = errors.New("missing amount")
	ErrUnauthorized  = errors.New("sender not authorized")
)

// Authorizer decides whether the caller behind ctx may act as sender. The
// transport details of the call are available through rpc.PeerInfoFromContext.
type Authorizer func(ctx context.Context, sender common.Address) error

// InitializeArgs are the parameters of clamm_initialize.
type InitializeArgs struct {
	Sender       common.Address `json:"sender"`
	Key          clamm.PoolKey  `json:"key"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
}

// ModifyLiquidityArgs are the parameters of clamm_modifyLiquidity.
type ModifyLiquidityArgs struct {
	Sender         common.Address `json:"sender"`
	Key            clamm.PoolKey  `json:"key"`
	TickLower      int32          `json:"tickLower"`
	TickUpper      int32          `json:"tickUpper"`
	LiquidityDelta *big.Int       `json:"liquidityDelta"`
	Salt           common.Hash    `json:"salt"`
}

// ModifyLiquidityResult is the reply of clamm_modifyLiquidity.
type ModifyLiquidityResult struct {
	CallerDelta clamm.BalanceDelta `json:"callerDelta"`
	FeesAccrued clamm.BalanceDelta `json:"feesAccrued"`
}

// SwapArgs are the parameters of clamm_swap. A nil price limit does not bound the swap.
type SwapArgs struct {
	Sender            common.Address `json:"sender"`
	Key               clamm.PoolKey  `json:"key"`
	ZeroForOne        bool           `json:"zeroForOne"`
	AmountSpecified   *big.Int       `json:"amountSpecified"`
	SqrtPriceLimitX96 *big.Int       `json:"sqrtPriceLimitX96,omitempty"`
}

// SwapReceipt is the reply of clamm_swap.
type SwapReceipt struct {
	Delta            clamm.BalanceDelta `json:"delta"`
	AmountToProtocol *big.Int           `json:"amountToProtocol"`
	SwapFee          uint32             `json:"swapFee"`
	TicksCrossed     int                `json:"ticksCrossed"`
	Slot0            clamm.Slot0        `json:"slot0"`
}

// DonateArgs are the parameters of clamm_donate.
type DonateArgs struct {
	Sender  common.Address `json:"sender"`
	Key     clamm.PoolKey  `json:"key"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
}

// DonateRangeArgs are the parameters of clamm_donateRange.
type DonateRangeArgs struct {
	Sender   common.Address `json:"sender"`
	Key      clamm.PoolKey  `json:"key"`
	Amounts0 []*big.Int     `json:"amounts0"`
	Amounts1 []*big.Int     `json:"amounts1"`
	Ticks    []int32        `json:"ticks"`
}

// PositionArgs address one position of a pool.
type PositionArgs struct {
	Key       clamm.PoolKey  `json:"key"`
	Owner     common.Address `json:"owner"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Salt      common.Hash    `json:"salt"`
}

// Service exposes a Manager over JSON-RPC under the "clamm" namespace.
// Mutating calls are serialized, so concurrent clients queue instead of
// failing with clamm.ErrReentrant.
//
// Senders and vault accounts are taken from the call arguments. Without
// WithAuthorizer the surface is unauthenticated: any client may act for any
// account, which only suits simulation.
type Service struct {
	logger    Logger
	authorize Authorizer
	manager *manager.Manager
	vault   *settlement.Vault
	tokens  indexer.IndexedTokenSystem
	pairs   *tokenpoolregistry.TokenPoolSystem
	limiter *rate.Limiter

	mu sync.Mutex
}

// ServiceOption configures the Service.
type ServiceOption interface {
	apply(*Service)
}

type funcOption func(*Service)

func (f funcOption) apply(s *Service) {
	f(s)
}

func newOption(f func(*Service)) ServiceOption {
	return funcOption(f)
}

// WithAuthorizer checks the sender of every mutating call, and the account of
// deposits and withdrawals, before it reaches the manager or the vault.
func WithAuthorizer(a Authorizer) ServiceOption {
	return newOption(func(s *Service) {
		s.authorize = a
	})
}

// WithVault enables the deposit, withdraw and balance methods.
func WithVault(v *settlement.Vault) ServiceOption {
	return newOption(func(s *Service) {
		s.vault = v
	})
}

// WithTokens enables the token and spot price methods.
func WithTokens(t indexer.IndexedTokenSystem) ServiceOption {
	return newOption(func(s *Service) {
		s.tokens = t
	})
}

// WithPairs enables the pool lookup and routing methods. The graph must also
// receive the manager's snapshots to stay current.
func WithPairs(p *tokenpoolregistry.TokenPoolSystem) ServiceOption {
	return newOption(func(s *Service) {
		s.pairs = p
	})
}

// WithRateLimit bounds mutating calls to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) ServiceOption {
	return newOption(func(s *Service) {
		s.limiter = rate.NewLimiter(r, burst)
	})
}

// NewService wraps m. Without WithRateLimit mutating calls are unlimited.
func NewService(logger Logger, m *manager.Manager, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		return nil, errors.New("service: logger cannot be nil")
	}
	if m == nil {
		return nil, errors.New("service: manager cannot be nil")
	}
	s := &Service{
		logger:  logger,
		manager: m,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s, nil
}

// lock admits one mutating call made on behalf of sender.
func (s *Service) lock(ctx context.Context, sender common.Address) (func(), error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if s.authorize != nil {
		if err := s.authorize(ctx, sender); err != nil {
			s.logger.Warn("rejected call", "sender", sender.Hex(), "error", err)
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// Initialize creates a pool at the given price and returns its tick.
func (s *Service) Initialize(ctx context.Context, args InitializeArgs) (int32, error) {
	unlock, err := s.lock(ctx, args.Sender)
	if err != nil {
		return 0, err
	}
	defer unlock()
	if args.SqrtPriceX96 == nil {
		return 0, fmt.Errorf("%w: sqrtPriceX96", ErrMissingAmount)
	}
	return s.manager.Initialize(ctx, args.Sender, args.Key, args.SqrtPriceX96)
}

// ModifyLiquidity changes the sender's position and returns the caller delta and owed fees.
func (s *Service) ModifyLiquidity(ctx context.Context, args ModifyLiquidityArgs) (*ModifyLiquidityResult, error) {
	unlock, err := s.lock(ctx, args.Sender)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if args.LiquidityDelta == nil {
		args.LiquidityDelta = new(big.Int)
	}
	callerDelta, fees, err := s.manager.ModifyLiquidity(ctx, args.Sender, args.Key, pool.ModifyLiquidityParams{
		TickLower:      args.TickLower,
		TickUpper:      args.TickUpper,
		LiquidityDelta: args.LiquidityDelta,
		Salt:           args.Salt,
	})
	if err != nil {
		return nil, err
	}
	return &ModifyLiquidityResult{CallerDelta: callerDelta, FeesAccrued: fees}, nil
}

// Swap executes a swap for the sender and reports the pool's slot0 afterwards.
func (s *Service) Swap(ctx context.Context, args SwapArgs) (*SwapReceipt, error) {
	unlock, err := s.lock(ctx, args.Sender)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if args.AmountSpecified == nil {
		return nil, fmt.Errorf("%w: amountSpecified", ErrMissingAmount)
	}
	limit := args.SqrtPriceLimitX96
	if limit == nil {
		limit = pool.NoPriceLimit(args.ZeroForOne)
	}
	res, err := s.manager.Swap(ctx, args.Sender, args.Key, pool.SwapParams{
		ZeroForOne:        args.ZeroForOne,
		AmountSpecified:   args.AmountSpecified,
		SqrtPriceLimitX96: limit,
	})
	if err != nil {
		return nil, err
	}
	slot0, err := s.manager.Slot0(args.Key)
	if err != nil {
		return nil, err
	}
	return &SwapReceipt{
		Delta:            res.Delta,
		AmountToProtocol: res.AmountToProtocol,
		SwapFee:          res.SwapFee,
		TicksCrossed:     res.TicksCrossed,
		Slot0:            slot0,
	}, nil
}

// Donate gives amounts to the in-range liquidity.
func (s *Service) Donate(ctx context.Context, args DonateArgs) (clamm.BalanceDelta, error) {
	unlock, err := s.lock(ctx, args.Sender)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	defer unlock()
	return s.manager.Donate(ctx, args.Sender, args.Key, args.Amount0, args.Amount1)
}

// DonateRange donates to the liquidity at each of the given ticks.
func (s *Service) DonateRange(ctx context.Context, args DonateRangeArgs) (clamm.BalanceDelta, error) {
	unlock, err := s.lock(ctx, args.Sender)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	defer unlock()
	return s.manager.DonateRange(ctx, args.Sender, args.Key, args.Amounts0, args.Amounts1, args.Ticks)
}

// Deposit credits an account in the vault.
func (s *Service) Deposit(ctx context.Context, account common.Address, currency clamm.Currency, amount *big.Int) error {
	if s.vault == nil {
		return ErrNoVault
	}
	unlock, err := s.lock(ctx, account)
	if err != nil {
		return err
	}
	defer unlock()
	return s.vault.Deposit(account, currency, amount)
}

// Withdraw debits an account in the vault.
func (s *Service) Withdraw(ctx context.Context, account common.Address, currency clamm.Currency, amount *big.Int) error {
	if s.vault == nil {
		return ErrNoVault
	}
	unlock, err := s.lock(ctx, account)
	if err != nil {
		return err
	}
	defer unlock()
	return s.vault.Withdraw(account, currency, amount)
}

// Balance reads an account balance from the vault.
func (s *Service) Balance(account common.Address, currency clamm.Currency) (*big.Int, error) {
	if s.vault == nil {
		return nil, ErrNoVault
	}
	return s.vault.Balance(account, currency), nil
}

// Slot0 returns the pool's price, tick and fees.
func (s *Service) Slot0(key clamm.PoolKey) (clamm.Slot0, error) {
	return s.manager.Slot0(key)
}

// Liquidity returns the pool's in-range liquidity.
func (s *Service) Liquidity(key clamm.PoolKey) (*big.Int, error) {
	return s.manager.Liquidity(key)
}

// Pool returns the full view of one pool.
func (s *Service) Pool(key clamm.PoolKey) (clamm.PoolView, error) {
	return s.manager.PoolView(key)
}

// Pools returns every pool in PoolID order.
func (s *Service) Pools() []clamm.PoolView {
	return s.manager.Pools()
}

// Position returns nil when the position does not exist.
func (s *Service) Position(args PositionArgs) (*clamm.PositionView, error) {
	p, ok, err := s.manager.Position(args.Key, args.Owner, args.TickLower, args.TickUpper, args.Salt)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// Positions lists the positions of a pool.
func (s *Service) Positions(key clamm.PoolKey) ([]clamm.PositionView, error) {
	return s.manager.Positions(key)
}

// ProtocolFeesAccrued returns the uncollected protocol fees in currency.
func (s *Service) ProtocolFeesAccrued(currency clamm.Currency) *big.Int {
	return s.manager.ProtocolFeesAccrued(currency)
}

// Tokens lists the registered tokens.
func (s *Service) Tokens() ([]tokenregistry.Token, error) {
	if s.tokens == nil {
		return nil, ErrNoTokens
	}
	return s.tokens.All(), nil
}

// SpotPrice returns the price of one whole unit of the input currency as a
// decimal string in the output currency.
func (s *Service) SpotPrice(key clamm.PoolKey, zeroForOne bool) (string, error) {
	if s.tokens == nil {
		return "", ErrNoTokens
	}
	t0, ok := s.tokens.GetByAddress(key.Currency0)
	if !ok {
		return "", fmt.Errorf("%w: %s", indexer.ErrUnknownToken, key.Currency0.Hex())
	}
	t1, ok := s.tokens.GetByAddress(key.Currency1)
	if !ok {
		return "", fmt.Errorf("%w: %s", indexer.ErrUnknownToken, key.Currency1.Hex())
	}
	price, err := s.manager.SpotPrice(key, zeroForOne, t0.Decimals, t1.Decimals)
	if err != nil {
		return "", err
	}
	out := t1
	if !zeroForOne {
		out = t0
	}
	return out.FormatAmount(price), nil
}

// PoolsForCurrency returns the pools that trade currency.
func (s *Service) PoolsForCurrency(currency clamm.Currency) ([]clamm.PoolID, error) {
	if s.pairs == nil {
		return nil, ErrNoPairs
	}
	return s.pairs.PoolsForToken(currency), nil
}

// Route returns the shortest chain of pools from one currency to another. A
// zero maxHops uses the graph's default bound.
func (s *Service) Route(from, to clamm.Currency, maxHops int) ([]tokenpoolregistry.Hop, error) {
	if s.pairs == nil {
		return nil, ErrNoPairs
	}
	return s.pairs.Route(from, to, maxHops), nil
}
