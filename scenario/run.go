package scenario

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/clamm-engine-go/manager"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	tokenregistry "github.com/defistate/clamm-engine-go/protocols/tokenregistry"
	"github.com/defistate/clamm-engine-go/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"
)

const kindInitialize = "initialize"

var ErrUnexpectedOutcome = errors.New("unexpected step outcome")

// Logger receives progress of a run.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Env is what a scenario runs against.
type Env struct {
	Manager *manager.Manager
	Vault   *settlement.Vault
	Fees    *manager.StaticFeeController
}

// NewEnv builds a fresh manager settled by an empty vault. snapshots may be nil.
func NewEnv(logger Logger, reg prometheus.Registerer, snapshots manager.Snapshotter) (*Env, error) {
	env := &Env{
		Vault: settlement.NewVault(),
		Fees:  manager.NewStaticFeeController(clamm.ProtocolFee{}),
	}
	mgr, err := manager.New(&manager.Config{
		Logger:        logger,
		Registry:      reg,
		Settler:       env.Vault,
		FeeController: env.Fees,
		Snapshots:     snapshots,
	})
	if err != nil {
		return nil, err
	}
	env.Manager = mgr
	return env, nil
}

// StepResult is the outcome of one step. Index is -1 for pool initializations.
type StepResult struct {
	Index   int                  `json:"index"`
	Kind    string               `json:"kind"`
	Account common.Address       `json:"account"`
	Pool    string               `json:"pool,omitempty"`
	Delta   *clamm.BalanceDelta  `json:"delta,omitempty"`
	Amount  *big.Int             `json:"amount,omitempty"`
	Tick    *int32               `json:"tick,omitempty"`
	Err     string               `json:"error,omitempty"`
	Changes clamm.PoolSystemDiff `json:"changes"`
}

// Report is the outcome of a run.
type Report struct {
	Name    string                `json:"name"`
	Results []StepResult          `json:"results"`
	Pools   []clamm.PoolView      `json:"pools"`
	Tokens  []tokenregistry.Token `json:"tokens"`
	// Digest is the BLAKE3 hash of the final pool views; equal runs give equal digests.
	Digest string `json:"digest"`
}

// Run initializes the declared pools and executes the steps in order. It stops
// at the first step whose outcome differs from what the step expects and
// returns the report so far along with the error.
func Run(ctx context.Context, env *Env, sc *Scenario, logger Logger) (*Report, error) {
	p, err := sc.compile()
	if err != nil {
		return nil, err
	}
	report := &Report{Name: sc.Name, Tokens: p.tokens.All()}

	for _, pi := range p.inits {
		before := env.Manager.Pools()
		tick, err := env.Manager.Initialize(ctx, pi.owner, pi.key, pi.sqrtPriceX96)
		res := StepResult{Index: -1, Kind: kindInitialize, Account: pi.owner, Pool: pi.name}
		if err != nil {
			res.Err = err.Error()
			report.Results = append(report.Results, res)
			return report.finish(env), fmt.Errorf("initialize pool %s: %w", pi.name, err)
		}
		res.Tick = &tick
		res.Changes = clamm.Differ(before, env.Manager.Pools())
		report.Results = append(report.Results, res)
		logger.Debug("pool initialized", "pool", pi.name, "id", pi.key.ID().Hex(), "tick", tick)
	}

	for _, st := range p.steps {
		if err := ctx.Err(); err != nil {
			return report.finish(env), err
		}
		before := env.Manager.Pools()
		res := StepResult{Index: st.index, Kind: st.Kind, Account: st.account, Pool: st.Pool}
		stepErr := execute(ctx, env, st, &res)
		res.Changes = clamm.Differ(before, env.Manager.Pools())
		if stepErr != nil {
			res.Err = stepErr.Error()
		}
		report.Results = append(report.Results, res)

		switch {
		case stepErr != nil && st.ExpectError == "":
			return report.finish(env), fmt.Errorf("step %d (%s): %w", st.index, st.Kind, stepErr)
		case stepErr == nil && st.ExpectError != "":
			return report.finish(env), fmt.Errorf("%w: step %d (%s) succeeded, expected %q", ErrUnexpectedOutcome, st.index, st.Kind, st.ExpectError)
		case stepErr != nil && !strings.Contains(stepErr.Error(), st.ExpectError):
			return report.finish(env), fmt.Errorf("%w: step %d (%s) failed with %q, expected %q", ErrUnexpectedOutcome, st.index, st.Kind, stepErr, st.ExpectError)
		}
		logger.Debug("step executed", "index", st.index, "kind", st.Kind, "error", res.Err)
	}

	report.finish(env)
	logger.Info("scenario finished", "name", sc.Name, "steps", len(p.steps), "digest", report.Digest)
	return report, nil
}

func execute(ctx context.Context, env *Env, st step, res *StepResult) error {
	mgr := env.Manager
	setDelta := func(d clamm.BalanceDelta) { res.Delta = &d }

	switch st.Kind {
	case KindDeposit:
		return env.Vault.Deposit(st.account, st.currency, st.amount)
	case KindWithdraw:
		return env.Vault.Withdraw(st.account, st.currency, st.amount)
	case KindModifyLiquidity:
		delta, _, err := mgr.ModifyLiquidity(ctx, st.account, st.key, pool.ModifyLiquidityParams{
			TickLower:      st.TickLower,
			TickUpper:      st.TickUpper,
			LiquidityDelta: st.liquidity,
			Salt:           st.salt,
		})
		if err != nil {
			return err
		}
		setDelta(delta)
	case KindSwap:
		limit := st.limit
		if limit == nil {
			limit = pool.NoPriceLimit(st.ZeroForOne)
		}
		out, err := mgr.Swap(ctx, st.account, st.key, pool.SwapParams{
			ZeroForOne:        st.ZeroForOne,
			AmountSpecified:   st.amount,
			SqrtPriceLimitX96: limit,
		})
		if err != nil {
			return err
		}
		setDelta(out.Delta)
		res.Amount = out.AmountToProtocol
	case KindDonate:
		delta, err := mgr.Donate(ctx, st.account, st.key, st.amount0, st.amount1)
		if err != nil {
			return err
		}
		setDelta(delta)
	case KindDonateRange:
		delta, err := mgr.DonateRange(ctx, st.account, st.key, st.amounts0, st.amounts1, st.Ticks)
		if err != nil {
			return err
		}
		setDelta(delta)
	case KindSetProtocolFee:
		if env.Fees == nil {
			return errors.New("environment has no fee controller")
		}
		env.Fees.Set(st.key.ID(), clamm.ProtocolFee{ZeroForOne: st.ProtocolFee.ZeroForOne, OneForZero: st.ProtocolFee.OneForZero})
		_, err := mgr.SetProtocolFee(ctx, st.key)
		return err
	case KindCollectProtocolFees:
		collected, err := mgr.CollectProtocolFees(ctx, st.account, st.currency, st.amount)
		if err != nil {
			return err
		}
		res.Amount = collected
	}
	return nil
}

func (r *Report) finish(env *Env) *Report {
	r.Pools = env.Manager.Pools()
	r.Digest = Digest(r.Pools)
	return r
}

// Digest hashes pool views in order.
func Digest(pools []clamm.PoolView) string {
	h := blake3.New()
	enc := json.NewEncoder(h)
	for _, p := range pools {
		// views hold only JSON-safe types
		_ = enc.Encode(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
