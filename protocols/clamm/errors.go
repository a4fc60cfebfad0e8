package clamm

import "errors"

// Precondition violations.
var (
	ErrAlreadyInitialized   = errors.New("pool already initialized")
	ErrPoolNotInitialized   = errors.New("pool not initialized")
	ErrInvalidTickRange     = errors.New("invalid tick range")
	ErrInvalidTickList      = errors.New("invalid tick list")
	ErrTickLowerOutOfBounds = errors.New("tick lower out of bounds")
	ErrTickUpperOutOfBounds = errors.New("tick upper out of bounds")
	ErrTickMisaligned       = errors.New("tick not a multiple of tick spacing")
	ErrPriceOutOfBounds     = errors.New("price out of bounds")
	ErrCurrenciesOutOfOrder = errors.New("currencies out of order or equal")
	ErrTickSpacingTooSmall  = errors.New("tick spacing too small")
	ErrTickSpacingTooLarge  = errors.New("tick spacing too large")
	ErrInvalidFee           = errors.New("invalid lp fee")
	ErrProtocolFeeTooLarge  = errors.New("protocol fee too large")
	ErrSwapAmountZero       = errors.New("swap amount cannot be zero")
	ErrNegativeAmount       = errors.New("amount cannot be negative")
)

// Invariant protection.
var (
	ErrLiquidityOverflow          = errors.New("liquidity overflow")
	ErrInsufficientLiquidity      = errors.New("insufficient liquidity")
	ErrCannotUpdateEmptyPosition  = errors.New("cannot update empty position")
	ErrPriceLimitAlreadyExceeded  = errors.New("price limit already exceeded")
	ErrPriceLimitOutOfBounds      = errors.New("price limit out of bounds")
	ErrInvalidFeeForExactOut      = errors.New("invalid fee for exact out")
	ErrFeeGrowthOverflow          = errors.New("fee growth overflows 256 bits")
	ErrInsufficientProtocolFees   = errors.New("amount exceeds accrued protocol fees")
	ErrNotDynamicFee              = errors.New("pool does not use a dynamic fee")
	ErrUnauthorizedDynamicFeeCall = errors.New("only the pool hooks may update the dynamic fee")
)

// Collaborator and starvation failures.
var (
	ErrNoLiquidityToReceiveFees = errors.New("no liquidity to receive fees")
	ErrInvalidHookResponse      = errors.New("invalid hook response")
	ErrHookAddressNotValid      = errors.New("hook address not valid")
	ErrReentrant                = errors.New("operation already in progress")
	ErrSettlementFailed         = errors.New("settlement failed")
)
