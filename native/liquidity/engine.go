package liquidity

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
	"treasury/native/oracle"
)

var (
	errNilState   = errors.New("liquidity engine: state not configured")
	errNilStorage = errors.New("liquidity engine: controller not initialised")

	errZeroAddress    = coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: address must be set")
	errNilAmount      = coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: amount required")
	errNilDestination = coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: destination required")
)

const moduleName = "liquidity"

// percentScale is the integer percent scale of the slippage tolerance.
const percentScale = 100

type engineState interface {
	LiquidityStorage(addr crypto.Address) (*Storage, error)
	PutLiquidityStorage(addr crypto.Address, s *Storage) error
}

// Engine executes liquidity controller entrypoints. Every entrypoint validates
// all preconditions before it writes storage or returns operations.
type Engine struct {
	state    engineState
	views    oracle.View
	resolver types.EntrypointResolver
	emitter  events.Emitter
	pauses   common.PauseView
	asset    string
}

// NewEngine constructs an engine reading the default asset pair.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, asset: oracle.DefaultAssetCode}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetViews configures the oracle price view resolver.
func (e *Engine) SetViews(v oracle.View) {
	if e == nil {
		return
	}
	e.views = v
}

// SetResolver configures the lookup used to check collaborator entrypoints.
func (e *Engine) SetResolver(r types.EntrypointResolver) {
	if e == nil {
		return
	}
	e.resolver = r
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause view consulted before deposits.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetAssetCode overrides the asset pair passed to the oracle view.
func (e *Engine) SetAssetCode(asset string) {
	if e == nil {
		return
	}
	e.asset = oracle.NormalizeAsset(asset)
}

func (e *Engine) load(self crypto.Address) (*Storage, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.LiquidityStorage(self)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNilStorage
	}
	return st.Clone(), nil
}

// Initialise writes the initial record for a controller.
func (e *Engine) Initialise(self crypto.Address, st *Storage) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if st == nil {
		st = DefaultStorage()
	}
	return e.state.PutLiquidityStorage(self, st.Clone())
}

// Storage returns a copy of the controller record.
func (e *Engine) Storage(self crypto.Address) (*Storage, error) {
	return e.load(self)
}

// AddLiquidity deposits tokens and mutez into the pool after checking the
// caller's ratio against the oracle VWAP.
func (e *Engine) AddLiquidity(ctx context.Context, call types.CallContext, tokens, mutez *uint256.Int) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Executor, coreerrors.CodeNotExecutor); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if tokens == nil || mutez == nil {
		return nil, errNilAmount
	}
	if mutez.IsZero() {
		return nil, coreerrors.New(coreerrors.CodeDivisionByZero, "mutez must be positive")
	}
	inputPrice := new(uint256.Int).Div(tokens, mutez)
	inputPrice.Div(inputPrice, oracle.QuoteScale)

	point, err := oracle.Read(ctx, e.views, oracle.Feed{Address: st.Oracle, Layout: oracle.LayoutTimePrice}, e.asset, coreerrors.CodeVwapViewError)
	if err != nil {
		return nil, err
	}
	diff, err := oracle.PercentDiff(point.Price, inputPrice, point.Price, percentScale)
	if err != nil {
		return nil, err
	}
	if err := oracle.CheckDivergence(diff, st.SlippageTolerance, coreerrors.CodeSlippage); err != nil {
		return nil, err
	}
	if err := oracle.CheckFreshness(point, call.Now, st.MaxDataDelaySec); err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.Token, types.EntrypointApprove, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointInvestLiquidity, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}

	approve := types.Call(call.Self, st.Token, types.EntrypointApprove, types.ApproveParams{
		Spender: st.AMM,
		Value:   new(uint256.Int).Set(tokens),
	})
	invest := types.Call(call.Self, st.AMM, types.EntrypointInvestLiquidity, types.InvestLiquidityParams{
		Tokens: new(uint256.Int).Set(tokens),
	})
	invest.Amount = new(uint256.Int).Set(mutez)

	e.emitter.Emit(events.LiquidityAdded{
		Controller:  call.Self,
		Tokens:      tokens,
		Mutez:       mutez,
		InputPrice:  inputPrice,
		OraclePrice: point.Price,
	})
	return []types.Operation{approve, invest}, nil
}

// RemoveLiquidity divests LP shares with minimum outputs.
func (e *Engine) RemoveLiquidity(call types.CallContext, params types.DivestLiquidityParams) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	if params.MinNativeOut == nil || params.MinTokenOut == nil || params.Shares == nil {
		return nil, errNilAmount
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointDivestLiquidity, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}
	op := types.Call(call.Self, st.AMM, types.EntrypointDivestLiquidity, params)
	e.emitter.Emit(events.LiquidityRemoved{
		Controller:   call.Self,
		Shares:       params.Shares,
		MinNativeOut: params.MinNativeOut,
		MinTokenOut:  params.MinTokenOut,
	})
	return []types.Operation{op}, nil
}

// ClaimRewards withdraws accrued pool rewards to the controller itself.
func (e *Engine) ClaimRewards(call types.CallContext) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointWithdrawProfit, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}
	return []types.Operation{
		types.Call(call.Self, st.AMM, types.EntrypointWithdrawProfit, types.WithdrawProfitParams{Receiver: call.Self}),
	}, nil
}

// Vote forwards a baker vote to the pool.
func (e *Engine) Vote(call types.CallContext, params types.VoteParams) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	if params.Value == nil {
		return nil, errNilAmount
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointVote, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}
	return []types.Operation{types.Call(call.Self, st.AMM, types.EntrypointVote, params)}, nil
}

// Veto forwards a baker veto to the pool.
func (e *Engine) Veto(call types.CallContext, params types.VetoParams) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Executor, coreerrors.CodeNotExecutor); err != nil {
		return nil, err
	}
	if params.Value == nil {
		return nil, errNilAmount
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointVeto, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}
	return []types.Operation{types.Call(call.Self, st.AMM, types.EntrypointVeto, params)}, nil
}
