package maker

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
	errNilState   = errors.New("maker engine: state not configured")
	errNilStorage = errors.New("maker engine: controller not initialised")

	errZeroAddress  = coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: address must be set")
	errPercentScale = coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: percent scale must be 100 or 1000")
	errNilAmount    = coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: amount required")
)

const moduleName = "maker"

type engineState interface {
	MakerStorage(addr crypto.Address) (*Storage, error)
	PutMakerStorage(addr crypto.Address, s *Storage) error
}

// Layouts names the view layout of each maker feed.
type Layouts struct {
	Vwap oracle.Layout
	Spot oracle.Layout
	Peg  oracle.Layout
}

// DefaultLayouts matches the normalizer, candle and peg feeds.
func DefaultLayouts() Layouts {
	return Layouts{Vwap: oracle.LayoutTimePrice, Spot: oracle.LayoutCandle, Peg: oracle.LayoutPriceTime}
}

// Engine executes maker controller entrypoints.
type Engine struct {
	state    engineState
	views    oracle.View
	resolver types.EntrypointResolver
	emitter  events.Emitter
	pauses   common.PauseView
	asset    string
	layouts  Layouts
}

// NewEngine constructs an engine with the default feed layouts.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		asset:   oracle.DefaultAssetCode,
		layouts: DefaultLayouts(),
	}
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

// SetResolver configures the lookup used to check token and pool entrypoints.
func (e *Engine) SetResolver(r types.EntrypointResolver) {
	if e == nil {
		return
	}
	e.resolver = r
}

// SetEmitter configures the event sink. A nil emitter discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause view consulted before each trade.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetAssetCode overrides the asset pair passed to every feed.
func (e *Engine) SetAssetCode(asset string) {
	if e == nil {
		return
	}
	e.asset = oracle.NormalizeAsset(asset)
}

// SetLayouts overrides the feed layouts. Zero fields keep the current layout.
func (e *Engine) SetLayouts(l Layouts) {
	if e == nil {
		return
	}
	if l.Vwap != 0 {
		e.layouts.Vwap = l.Vwap
	}
	if l.Spot != 0 {
		e.layouts.Spot = l.Spot
	}
	if l.Peg != 0 {
		e.layouts.Peg = l.Peg
	}
}

func (e *Engine) load(self crypto.Address) (*Storage, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.MakerStorage(self)
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
	if !ValidPercentScale(st.PercentScale) {
		return errPercentScale
	}
	return e.state.PutMakerStorage(self, st.Clone())
}

// Storage returns a copy of the controller record.
func (e *Engine) Storage(self crypto.Address) (*Storage, error) {
	return e.load(self)
}

// Quote is the sizing of one trade.
type Quote struct {
	TokensToTrade *uint256.Int
	NeutralOut    *uint256.Int
	RequiredOut   *uint256.Int
}

// ComputeQuote sizes a trade of tradeAmount whole tokens at spotPrice (oracle
// quote scale). RequiredOut is the minimum native output, spread units better
// than the oracle-neutral output. All divisions truncate.
func ComputeQuote(tradeAmount, spotPrice *uint256.Int, spread, scale uint64) (Quote, error) {
	if spotPrice == nil || spotPrice.IsZero() {
		return Quote{}, coreerrors.New(coreerrors.CodeDivisionByZero, "spot price is zero")
	}
	if !ValidPercentScale(scale) {
		return Quote{}, errPercentScale
	}
	tokensToTrade, overflow := new(uint256.Int).MulOverflow(tradeAmount, oracle.Precision)
	if overflow {
		return Quote{}, coreerrors.New(coreerrors.CodeOverflow, "trade amount %s overflows", tradeAmount.Dec())
	}
	neutralOut := new(uint256.Int).Div(tokensToTrade, spotPrice)
	neutralOut.Div(neutralOut, oracle.QuoteScale)

	factor := new(uint256.Int).Add(uint256.NewInt(scale), uint256.NewInt(spread))
	requiredOut, overflow := new(uint256.Int).MulOverflow(neutralOut, factor)
	if overflow {
		return Quote{}, coreerrors.New(coreerrors.CodeOverflow, "required output overflows")
	}
	requiredOut.Div(requiredOut, uint256.NewInt(scale))
	return Quote{TokensToTrade: tokensToTrade, NeutralOut: neutralOut, RequiredOut: requiredOut}, nil
}

// TokenToTezPayment sells TradeAmount tokens into the pool when the oracle
// gate passes, sending the proceeds to the receiver.
func (e *Engine) TokenToTezPayment(ctx context.Context, call types.CallContext) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireNoAmount(call.Amount); err != nil {
		return nil, err
	}
	if st.Paused {
		return nil, coreerrors.New(coreerrors.CodePaused, "controller paused")
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	nowUnix := call.Now.Unix()
	if nowUnix < st.LastTradeTime || uint64(nowUnix-st.LastTradeTime) < st.MinTradeDelaySec {
		return nil, coreerrors.New(coreerrors.CodeTradeTime, "last trade at %d", st.LastTradeTime)
	}

	if !st.Peg.IsZero() {
		peg, err := oracle.Read(ctx, e.views, oracle.Feed{Address: st.Peg, Layout: e.layouts.Peg}, e.asset, coreerrors.CodePegViewError)
		if err != nil {
			return nil, err
		}
		if err := oracle.CheckPeg(peg); err != nil {
			return nil, err
		}
		if err := oracle.CheckFreshness(peg, call.Now, st.MaxDataDelaySec); err != nil {
			return nil, err
		}
	}

	var vwap *oracle.PricePoint
	if !st.Vwap.IsZero() {
		point, err := oracle.Read(ctx, e.views, oracle.Feed{Address: st.Vwap, Layout: e.layouts.Vwap}, e.asset, coreerrors.CodeVwapViewError)
		if err != nil {
			return nil, err
		}
		vwap = &point
	}
	spot, err := oracle.Read(ctx, e.views, oracle.Feed{Address: st.Spot, Layout: e.layouts.Spot}, e.asset, coreerrors.CodeSpotViewError)
	if err != nil {
		return nil, err
	}
	if err := oracle.CheckFreshness(spot, call.Now, st.MaxDataDelaySec); err != nil {
		return nil, err
	}
	if vwap != nil {
		if err := oracle.CheckFreshness(*vwap, call.Now, st.MaxDataDelaySec); err != nil {
			return nil, err
		}
		if err := checkVolatility(vwap.Price, spot.Price, st.VolatilityTolerance, st.PercentScale); err != nil {
			return nil, err
		}
	}

	quote, err := ComputeQuote(st.TradeAmount, spot.Price, st.SpreadAmount, st.PercentScale)
	if err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.Token, types.EntrypointApprove, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.AMM, types.EntrypointTokenToTezPayment, coreerrors.CodeDexContractError); err != nil {
		return nil, err
	}

	ops := []types.Operation{
		types.Call(call.Self, st.Token, types.EntrypointApprove, types.ApproveParams{
			Spender: st.AMM,
			Value:   new(uint256.Int).Set(quote.TokensToTrade),
		}),
		types.Call(call.Self, st.AMM, types.EntrypointTokenToTezPayment, types.TokenToTezPaymentParams{
			Amount:   new(uint256.Int).Set(quote.TokensToTrade),
			MinOut:   new(uint256.Int).Set(quote.RequiredOut),
			Receiver: st.Receiver,
		}),
	}
	if st.RevokeApproval {
		ops = append(ops, types.Call(call.Self, st.Token, types.EntrypointApprove, types.ApproveParams{
			Spender: st.AMM,
			Value:   new(uint256.Int),
		}))
	}

	st.LastTradeTime = nowUnix
	if err := e.state.PutMakerStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.MakerTrade{
		Controller:  call.Self,
		TokensSold:  quote.TokensToTrade,
		NeutralOut:  quote.NeutralOut,
		RequiredOut: quote.RequiredOut,
		SpotPrice:   spot.Price,
		Receiver:    st.Receiver,
		TradeTime:   nowUnix,
	})
	return ops, nil
}

// checkVolatility compares both feeds in token precision with spot as the
// reference price.
func checkVolatility(vwapPrice, spotPrice *uint256.Int, tolerance, scale uint64) error {
	vwapUp, err := oracle.Upsample(vwapPrice)
	if err != nil {
		return err
	}
	spotUp, err := oracle.Upsample(spotPrice)
	if err != nil {
		return err
	}
	diff, err := oracle.PercentDiff(vwapUp, spotUp, spotUp, scale)
	if err != nil {
		return err
	}
	return oracle.CheckDivergence(diff, tolerance, coreerrors.CodeVolatility)
}
