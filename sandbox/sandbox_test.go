package sandbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	coreerrors "treasury/core/errors"
	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
	"treasury/native/liquidity"
	"treasury/native/maker"
	"treasury/native/oracle"
	"treasury/sandbox"
	"treasury/storage"
)

func makeAddress(kind crypto.AddressKind, fill byte) crypto.Address {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(kind, b)
}

var (
	governor    = makeAddress(crypto.ImplicitEd25519, 0x01)
	executor    = makeAddress(crypto.ImplicitEd25519, 0x02)
	keeper      = makeAddress(crypto.ImplicitSecp256k1, 0x03)
	receiver    = makeAddress(crypto.ImplicitP256, 0x04)
	destination = makeAddress(crypto.ImplicitP256, 0x05)
	liqAddr     = makeAddress(crypto.Originated, 0x10)
	makerAddr   = makeAddress(crypto.Originated, 0x11)
	tokenAddr   = makeAddress(crypto.Originated, 0x12)
	poolAddr    = makeAddress(crypto.Originated, 0x13)
	fa2Addr     = makeAddress(crypto.Originated, 0x14)
	vwapAddr    = makeAddress(crypto.Originated, 0x15)
	spotAddr    = makeAddress(crypto.Originated, 0x16)
	harbinger   = makeAddress(crypto.Originated, 0x17)
)

var now = time.Unix(50_000, 0)

type world struct {
	host  *runtime.Host
	stack *sandbox.Stack
}

func newWorld(t *testing.T, makerMutate func(*maker.Storage)) *world {
	t.Helper()
	ctx := context.Background()
	host, err := runtime.NewHost(runtime.Config{
		DB:    storage.NewMemDB(),
		Clock: func() time.Time { return now },
	})
	require.NoError(t, err)
	stack, err := sandbox.Install(host, sandbox.Addresses{Token: tokenAddr, Pool: poolAddr, FA2: fa2Addr})
	require.NoError(t, err)

	lq := liquidity.DefaultStorage()
	lq.Governor = governor
	lq.Executor = executor
	lq.Token = tokenAddr
	lq.AMM = poolAddr
	lq.Oracle = harbinger
	require.NoError(t, host.Deploy(ctx, "liquidity", liqAddr, &runtime.LiquidityContract{Initial: lq}))

	mk := maker.DefaultStorage()
	mk.Governor = governor
	mk.PauseGuardian = governor
	mk.Receiver = receiver
	mk.Token = tokenAddr
	mk.AMM = poolAddr
	mk.Vwap = vwapAddr
	mk.Spot = spotAddr
	mk.SpreadAmount = 10
	if makerMutate != nil {
		makerMutate(mk)
	}
	require.NoError(t, host.Deploy(ctx, "maker", makerAddr, &runtime.MakerContract{Initial: mk}))

	stack.Feeds.SetTimePrice(harbinger, 2_000_000, now)
	stack.Feeds.SetTimePrice(vwapAddr, 1_000_000, now)
	stack.Feeds.SetCandle(spotAddr, 1_000_000, now)
	return &world{host: host, stack: stack}
}

func tokens(v uint64) *uint256.Int {
	out := uint256.NewInt(v)
	return out.Mul(out, oracle.Precision)
}

func (w *world) invoke(t *testing.T, target crypto.Address, entrypoint string, sender crypto.Address, payload any) (*runtime.Receipt, error) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = encoded
	}
	return w.host.Invoke(context.Background(), types.Invocation{
		Target:     target,
		Entrypoint: entrypoint,
		Sender:     sender,
		Payload:    raw,
	})
}

func (w *world) tokenBalance(t *testing.T, owner crypto.Address) *uint256.Int {
	t.Helper()
	var out *uint256.Int
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		var err error
		out, err = w.stack.Token.BalanceOf(env, owner)
		return err
	}))
	return out
}

func (w *world) nativeBalance(t *testing.T, owner crypto.Address) *uint256.Int {
	t.Helper()
	var out *uint256.Int
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		var err error
		out, err = env.State.NativeBalance(owner)
		return err
	}))
	return out
}

func requireCode(t *testing.T, err error, code coreerrors.Code) {
	t.Helper()
	require.Error(t, err)
	got, ok := coreerrors.CodeOf(err)
	require.True(t, ok, "uncoded error %v", err)
	require.Equal(t, code, got, "error %v", err)
}

func TestAddLiquidityMovesTokensAndNative(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, liqAddr, tokens(5), uint256.NewInt(3_000_000)))

	receipt, err := w.invoke(t, liqAddr, liquidity.EntrypointAddLiquidity, executor, liquidity.AddLiquidityParams{
		Tokens: tokens(2),
		Mutez:  uint256.NewInt(1_000_000),
	})
	require.NoError(t, err)
	require.True(t, receipt.Committed())
	require.Len(t, receipt.Operations, 3)
	require.Equal(t, types.EntrypointApprove, receipt.Operations[1].Entrypoint)
	require.Equal(t, types.EntrypointInvestLiquidity, receipt.Operations[2].Entrypoint)
	require.NotEmpty(t, receipt.Digest)

	require.True(t, w.tokenBalance(t, liqAddr).Eq(tokens(3)))
	require.True(t, w.tokenBalance(t, poolAddr).Eq(tokens(2)))
	require.True(t, w.nativeBalance(t, liqAddr).Eq(uint256.NewInt(2_000_000)))

	var calls []sandbox.PoolCall
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		var err error
		calls, err = w.stack.Pool.Calls(env)
		return err
	}))
	require.Len(t, calls, 1)
	require.True(t, calls[0].Amount.Eq(uint256.NewInt(1_000_000)))
}

func TestAddLiquiditySlippageRollsBack(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, liqAddr, tokens(5), uint256.NewInt(3_000_000)))
	w.stack.Feeds.SetTimePrice(harbinger, 5_000_000, now)

	receipt, err := w.invoke(t, liqAddr, liquidity.EntrypointAddLiquidity, executor, liquidity.AddLiquidityParams{
		Tokens: tokens(2),
		Mutez:  uint256.NewInt(1_000_000),
	})
	requireCode(t, err, coreerrors.CodeSlippage)
	require.Equal(t, runtime.StatusFailed, receipt.Status)
	require.Equal(t, uint16(coreerrors.CodeSlippage), receipt.Code)
	require.True(t, w.tokenBalance(t, liqAddr).Eq(tokens(5)))
}

func TestAddLiquidityWithoutFundsFails(t *testing.T) {
	w := newWorld(t, nil)
	require.NoError(t, w.stack.Fund(context.Background(), w.host, liqAddr, tokens(5), nil))
	_, err := w.invoke(t, liqAddr, liquidity.EntrypointAddLiquidity, executor, liquidity.AddLiquidityParams{
		Tokens: tokens(2),
		Mutez:  uint256.NewInt(1_000_000),
	})
	requireCode(t, err, coreerrors.CodeNotEnoughTokens)
	// The approval emitted before the failing deposit is rolled back too.
	var allowance *uint256.Int
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		var err error
		allowance, err = w.stack.Token.Allowance(env, liqAddr, poolAddr)
		return err
	}))
	require.True(t, allowance.IsZero())
}

func TestSweepWithHeldCallback(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, liqAddr, tokens(7), nil))
	w.stack.Token.HoldCallbacks(true)

	_, err := w.invoke(t, liqAddr, liquidity.EntrypointSendAllTokens, governor, destination)
	require.NoError(t, err)

	raw, err := w.host.ControllerStorage("liquidity")
	require.NoError(t, err)
	st := raw.(*liquidity.Storage)
	require.Equal(t, common.SweepWaitingForTokenBalance, st.Sweep.State)

	_, err = w.invoke(t, liqAddr, liquidity.EntrypointSendAllTokens, governor, destination)
	requireCode(t, err, coreerrors.CodeBadState)

	_, err = w.invoke(t, liqAddr, liquidity.EntrypointSweepCallback, keeper, "1")
	requireCode(t, err, coreerrors.CodeBadSender)

	receipt, err := w.stack.Token.Release(ctx, w.host)
	require.NoError(t, err)
	require.True(t, receipt.Committed())
	require.True(t, w.tokenBalance(t, destination).Eq(tokens(7)))
	require.True(t, w.tokenBalance(t, liqAddr).IsZero())

	raw, err = w.host.ControllerStorage("liquidity")
	require.NoError(t, err)
	require.Equal(t, common.SweepIdle, raw.(*liquidity.Storage).Sweep.State)
}

func TestSweepImmediateCallback(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, liqAddr, tokens(4), nil))
	receipt, err := w.invoke(t, liqAddr, liquidity.EntrypointSendAllTokens, governor, destination)
	require.NoError(t, err)
	// sendAllTokens, getBalance, callback, transfer
	require.Len(t, receipt.Operations, 4)
	require.True(t, w.tokenBalance(t, destination).Eq(tokens(4)))
}

func TestUnknownTokenIsApprovalError(t *testing.T) {
	w := newWorld(t, nil)
	unknown := makeAddress(crypto.Originated, 0x7f)
	_, err := w.invoke(t, liqAddr, liquidity.EntrypointSetToken, governor, unknown)
	require.NoError(t, err)
	_, err = w.invoke(t, liqAddr, liquidity.EntrypointSendAllTokens, governor, destination)
	requireCode(t, err, coreerrors.CodeApprovalError)
}

func TestMakerTradePaysReceiver(t *testing.T) {
	w := newWorld(t, func(s *maker.Storage) { s.RevokeApproval = true })
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, makerAddr, tokens(25), nil))

	receipt, err := w.invoke(t, makerAddr, maker.EntrypointTokenToTezPayment, keeper, nil)
	require.NoError(t, err)
	// trade, approve, swap, revoke, payout
	require.Len(t, receipt.Operations, 5)
	require.True(t, w.nativeBalance(t, receiver).Eq(uint256.NewInt(11_000_000)))
	require.True(t, w.tokenBalance(t, makerAddr).Eq(tokens(15)))

	raw, err := w.host.ControllerStorage("maker")
	require.NoError(t, err)
	require.Equal(t, now.Unix(), raw.(*maker.Storage).LastTradeTime)
}

func TestMakerTradeWithoutTokensRollsBack(t *testing.T) {
	w := newWorld(t, nil)
	_, err := w.invoke(t, makerAddr, maker.EntrypointTokenToTezPayment, keeper, nil)
	requireCode(t, err, coreerrors.CodeNotEnoughTokens)
	raw, err := w.host.ControllerStorage("maker")
	require.NoError(t, err)
	require.Equal(t, maker.DefaultLastTradeTime, raw.(*maker.Storage).LastTradeTime)
}

func TestMakerRejectsAttachedFunds(t *testing.T) {
	w := newWorld(t, nil)
	_, err := w.host.Invoke(context.Background(), types.Invocation{
		Target:     makerAddr,
		Entrypoint: maker.EntrypointTokenToTezPayment,
		Sender:     keeper,
		Amount:     uint256.NewInt(1),
	})
	requireCode(t, err, coreerrors.CodeCannotReceiveFunds)
	require.True(t, w.nativeBalance(t, makerAddr).IsZero())
}

func TestMakerReturnBalance(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, makerAddr, tokens(3), nil))
	_, err := w.invoke(t, makerAddr, maker.EntrypointReturnBalance, governor, nil)
	require.NoError(t, err)
	require.True(t, w.tokenBalance(t, receiver).Eq(tokens(3)))

	raw, err := w.host.ControllerStorage("maker")
	require.NoError(t, err)
	require.True(t, raw.(*maker.Storage).TokenBalance.Eq(tokens(3)))
}

func TestRescueFA2(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	_, err := w.host.Apply(ctx, "mint-fa2", func(env runtime.Env) ([]types.Operation, error) {
		return nil, w.stack.FA2.Mint(env, 3, liqAddr, uint256.NewInt(500))
	})
	require.NoError(t, err)

	_, err = w.invoke(t, liqAddr, liquidity.EntrypointRescueFA2, governor, liquidity.RescueFA2Params{
		Token:       fa2Addr,
		TokenID:     3,
		Amount:      uint256.NewInt(200),
		Destination: destination,
	})
	require.NoError(t, err)
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		got, err := w.stack.FA2.BalanceOf(env, 3, destination)
		require.NoError(t, err)
		require.True(t, got.Eq(uint256.NewInt(200)))
		return nil
	}))
}

func TestSetDelegateRecordsBaker(t *testing.T) {
	w := newWorld(t, nil)
	baker, err := crypto.NewKeyHash(makeAddress(crypto.ImplicitEd25519, 0x66))
	require.NoError(t, err)
	_, err = w.invoke(t, liqAddr, liquidity.EntrypointSetDelegate, governor, types.SetDelegateParams{Delegate: &baker})
	require.NoError(t, err)
	require.NoError(t, w.host.Read(func(env runtime.Env) error {
		got, err := runtime.Delegate(env, liqAddr)
		require.NoError(t, err)
		require.Equal(t, baker.String(), got)
		return nil
	}))
}

func TestStandingQuotesFollowTheClock(t *testing.T) {
	feeds := sandbox.NewFeeds()
	at := time.Unix(1_000, 0)
	feeds.SetClock(func() time.Time { return at })
	peg := makeAddress(crypto.Originated, 0x18)

	require.Error(t, feeds.Quote(peg, oracle.LayoutPriceTime, 0))
	require.NoError(t, feeds.Quote(peg, oracle.LayoutPriceTime, 1_000_000))
	require.NoError(t, feeds.Quote(spotAddr, oracle.LayoutCandle, 2_000_000))

	payload, err := feeds.GetPrice(context.Background(), peg, oracle.DefaultAssetCode)
	require.NoError(t, err)
	require.Equal(t, oracle.PriceTime{Price: uint256.NewInt(1_000_000), ObservedAt: at}, payload)

	at = at.Add(time.Hour)
	payload, err = feeds.GetPrice(context.Background(), spotAddr, oracle.DefaultAssetCode)
	require.NoError(t, err)
	candle, ok := payload.(oracle.Candle)
	require.True(t, ok)
	require.Equal(t, at, candle.End)
	require.Equal(t, uint64(2_000_000), candle.Close.Uint64())

	feeds.SetCandle(spotAddr, 3_000_000, now)
	payload, err = feeds.GetPrice(context.Background(), spotAddr, oracle.DefaultAssetCode)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000), payload.(oracle.Candle).Close.Uint64())

	feeds.Remove(spotAddr)
	_, err = feeds.GetPrice(context.Background(), spotAddr, oracle.DefaultAssetCode)
	require.ErrorIs(t, err, oracle.ErrNoView)
}

func TestTopUpOnlyFillsShortfall(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	require.NoError(t, w.stack.Fund(ctx, w.host, liqAddr, tokens(3), uint256.NewInt(700)))

	require.NoError(t, w.stack.TopUp(ctx, w.host, liqAddr, tokens(5), uint256.NewInt(500)))
	require.Equal(t, tokens(5), w.tokenBalance(t, liqAddr))
	require.Equal(t, uint64(700), w.nativeBalance(t, liqAddr).Uint64())

	require.NoError(t, w.stack.TopUp(ctx, w.host, liqAddr, tokens(5), uint256.NewInt(900)))
	require.Equal(t, tokens(5), w.tokenBalance(t, liqAddr))
	require.Equal(t, uint64(900), w.nativeBalance(t, liqAddr).Uint64())
}
