package liquidity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
)

func TestSendAllTokensStateMachine(t *testing.T) {
	f := newFixture(t)

	ops, err := f.engine.SendAllTokens(callFrom(governor), destAddr)
	if err != nil {
		t.Fatalf("send all tokens: %v", err)
	}
	if len(ops) != 1 || ops[0].Entrypoint != types.EntrypointGetBalance || ops[0].Target != tokenAddr {
		t.Fatalf("expected a getBalance request, got %+v", ops)
	}
	req := ops[0].Params.(types.GetBalanceParams)
	if req.Owner != controller || req.Callback.Address != controller || req.Callback.Entrypoint != EntrypointSweepCallback {
		t.Fatalf("unexpected balance request %+v", req)
	}
	st := f.state.records[controller]
	if st.Sweep.State != common.SweepWaitingForTokenBalance || st.Sweep.Destination != destAddr {
		t.Fatalf("expected waiting sweep towards %s, got %+v", destAddr, st.Sweep)
	}

	if _, err := f.engine.SendAllTokens(callFrom(governor), governor); !errors.Is(err, coreerrors.ErrBadState) {
		t.Fatalf("second sweep must fail with bad state, got %v", err)
	}

	if _, err := f.engine.SendAllTokensCallback(callFrom(stranger), uint256.NewInt(42)); !errors.Is(err, coreerrors.ErrBadSender) {
		t.Fatalf("callback from a stranger must fail with bad sender, got %v", err)
	}

	ops, err = f.engine.SendAllTokensCallback(callFrom(tokenAddr), uint256.NewInt(42))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	transfer := ops[0].Params.(types.TransferParams)
	if transfer.From != controller || transfer.To != destAddr || transfer.Value.Uint64() != 42 {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
	st = f.state.records[controller]
	if st.Sweep.State != common.SweepIdle || !st.Sweep.Destination.IsZero() {
		t.Fatalf("sweep must return to idle, got %+v", st.Sweep)
	}

	if _, err := f.engine.SendAllTokensCallback(callFrom(tokenAddr), uint256.NewInt(1)); !errors.Is(err, coreerrors.ErrBadState) {
		t.Fatalf("callback while idle must fail with bad state, got %v", err)
	}
}

func TestSendAllTokensRequiresGovernor(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SendAllTokens(callFrom(executor), destAddr); !errors.Is(err, coreerrors.ErrNotGovernor) {
		t.Fatalf("expected not governor, got %v", err)
	}
	if f.state.puts != 0 {
		t.Fatalf("rejected sweep must not write storage")
	}
}

func TestFundMovement(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.Send(callFrom(executor), uint256.NewInt(1), destAddr); !errors.Is(err, coreerrors.ErrNotGovernor) {
		t.Fatalf("expected not governor, got %v", err)
	}
	ops, err := f.engine.Send(callFrom(governor), uint256.NewInt(250), destAddr)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ops[0].Target != destAddr || ops[0].Amount.Uint64() != 250 || ops[0].Entrypoint != types.EntrypointDefault {
		t.Fatalf("unexpected payment %+v", ops[0])
	}

	ops, err = f.engine.SendAll(callFrom(governor), destAddr)
	if err != nil {
		t.Fatalf("send all: %v", err)
	}
	if ops[0].Amount.Uint64() != 5_000_000 {
		t.Fatalf("send all must move the full balance, got %s", ops[0].Amount.Dec())
	}

	ops, err = f.engine.SendTokens(callFrom(governor), uint256.NewInt(9), destAddr)
	if err != nil {
		t.Fatalf("send tokens: %v", err)
	}
	if ops[0].Target != tokenAddr || ops[0].Params.(types.TransferParams).Value.Uint64() != 9 {
		t.Fatalf("unexpected token transfer %+v", ops[0])
	}

	other := makeAddress(crypto.Originated, 0x44)
	f.engine.SetResolver(nil)
	ops, err = f.engine.RescueFA12(callFrom(governor), other, uint256.NewInt(3), destAddr)
	if err != nil {
		t.Fatalf("rescue fa12: %v", err)
	}
	if ops[0].Target != other {
		t.Fatalf("rescue must call the rescued token, got %s", ops[0].Target)
	}

	ops, err = f.engine.RescueFA2(callFrom(governor), other, 4, uint256.NewInt(5), destAddr)
	if err != nil {
		t.Fatalf("rescue fa2: %v", err)
	}
	batch := ops[0].Params.([]types.FA2Transfer)
	if len(batch) != 1 || batch[0].From != controller || batch[0].Txs[0].TokenID != 4 || batch[0].Txs[0].To != destAddr {
		t.Fatalf("unexpected fa2 batch %+v", batch)
	}
}

func TestSetDelegate(t *testing.T) {
	f := newFixture(t)
	baker, _ := crypto.NewKeyHash(makeAddress(crypto.ImplicitP256, 0x55))
	ops, err := f.engine.SetDelegate(callFrom(governor), &baker)
	if err != nil {
		t.Fatalf("set delegate: %v", err)
	}
	if ops[0].Kind != types.OperationDelegation || *ops[0].Params.(types.SetDelegateParams).Delegate != baker {
		t.Fatalf("unexpected delegation %+v", ops[0])
	}
	ops, err = f.engine.SetDelegate(callFrom(governor), nil)
	if err != nil || ops[0].Params.(types.SetDelegateParams).Delegate != nil {
		t.Fatalf("expected delegation withdrawal, got %+v (%v)", ops, err)
	}
}

func TestSetters(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SetSlippageTolerance(callFrom(executor), 9); !errors.Is(err, coreerrors.ErrNotGovernor) {
		t.Fatalf("expected not governor, got %v", err)
	}
	if _, err := f.engine.SetSlippageTolerance(callFrom(governor), 9); err != nil {
		t.Fatalf("set slippage: %v", err)
	}
	if _, err := f.engine.SetMaxDataDelaySec(callFrom(governor), 120); err != nil {
		t.Fatalf("set max delay: %v", err)
	}
	newOracle := makeAddress(crypto.Originated, 0x66)
	if _, err := f.engine.SetOracle(callFrom(governor), newOracle); err != nil {
		t.Fatalf("set oracle: %v", err)
	}
	if _, err := f.engine.SetExecutor(callFrom(governor), stranger); err != nil {
		t.Fatalf("set executor: %v", err)
	}
	if _, err := f.engine.SetGovernor(callFrom(governor), stranger); err != nil {
		t.Fatalf("set governor: %v", err)
	}
	st := f.state.records[controller]
	if st.SlippageTolerance != 9 || st.MaxDataDelaySec != 120 || st.Oracle != newOracle || st.Executor != stranger || st.Governor != stranger {
		t.Fatalf("setters not applied: %+v", st)
	}
	if _, err := f.engine.SetToken(callFrom(governor), tokenAddr); !errors.Is(err, coreerrors.ErrNotGovernor) {
		t.Fatalf("rotated governor must lose authority, got %v", err)
	}
	if _, err := f.engine.SetAMM(callFrom(stranger), crypto.Address{}); err == nil {
		t.Fatalf("zero address must be rejected")
	}
}

func TestDispatchDecodesPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload, _ := json.Marshal(AddLiquidityParams{Tokens: tokens(2), Mutez: uint256.NewInt(1_000_000)})
	ops, err := f.engine.Dispatch(ctx, callFrom(executor), EntrypointAddLiquidity, payload)
	if err != nil {
		t.Fatalf("dispatch add liquidity: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected two operations, got %d", len(ops))
	}
	dest, _ := json.Marshal(destAddr)
	if _, err := f.engine.Dispatch(ctx, callFrom(governor), EntrypointSendAllTokens, dest); err != nil {
		t.Fatalf("dispatch sweep: %v", err)
	}
	if _, err := f.engine.Dispatch(ctx, callFrom(tokenAddr), EntrypointSweepCallback, json.RawMessage(`"17"`)); err != nil {
		t.Fatalf("dispatch callback: %v", err)
	}
	if _, err := f.engine.Dispatch(ctx, callFrom(governor), EntrypointSetSlippageTolerance, json.RawMessage(`7`)); err != nil {
		t.Fatalf("dispatch setter: %v", err)
	}
	if f.state.records[controller].SlippageTolerance != 7 {
		t.Fatalf("setter payload not applied")
	}
	if _, err := f.engine.Dispatch(ctx, callFrom(governor), "mint", nil); err == nil {
		t.Fatalf("unknown entrypoint must fail")
	}
	if !HasEntrypoint(EntrypointRescueFA2) || HasEntrypoint("mint") {
		t.Fatalf("entrypoint table mismatch")
	}
}
