package liquidity

import (
	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
)

// EntrypointSweepCallback receives the token balance requested by SendAllTokens.
const EntrypointSweepCallback = "sendAllTokens_callback"

// Default accepts native currency from anyone.
func (e *Engine) Default(call types.CallContext) ([]types.Operation, error) {
	if _, err := e.load(call.Self); err != nil {
		return nil, err
	}
	return nil, nil
}

// SetDelegate changes or withdraws the controller's baker.
func (e *Engine) SetDelegate(call types.CallContext, delegate *crypto.KeyHash) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	value := "none"
	if delegate != nil && !delegate.IsZero() {
		value = delegate.String()
	} else {
		delegate = nil
	}
	e.emitter.Emit(events.ParameterUpdated{Controller: call.Self, Field: "delegate", Value: value})
	return []types.Operation{types.Delegation(call.Self, delegate)}, nil
}

// Send transfers amount of native currency to destination.
func (e *Engine) Send(call types.CallContext, amount *uint256.Int, destination crypto.Address) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	if amount == nil {
		return nil, errNilAmount
	}
	if destination.IsZero() {
		return nil, errNilDestination
	}
	e.emitter.Emit(events.FundsMoved{Controller: call.Self, Asset: events.AssetNative, Destination: destination, Amount: amount})
	return []types.Operation{types.Payment(call.Self, destination, amount)}, nil
}

// SendAll transfers the whole native balance to destination.
func (e *Engine) SendAll(call types.CallContext, destination crypto.Address) ([]types.Operation, error) {
	return e.Send(call, call.NativeBalance(), destination)
}

// SendTokens transfers amount of the managed token to destination.
func (e *Engine) SendTokens(call types.CallContext, amount *uint256.Int, destination crypto.Address) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	return e.transferFA12(call, st.Token, amount, destination)
}

// SendAllTokens asks the token for the controller's balance. The transfer
// happens when the token answers on EntrypointSweepCallback.
func (e *Engine) SendAllTokens(call types.CallContext, destination crypto.Address) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	next, err := st.Sweep.Begin(destination)
	if err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.Token, types.EntrypointGetBalance, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	op := types.Call(call.Self, st.Token, types.EntrypointGetBalance, types.GetBalanceParams{
		Owner:    call.Self,
		Callback: types.Callback{Address: call.Self, Entrypoint: EntrypointSweepCallback},
	})
	st.Sweep = next
	if err := e.state.PutLiquidityStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SweepRequested{Controller: call.Self, Token: st.Token, Destination: destination})
	return []types.Operation{op}, nil
}

// SendAllTokensCallback transfers the reported balance to the pending
// destination and returns the sweep to idle.
func (e *Engine) SendAllTokensCallback(call types.CallContext, balance *uint256.Int) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if call.Sender != st.Token || st.Token.IsZero() {
		return nil, coreerrors.New(coreerrors.CodeBadSender, "callback from %s", call.Sender)
	}
	destination, next, err := st.Sweep.Complete()
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, errNilAmount
	}
	if err := common.RequireEntrypoint(e.resolver, st.Token, types.EntrypointTransfer, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	op := types.Call(call.Self, st.Token, types.EntrypointTransfer, types.TransferParams{
		From:  call.Self,
		To:    destination,
		Value: new(uint256.Int).Set(balance),
	})
	st.Sweep = next
	if err := e.state.PutLiquidityStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SweepCompleted{Controller: call.Self, Token: st.Token, Destination: destination, Amount: balance})
	return []types.Operation{op}, nil
}

// RescueFA12 transfers an arbitrary FA1.2 token held by the controller.
func (e *Engine) RescueFA12(call types.CallContext, token crypto.Address, amount *uint256.Int, destination crypto.Address) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	return e.transferFA12(call, token, amount, destination)
}

// RescueFA2 transfers an arbitrary FA2 token held by the controller.
func (e *Engine) RescueFA2(call types.CallContext, token crypto.Address, tokenID uint64, amount *uint256.Int, destination crypto.Address) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	if amount == nil {
		return nil, errNilAmount
	}
	if destination.IsZero() {
		return nil, errNilDestination
	}
	if err := common.RequireEntrypoint(e.resolver, token, types.EntrypointTransfer, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	batch := []types.FA2Transfer{{
		From: call.Self,
		Txs: []types.FA2TransferTx{{
			To:      destination,
			TokenID: tokenID,
			Amount:  new(uint256.Int).Set(amount),
		}},
	}}
	id := tokenID
	e.emitter.Emit(events.FundsMoved{Controller: call.Self, Asset: token.String(), TokenID: &id, Destination: destination, Amount: amount})
	return []types.Operation{types.Call(call.Self, token, types.EntrypointTransfer, batch)}, nil
}

func (e *Engine) transferFA12(call types.CallContext, token crypto.Address, amount *uint256.Int, destination crypto.Address) ([]types.Operation, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	if destination.IsZero() {
		return nil, errNilDestination
	}
	if err := common.RequireEntrypoint(e.resolver, token, types.EntrypointTransfer, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	op := types.Call(call.Self, token, types.EntrypointTransfer, types.TransferParams{
		From:  call.Self,
		To:    destination,
		Value: new(uint256.Int).Set(amount),
	})
	e.emitter.Emit(events.FundsMoved{Controller: call.Self, Asset: token.String(), Destination: destination, Amount: amount})
	return []types.Operation{op}, nil
}
