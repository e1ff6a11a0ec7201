package maker

import (
	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/types"
	"treasury/native/common"
)

// EntrypointRedeemCallback receives the balance requested by ReturnBalance.
const EntrypointRedeemCallback = "redeemCallback"

// ReturnBalance asks the token for the controller's balance. The callback
// forwards it to the receiver configured at request time.
func (e *Engine) ReturnBalance(call types.CallContext) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireNoAmount(call.Amount); err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	next, err := st.Sweep.Begin(st.Receiver)
	if err != nil {
		return nil, err
	}
	if err := common.RequireEntrypoint(e.resolver, st.Token, types.EntrypointGetBalance, coreerrors.CodeApprovalError); err != nil {
		return nil, err
	}
	op := types.Call(call.Self, st.Token, types.EntrypointGetBalance, types.GetBalanceParams{
		Owner:    call.Self,
		Callback: types.Callback{Address: call.Self, Entrypoint: EntrypointRedeemCallback},
	})
	st.Sweep = next
	if err := e.state.PutMakerStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SweepRequested{Controller: call.Self, Token: st.Token, Destination: st.Receiver})
	return []types.Operation{op}, nil
}

// RedeemCallback records the reported balance and transfers it out.
func (e *Engine) RedeemCallback(call types.CallContext, balance *uint256.Int) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireNoAmount(call.Amount); err != nil {
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
	st.TokenBalance = new(uint256.Int).Set(balance)
	st.Sweep = next
	op := types.Call(call.Self, st.Token, types.EntrypointTransfer, types.TransferParams{
		From:  call.Self,
		To:    destination,
		Value: new(uint256.Int).Set(balance),
	})
	if err := e.state.PutMakerStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SweepCompleted{Controller: call.Self, Token: st.Token, Destination: destination, Amount: balance})
	return []types.Operation{op}, nil
}
