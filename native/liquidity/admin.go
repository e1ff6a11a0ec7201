package liquidity

import (
	"strconv"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
)

// Parameter names reported in ParameterUpdated events.
const (
	FieldGovernor          = "governor"
	FieldExecutor          = "executor"
	FieldToken             = "token"
	FieldAMM               = "amm"
	FieldOracle            = "oracle"
	FieldSlippageTolerance = "slippageTolerance"
	FieldMaxDataDelaySec   = "maxDataDelaySec"
)

func (e *Engine) update(call types.CallContext, field, value string, mutate func(*Storage)) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.Governor, coreerrors.CodeNotGovernor); err != nil {
		return nil, err
	}
	mutate(st)
	if err := e.state.PutLiquidityStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ParameterUpdated{Controller: call.Self, Field: field, Value: value})
	return nil, nil
}

func (e *Engine) updateAddress(call types.CallContext, field string, addr crypto.Address, mutate func(*Storage)) ([]types.Operation, error) {
	if addr.IsZero() {
		return nil, errZeroAddress
	}
	return e.update(call, field, addr.String(), mutate)
}

// SetGovernor hands governance to addr.
func (e *Engine) SetGovernor(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldGovernor, addr, func(s *Storage) { s.Governor = addr })
}

// SetExecutor replaces the account allowed to add liquidity and veto.
func (e *Engine) SetExecutor(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldExecutor, addr, func(s *Storage) { s.Executor = addr })
}

// SetToken rotates the FA1.2 token the controller manages.
func (e *Engine) SetToken(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldToken, addr, func(s *Storage) { s.Token = addr })
}

// SetAMM rotates the liquidity pool.
func (e *Engine) SetAMM(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldAMM, addr, func(s *Storage) { s.AMM = addr })
}

// SetOracle rotates the VWAP feed.
func (e *Engine) SetOracle(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldOracle, addr, func(s *Storage) { s.Oracle = addr })
}

// SetSlippageTolerance sets the allowed deposit divergence in percent.
func (e *Engine) SetSlippageTolerance(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.update(call, FieldSlippageTolerance, strconv.FormatUint(value, 10), func(s *Storage) { s.SlippageTolerance = value })
}

// SetMaxDataDelaySec sets the maximum oracle age in seconds.
func (e *Engine) SetMaxDataDelaySec(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.update(call, FieldMaxDataDelaySec, strconv.FormatUint(value, 10), func(s *Storage) { s.MaxDataDelaySec = value })
}
