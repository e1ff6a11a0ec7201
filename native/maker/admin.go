package maker

import (
	"strconv"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
)

const (
	FieldGovernor            = "governor"
	FieldPauseGuardian       = "pauseGuardian"
	FieldReceiver            = "receiver"
	FieldToken               = "token"
	FieldAMM                 = "amm"
	FieldVwap                = "vwap"
	FieldSpot                = "spot"
	FieldPeg                 = "peg"
	FieldMaxDataDelaySec     = "maxDataDelaySec"
	FieldMinTradeDelaySec    = "minTradeDelaySec"
	FieldTradeAmount         = "tradeAmount"
	FieldSpreadAmount        = "spreadAmount"
	FieldVolatilityTolerance = "volatilityTolerance"
)

// Pause stops trading. Only the pause guardian may pause.
func (e *Engine) Pause(call types.CallContext) ([]types.Operation, error) {
	st, err := e.load(call.Self)
	if err != nil {
		return nil, err
	}
	if err := common.RequireNoAmount(call.Amount); err != nil {
		return nil, err
	}
	if err := common.RequireCaller(call.Sender, st.PauseGuardian, coreerrors.CodeNotPauseGuardian); err != nil {
		return nil, err
	}
	return e.storePaused(call, st, true)
}

// Unpause resumes trading. Only the governor may unpause.
func (e *Engine) Unpause(call types.CallContext) ([]types.Operation, error) {
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
	return e.storePaused(call, st, false)
}

func (e *Engine) storePaused(call types.CallContext, st *Storage, paused bool) ([]types.Operation, error) {
	st.Paused = paused
	if err := e.state.PutMakerStorage(call.Self, st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PauseChanged{Controller: call.Self, Paused: paused, By: call.Sender})
	return nil, nil
}

func (e *Engine) update(call types.CallContext, field, value string, mutate func(*Storage)) ([]types.Operation, error) {
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
	mutate(st)
	if err := e.state.PutMakerStorage(call.Self, st); err != nil {
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

func (e *Engine) updateNumber(call types.CallContext, field string, value uint64, mutate func(*Storage)) ([]types.Operation, error) {
	return e.update(call, field, strconv.FormatUint(value, 10), mutate)
}

// SetGovernor hands governance to addr.
func (e *Engine) SetGovernor(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldGovernor, addr, func(s *Storage) { s.Governor = addr })
}

// SetPauseGuardian replaces the account allowed to pause trading.
func (e *Engine) SetPauseGuardian(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldPauseGuardian, addr, func(s *Storage) { s.PauseGuardian = addr })
}

// SetReceiver changes where trade proceeds and returned balances go.
func (e *Engine) SetReceiver(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldReceiver, addr, func(s *Storage) { s.Receiver = addr })
}

// SetToken rotates the token sold by the maker.
func (e *Engine) SetToken(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldToken, addr, func(s *Storage) { s.Token = addr })
}

// SetAMM rotates the pool trades are routed to.
func (e *Engine) SetAMM(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldAMM, addr, func(s *Storage) { s.AMM = addr })
}

// SetVwap rotates the VWAP feed.
func (e *Engine) SetVwap(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldVwap, addr, func(s *Storage) { s.Vwap = addr })
}

// SetSpot rotates the spot candle feed.
func (e *Engine) SetSpot(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.updateAddress(call, FieldSpot, addr, func(s *Storage) { s.Spot = addr })
}

// SetPeg rotates the stablecoin peg feed. The zero address disables the peg check.
func (e *Engine) SetPeg(call types.CallContext, addr crypto.Address) ([]types.Operation, error) {
	return e.update(call, FieldPeg, addr.String(), func(s *Storage) { s.Peg = addr })
}

// SetMaxDataDelaySec sets the maximum feed age in seconds.
func (e *Engine) SetMaxDataDelaySec(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.updateNumber(call, FieldMaxDataDelaySec, value, func(s *Storage) { s.MaxDataDelaySec = value })
}

// SetMinTradeDelaySec sets the minimum gap between trades in seconds.
func (e *Engine) SetMinTradeDelaySec(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.updateNumber(call, FieldMinTradeDelaySec, value, func(s *Storage) { s.MinTradeDelaySec = value })
}

// SetSpreadAmount sets the required premium over the neutral output.
func (e *Engine) SetSpreadAmount(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.updateNumber(call, FieldSpreadAmount, value, func(s *Storage) { s.SpreadAmount = value })
}

// SetVolatilityTolerance sets the allowed VWAP/spot divergence.
func (e *Engine) SetVolatilityTolerance(call types.CallContext, value uint64) ([]types.Operation, error) {
	return e.updateNumber(call, FieldVolatilityTolerance, value, func(s *Storage) { s.VolatilityTolerance = value })
}

// SetTradeAmount sets the number of whole tokens sold per trade.
func (e *Engine) SetTradeAmount(call types.CallContext, value *uint256.Int) ([]types.Operation, error) {
	if value == nil {
		return nil, errNilAmount
	}
	amount := new(uint256.Int).Set(value)
	return e.update(call, FieldTradeAmount, amount.Dec(), func(s *Storage) { s.TradeAmount = amount })
}
