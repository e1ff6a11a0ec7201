package maker

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/types"
	"treasury/crypto"
)

// Entrypoint names of the maker controller.
const (
	EntrypointTokenToTezPayment      = types.EntrypointTokenToTezPayment
	EntrypointReturnBalance          = "returnBalance"
	EntrypointPause                  = "pause"
	EntrypointUnpause                = "unpause"
	EntrypointSetMaxDataDelaySec     = "setMaxDataDelaySec"
	EntrypointSetMinTradeDelaySec    = "setMinTradeDelaySec"
	EntrypointSetTradeAmount         = "setTradeAmount"
	EntrypointSetSpreadAmount        = "setSpreadAmount"
	EntrypointSetVolatilityTolerance = "setVolatilityTolerance"
	EntrypointSetVwap                = "setVwapContract"
	EntrypointSetSpot                = "setSpotContract"
	EntrypointSetPeg                 = "setPegContract"
	EntrypointSetPauseGuardian       = "setPauseGuardianContract"
	EntrypointSetQuipuswap           = "setQuipuswapContract"
	EntrypointSetGovernor            = "setGovernorContract"
	EntrypointSetReceiver            = "setReceiverContract"
	EntrypointSetToken               = "setTokenContract"
)

type handler func(e *Engine, ctx context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error)

var handlers = map[string]handler{
	EntrypointTokenToTezPayment: func(e *Engine, ctx context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.TokenToTezPayment(ctx, call)
	},
	EntrypointReturnBalance: func(e *Engine, _ context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.ReturnBalance(call)
	},
	EntrypointRedeemCallback: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		balance := new(uint256.Int)
		if err := decode(payload, balance); err != nil {
			return nil, err
		}
		return e.RedeemCallback(call, balance)
	},
	EntrypointPause: func(e *Engine, _ context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.Pause(call)
	},
	EntrypointUnpause: func(e *Engine, _ context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.Unpause(call)
	},
	EntrypointSetTradeAmount: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		amount := new(uint256.Int)
		if err := decode(payload, amount); err != nil {
			return nil, err
		}
		return e.SetTradeAmount(call, amount)
	},
	EntrypointSetPeg: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var addr crypto.Address
		if err := decode(payload, &addr); err != nil {
			return nil, err
		}
		return e.SetPeg(call, addr)
	},
	EntrypointSetMaxDataDelaySec:     numberSetter((*Engine).SetMaxDataDelaySec),
	EntrypointSetMinTradeDelaySec:    numberSetter((*Engine).SetMinTradeDelaySec),
	EntrypointSetSpreadAmount:        numberSetter((*Engine).SetSpreadAmount),
	EntrypointSetVolatilityTolerance: numberSetter((*Engine).SetVolatilityTolerance),
	EntrypointSetVwap:                addressSetter((*Engine).SetVwap),
	EntrypointSetSpot:                addressSetter((*Engine).SetSpot),
	EntrypointSetPauseGuardian:       addressSetter((*Engine).SetPauseGuardian),
	EntrypointSetQuipuswap:           addressSetter((*Engine).SetAMM),
	EntrypointSetGovernor:            addressSetter((*Engine).SetGovernor),
	EntrypointSetReceiver:            addressSetter((*Engine).SetReceiver),
	EntrypointSetToken:               addressSetter((*Engine).SetToken),
}

func addressSetter(fn func(*Engine, types.CallContext, crypto.Address) ([]types.Operation, error)) handler {
	return func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var addr crypto.Address
		if err := decode(payload, &addr); err != nil {
			return nil, err
		}
		return fn(e, call, addr)
	}
}

func numberSetter(fn func(*Engine, types.CallContext, uint64) ([]types.Operation, error)) handler {
	return func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var value uint64
		if err := decode(payload, &value); err != nil {
			return nil, err
		}
		return fn(e, call, value)
	}
}

// Entrypoints lists the entrypoint names in sorted order.
func Entrypoints() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasEntrypoint reports whether name is a maker controller entrypoint.
func HasEntrypoint(name string) bool {
	_, ok := handlers[name]
	return ok
}

// Dispatch decodes payload and runs the named entrypoint.
func (e *Engine) Dispatch(ctx context.Context, call types.CallContext, entrypoint string, payload json.RawMessage) ([]types.Operation, error) {
	h, ok := handlers[entrypoint]
	if !ok {
		return nil, coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: unknown entrypoint %q", entrypoint)
	}
	return h(e, ctx, call, payload)
}

func decode(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		return coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: payload required")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return coreerrors.New(coreerrors.CodeInvalidParameter, "maker engine: decode payload: %v", err)
	}
	return nil
}
