package liquidity

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/types"
	"treasury/crypto"
)

// Entrypoint names of the liquidity controller.
const (
	EntrypointDefault              = types.EntrypointDefault
	EntrypointAddLiquidity         = "addLiquidity"
	EntrypointRemoveLiquidity      = "removeLiquidity"
	EntrypointClaimRewards         = "claimRewards"
	EntrypointVote                 = "vote"
	EntrypointVeto                 = "veto"
	EntrypointSetDelegate          = "setDelegate"
	EntrypointSend                 = "send"
	EntrypointSendAll              = "sendAll"
	EntrypointSendTokens           = "sendTokens"
	EntrypointSendAllTokens        = "sendAllTokens"
	EntrypointRescueFA12           = "rescueFA12"
	EntrypointRescueFA2            = "rescueFA2"
	EntrypointSetGovernor          = "setGovernorContract"
	EntrypointSetExecutor          = "setExecutorContract"
	EntrypointSetToken             = "setTokenContract"
	EntrypointSetQuipuswap         = "setQuipuswapContract"
	EntrypointSetHarbinger         = "setHarbingerContract"
	EntrypointSetSlippageTolerance = "setSlippageTolerance"
	EntrypointSetMaxDataDelaySec   = "setMaxDataDelaySec"
)

// AddLiquidityParams is the addLiquidity payload.
type AddLiquidityParams struct {
	Tokens *uint256.Int `json:"tokens"`
	Mutez  *uint256.Int `json:"mutez"`
}

// TransferRequest is the payload of send and sendTokens.
type TransferRequest struct {
	Amount      *uint256.Int   `json:"amount"`
	Destination crypto.Address `json:"destination"`
}

// RescueFA12Params is the rescueFA12 payload.
type RescueFA12Params struct {
	Token       crypto.Address `json:"token"`
	Amount      *uint256.Int   `json:"amount"`
	Destination crypto.Address `json:"destination"`
}

// RescueFA2Params is the rescueFA2 payload.
type RescueFA2Params struct {
	Token       crypto.Address `json:"token"`
	TokenID     uint64         `json:"tokenId"`
	Amount      *uint256.Int   `json:"amount"`
	Destination crypto.Address `json:"destination"`
}

type handler func(e *Engine, ctx context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error)

var handlers = map[string]handler{
	EntrypointDefault: func(e *Engine, _ context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.Default(call)
	},
	EntrypointAddLiquidity: func(e *Engine, ctx context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p AddLiquidityParams
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.AddLiquidity(ctx, call, p.Tokens, p.Mutez)
	},
	EntrypointRemoveLiquidity: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p types.DivestLiquidityParams
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.RemoveLiquidity(call, p)
	},
	EntrypointClaimRewards: func(e *Engine, _ context.Context, call types.CallContext, _ json.RawMessage) ([]types.Operation, error) {
		return e.ClaimRewards(call)
	},
	EntrypointVote: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p types.VoteParams
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.Vote(call, p)
	},
	EntrypointVeto: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p types.VetoParams
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.Veto(call, p)
	},
	EntrypointSetDelegate: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p types.SetDelegateParams
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.SetDelegate(call, p.Delegate)
	},
	EntrypointSend: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p TransferRequest
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.Send(call, p.Amount, p.Destination)
	},
	EntrypointSendAll: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var dest crypto.Address
		if err := decode(payload, &dest); err != nil {
			return nil, err
		}
		return e.SendAll(call, dest)
	},
	EntrypointSendTokens: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p TransferRequest
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.SendTokens(call, p.Amount, p.Destination)
	},
	EntrypointSendAllTokens: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var dest crypto.Address
		if err := decode(payload, &dest); err != nil {
			return nil, err
		}
		return e.SendAllTokens(call, dest)
	},
	EntrypointSweepCallback: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		balance := new(uint256.Int)
		if err := decode(payload, balance); err != nil {
			return nil, err
		}
		return e.SendAllTokensCallback(call, balance)
	},
	EntrypointRescueFA12: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p RescueFA12Params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.RescueFA12(call, p.Token, p.Amount, p.Destination)
	},
	EntrypointRescueFA2: func(e *Engine, _ context.Context, call types.CallContext, payload json.RawMessage) ([]types.Operation, error) {
		var p RescueFA2Params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return e.RescueFA2(call, p.Token, p.TokenID, p.Amount, p.Destination)
	},
	EntrypointSetGovernor:          addressSetter((*Engine).SetGovernor),
	EntrypointSetExecutor:          addressSetter((*Engine).SetExecutor),
	EntrypointSetToken:             addressSetter((*Engine).SetToken),
	EntrypointSetQuipuswap:         addressSetter((*Engine).SetAMM),
	EntrypointSetHarbinger:         addressSetter((*Engine).SetOracle),
	EntrypointSetSlippageTolerance: numberSetter((*Engine).SetSlippageTolerance),
	EntrypointSetMaxDataDelaySec:   numberSetter((*Engine).SetMaxDataDelaySec),
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

// HasEntrypoint reports whether name is a liquidity controller entrypoint.
func HasEntrypoint(name string) bool {
	_, ok := handlers[name]
	return ok
}

// Dispatch decodes payload and runs the named entrypoint.
func (e *Engine) Dispatch(ctx context.Context, call types.CallContext, entrypoint string, payload json.RawMessage) ([]types.Operation, error) {
	h, ok := handlers[entrypoint]
	if !ok {
		return nil, coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: unknown entrypoint %q", entrypoint)
	}
	return h(e, ctx, call, payload)
}

func decode(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		return coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: payload required")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return coreerrors.New(coreerrors.CodeInvalidParameter, "liquidity engine: decode payload: %v", err)
	}
	return nil
}
