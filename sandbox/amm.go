package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

// Pool is a constant-price AMM double. It pulls approved tokens, pays out the
// minimum requested native output and records every call it receives.
type Pool struct {
	addr  crypto.Address
	token *Token
}

// NewPool returns a pool at addr trading token.
func NewPool(addr crypto.Address, token *Token) *Pool {
	return &Pool{addr: addr, token: token}
}

// PoolCall is one recorded pool invocation.
type PoolCall struct {
	Entrypoint string          `json:"entrypoint"`
	Source     crypto.Address  `json:"source"`
	Amount     *uint256.Int    `json:"amount"`
	Params     json.RawMessage `json:"params,omitempty"`
}

func (p *Pool) Address() crypto.Address { return p.addr }

func (p *Pool) HasEntrypoint(entrypoint string) bool {
	switch entrypoint {
	case types.EntrypointDefault,
		types.EntrypointInvestLiquidity,
		types.EntrypointDivestLiquidity,
		types.EntrypointWithdrawProfit,
		types.EntrypointVote,
		types.EntrypointVeto,
		types.EntrypointTokenToTezPayment:
		return true
	default:
		return false
	}
}

func (p *Pool) callsKey() []byte {
	return []byte(fmt.Sprintf("sandbox/pool/%s/calls", p.addr))
}

// Calls returns every recorded call, oldest first.
func (p *Pool) Calls(env runtime.Env) ([]PoolCall, error) {
	var raw [][]byte
	if _, err := env.State.KVGet(p.callsKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]PoolCall, 0, len(raw))
	for _, item := range raw {
		var call PoolCall
		if err := json.Unmarshal(item, &call); err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, nil
}

func (p *Pool) record(env runtime.Env, op types.Operation) error {
	params, err := json.Marshal(op.Params)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(PoolCall{
		Entrypoint: op.Entrypoint,
		Source:     op.Source,
		Amount:     op.AttachedAmount(),
		Params:     params,
	})
	if err != nil {
		return err
	}
	var raw [][]byte
	if _, err := env.State.KVGet(p.callsKey(), &raw); err != nil {
		return err
	}
	return env.State.KVPut(p.callsKey(), append(raw, encoded))
}

func (p *Pool) Apply(_ context.Context, env runtime.Env, op types.Operation) ([]types.Operation, error) {
	if err := p.record(env, op); err != nil {
		return nil, err
	}
	switch op.Entrypoint {
	case types.EntrypointInvestLiquidity:
		var params types.InvestLiquidityParams
		if err := decodeParams(op.Params, &params); err != nil {
			return nil, err
		}
		return nil, p.pull(env, op.Source, amountOrZero(params.Tokens))
	case types.EntrypointTokenToTezPayment:
		var params types.TokenToTezPaymentParams
		if err := decodeParams(op.Params, &params); err != nil {
			return nil, err
		}
		if err := p.pull(env, op.Source, amountOrZero(params.Amount)); err != nil {
			return nil, err
		}
		return []types.Operation{types.Payment(p.addr, params.Receiver, params.MinOut)}, nil
	case types.EntrypointDivestLiquidity:
		var params types.DivestLiquidityParams
		if err := decodeParams(op.Params, &params); err != nil {
			return nil, err
		}
		if p.token != nil {
			if err := p.token.Mint(env, op.Source, amountOrZero(params.MinTokenOut)); err != nil {
				return nil, err
			}
		}
		return []types.Operation{types.Payment(p.addr, op.Source, params.MinNativeOut)}, nil
	default:
		return nil, nil
	}
}

func (p *Pool) pull(env runtime.Env, from crypto.Address, amount *uint256.Int) error {
	if p.token == nil || amount.IsZero() {
		return nil
	}
	return p.token.Move(env, p.addr, from, p.addr, amount)
}
