package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

// Token is an FA1.2 ledger kept in host state. It serves approve, transfer
// and getBalance. When callbacks are held, balance callbacks queue in state
// until Release.
type Token struct {
	addr crypto.Address
	hold atomic.Bool
}

// NewToken returns a token ledger at addr.
func NewToken(addr crypto.Address) *Token {
	return &Token{addr: addr}
}

func (t *Token) Address() crypto.Address { return t.addr }

func (t *Token) HasEntrypoint(entrypoint string) bool {
	switch entrypoint {
	case types.EntrypointApprove, types.EntrypointTransfer, types.EntrypointGetBalance:
		return true
	default:
		return false
	}
}

// HoldCallbacks makes getBalance queue its callback instead of emitting it.
func (t *Token) HoldCallbacks(hold bool) { t.hold.Store(hold) }

func (t *Token) balanceKey(owner crypto.Address) []byte {
	return []byte(fmt.Sprintf("sandbox/fa12/%s/balance/%s", t.addr, owner))
}

func (t *Token) allowanceKey(owner, spender crypto.Address) []byte {
	return []byte(fmt.Sprintf("sandbox/fa12/%s/allowance/%s/%s", t.addr, owner, spender))
}

func (t *Token) heldKey() []byte {
	return []byte(fmt.Sprintf("sandbox/fa12/%s/held", t.addr))
}

// BalanceOf reads the ledger balance of owner.
func (t *Token) BalanceOf(env runtime.Env, owner crypto.Address) (*uint256.Int, error) {
	return readAmount(env, t.balanceKey(owner))
}

// Allowance reads the amount spender may move from owner.
func (t *Token) Allowance(env runtime.Env, owner, spender crypto.Address) (*uint256.Int, error) {
	return readAmount(env, t.allowanceKey(owner, spender))
}

// Mint credits owner with amount.
func (t *Token) Mint(env runtime.Env, owner crypto.Address, amount *uint256.Int) error {
	balance, err := t.BalanceOf(env, owner)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("sandbox token: mint overflows")
	}
	return env.State.KVPut(t.balanceKey(owner), sum)
}

func (t *Token) Apply(_ context.Context, env runtime.Env, op types.Operation) ([]types.Operation, error) {
	switch op.Entrypoint {
	case types.EntrypointApprove:
		var p types.ApproveParams
		if err := decodeParams(op.Params, &p); err != nil {
			return nil, err
		}
		return nil, env.State.KVPut(t.allowanceKey(op.Source, p.Spender), amountOrZero(p.Value))
	case types.EntrypointTransfer:
		var p types.TransferParams
		if err := decodeParams(op.Params, &p); err != nil {
			return nil, err
		}
		return nil, t.Move(env, op.Source, p.From, p.To, amountOrZero(p.Value))
	case types.EntrypointGetBalance:
		var p types.GetBalanceParams
		if err := decodeParams(op.Params, &p); err != nil {
			return nil, err
		}
		balance, err := t.BalanceOf(env, p.Owner)
		if err != nil {
			return nil, err
		}
		callback := types.Call(t.addr, p.Callback.Address, p.Callback.Entrypoint, balance)
		if t.hold.Load() {
			return nil, t.queue(env, callback)
		}
		return []types.Operation{callback}, nil
	default:
		return nil, fmt.Errorf("sandbox token: unsupported entrypoint %q", op.Entrypoint)
	}
}

// Move transfers value from one holder to another. A spender other than from
// consumes allowance.
func (t *Token) Move(env runtime.Env, spender, from, to crypto.Address, value *uint256.Int) error {
	if spender != from {
		allowance, err := t.Allowance(env, from, spender)
		if err != nil {
			return err
		}
		if allowance.Lt(value) {
			return coreerrors.New(coreerrors.CodeNotEnoughTokens, "allowance %s below %s", allowance.Dec(), value.Dec())
		}
		if err := env.State.KVPut(t.allowanceKey(from, spender), new(uint256.Int).Sub(allowance, value)); err != nil {
			return err
		}
	}
	balance, err := t.BalanceOf(env, from)
	if err != nil {
		return err
	}
	if balance.Lt(value) {
		return coreerrors.New(coreerrors.CodeNotEnoughTokens, "balance %s below %s", balance.Dec(), value.Dec())
	}
	if err := env.State.KVPut(t.balanceKey(from), new(uint256.Int).Sub(balance, value)); err != nil {
		return err
	}
	return t.Mint(env, to, value)
}

func (t *Token) queue(env runtime.Env, op types.Operation) error {
	var held [][]byte
	if _, err := env.State.KVGet(t.heldKey(), &held); err != nil {
		return err
	}
	encoded, err := json.Marshal(heldCallback{
		Target:     op.Target,
		Entrypoint: op.Entrypoint,
		Balance:    op.Params.(*uint256.Int),
	})
	if err != nil {
		return err
	}
	return env.State.KVPut(t.heldKey(), append(held, encoded))
}

type heldCallback struct {
	Target     crypto.Address `json:"target"`
	Entrypoint string         `json:"entrypoint"`
	Balance    *uint256.Int   `json:"balance"`
}

// Held returns the number of queued callbacks.
func (t *Token) Held(env runtime.Env) (int, error) {
	var held [][]byte
	if _, err := env.State.KVGet(t.heldKey(), &held); err != nil {
		return 0, err
	}
	return len(held), nil
}

// Release delivers every held callback, oldest first, as one unit.
func (t *Token) Release(ctx context.Context, host *runtime.Host) (*runtime.Receipt, error) {
	return host.Apply(ctx, "release:"+t.addr.String(), func(env runtime.Env) ([]types.Operation, error) {
		var held [][]byte
		if _, err := env.State.KVGet(t.heldKey(), &held); err != nil {
			return nil, err
		}
		ops := make([]types.Operation, 0, len(held))
		for _, raw := range held {
			var cb heldCallback
			if err := json.Unmarshal(raw, &cb); err != nil {
				return nil, err
			}
			ops = append(ops, types.Call(t.addr, cb.Target, cb.Entrypoint, cb.Balance))
		}
		if err := env.State.KVPut(t.heldKey(), [][]byte{}); err != nil {
			return nil, err
		}
		return ops, nil
	})
}
