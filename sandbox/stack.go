package sandbox

import (
	"context"

	"github.com/holiman/uint256"

	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

// Stack is a complete local collaborator set: one FA1.2 token, its pool, an
// FA2 ledger for rescue tests and the oracle feeds.
type Stack struct {
	Token *Token
	Pool  *Pool
	FA2   *MultiToken
	Feeds *Feeds
}

// Addresses locates the sandbox collaborators.
type Addresses struct {
	Token crypto.Address
	Pool  crypto.Address
	FA2   crypto.Address
}

// Install registers the collaborators with host and routes its price views to
// the stack's feeds. A zero FA2 address skips the FA2 ledger.
func Install(host *runtime.Host, addrs Addresses) (*Stack, error) {
	stack := &Stack{
		Token: NewToken(addrs.Token),
		Feeds: NewFeeds(),
	}
	stack.Pool = NewPool(addrs.Pool, stack.Token)
	if err := host.RegisterCollaborator(stack.Token); err != nil {
		return nil, err
	}
	if err := host.RegisterCollaborator(stack.Pool); err != nil {
		return nil, err
	}
	if !addrs.FA2.IsZero() {
		stack.FA2 = NewMultiToken(addrs.FA2)
		if err := host.RegisterCollaborator(stack.FA2); err != nil {
			return nil, err
		}
	}
	stack.Feeds.SetClock(host.Now)
	host.SetViews(stack.Feeds)
	return stack, nil
}

// Fund mints tokens and credits native currency to owner in one unit.
func (s *Stack) Fund(ctx context.Context, host *runtime.Host, owner crypto.Address, tokens, native *uint256.Int) error {
	_, err := host.Apply(ctx, "fund:"+owner.String(), func(env runtime.Env) ([]types.Operation, error) {
		if tokens != nil && !tokens.IsZero() {
			if err := s.Token.Mint(env, owner, tokens); err != nil {
				return nil, err
			}
		}
		return nil, env.State.CreditNative(owner, native)
	})
	return err
}

// TopUp raises the token and native balances of owner to at least the given
// amounts. Balances already at or above target are left alone, so repeated
// calls across restarts mint nothing new.
func (s *Stack) TopUp(ctx context.Context, host *runtime.Host, owner crypto.Address, tokens, native *uint256.Int) error {
	_, err := host.Apply(ctx, "topup:"+owner.String(), func(env runtime.Env) ([]types.Operation, error) {
		if tokens != nil {
			held, err := s.Token.BalanceOf(env, owner)
			if err != nil {
				return nil, err
			}
			if held.Lt(tokens) {
				if err := s.Token.Mint(env, owner, new(uint256.Int).Sub(tokens, held)); err != nil {
					return nil, err
				}
			}
		}
		if native != nil {
			held, err := env.State.NativeBalance(owner)
			if err != nil {
				return nil, err
			}
			if held.Lt(native) {
				return nil, env.State.CreditNative(owner, new(uint256.Int).Sub(native, held))
			}
		}
		return nil, nil
	})
	return err
}
