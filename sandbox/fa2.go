package sandbox

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

// MultiToken is an FA2 ledger kept in host state. Only the batch transfer
// entrypoint is served; operators are not modelled, so a sender may only move
// its own balance.
type MultiToken struct {
	addr crypto.Address
}

// NewMultiToken returns an FA2 ledger at addr.
func NewMultiToken(addr crypto.Address) *MultiToken {
	return &MultiToken{addr: addr}
}

func (m *MultiToken) Address() crypto.Address { return m.addr }

func (m *MultiToken) HasEntrypoint(entrypoint string) bool {
	return entrypoint == types.EntrypointTransfer
}

func (m *MultiToken) balanceKey(tokenID uint64, owner crypto.Address) []byte {
	return []byte(fmt.Sprintf("sandbox/fa2/%s/%d/%s", m.addr, tokenID, owner))
}

// BalanceOf reads the balance of owner for tokenID.
func (m *MultiToken) BalanceOf(env runtime.Env, tokenID uint64, owner crypto.Address) (*uint256.Int, error) {
	return readAmount(env, m.balanceKey(tokenID, owner))
}

// Mint credits owner with amount of tokenID.
func (m *MultiToken) Mint(env runtime.Env, tokenID uint64, owner crypto.Address, amount *uint256.Int) error {
	balance, err := m.BalanceOf(env, tokenID, owner)
	if err != nil {
		return err
	}
	return env.State.KVPut(m.balanceKey(tokenID, owner), new(uint256.Int).Add(balance, amount))
}

func (m *MultiToken) Apply(_ context.Context, env runtime.Env, op types.Operation) ([]types.Operation, error) {
	var batch []types.FA2Transfer
	if err := decodeParams(op.Params, &batch); err != nil {
		return nil, err
	}
	for _, transfer := range batch {
		if transfer.From != op.Source {
			return nil, fmt.Errorf("sandbox fa2: %s is not an operator of %s", op.Source, transfer.From)
		}
		for _, tx := range transfer.Txs {
			amount := amountOrZero(tx.Amount)
			balance, err := m.BalanceOf(env, tx.TokenID, transfer.From)
			if err != nil {
				return nil, err
			}
			if balance.Lt(amount) {
				return nil, coreerrors.New(coreerrors.CodeNotEnoughTokens, "fa2 balance %s below %s", balance.Dec(), amount.Dec())
			}
			if err := env.State.KVPut(m.balanceKey(tx.TokenID, transfer.From), new(uint256.Int).Sub(balance, amount)); err != nil {
				return nil, err
			}
			if err := m.Mint(env, tx.TokenID, tx.To, amount); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}
