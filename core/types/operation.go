package types

import (
	"fmt"

	"github.com/holiman/uint256"

	"treasury/crypto"
)

// Entrypoint names exposed by the token, AMM and controller contracts.
const (
	EntrypointDefault           = "default"
	EntrypointApprove           = "approve"
	EntrypointTransfer          = "transfer"
	EntrypointGetBalance        = "getBalance"
	EntrypointInvestLiquidity   = "investLiquidity"
	EntrypointDivestLiquidity   = "divestLiquidity"
	EntrypointWithdrawProfit    = "withdrawProfit"
	EntrypointVote              = "vote"
	EntrypointVeto              = "veto"
	EntrypointTokenToTezPayment = "tokenToTezPayment"
)

// OperationKind distinguishes contract calls from baker delegation changes.
type OperationKind uint8

const (
	OperationTransaction OperationKind = iota
	OperationDelegation
)

func (k OperationKind) String() string {
	switch k {
	case OperationTransaction:
		return "transaction"
	case OperationDelegation:
		return "delegation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Operation is a one-way call emitted by a controller. Operations are applied
// in emission order after the emitting invocation commits.
type Operation struct {
	Kind       OperationKind  `json:"kind"`
	Source     crypto.Address `json:"source"`
	Target     crypto.Address `json:"target,omitempty"`
	Entrypoint string         `json:"entrypoint,omitempty"`
	Amount     *uint256.Int   `json:"amount,omitempty"`
	Params     any            `json:"params,omitempty"`
}

// Call builds a transaction operation with no native amount attached.
func Call(source, target crypto.Address, entrypoint string, params any) Operation {
	return Operation{
		Kind:       OperationTransaction,
		Source:     source,
		Target:     target,
		Entrypoint: entrypoint,
		Amount:     new(uint256.Int),
		Params:     params,
	}
}

// Payment builds a native currency transfer to the target's default entrypoint.
func Payment(source, target crypto.Address, amount *uint256.Int) Operation {
	return Operation{
		Kind:       OperationTransaction,
		Source:     source,
		Target:     target,
		Entrypoint: EntrypointDefault,
		Amount:     cloneAmount(amount),
	}
}

// Delegation builds a delegate change. A nil delegate withdraws the delegation.
func Delegation(source crypto.Address, delegate *crypto.KeyHash) Operation {
	return Operation{
		Kind:   OperationDelegation,
		Source: source,
		Amount: new(uint256.Int),
		Params: SetDelegateParams{Delegate: delegate},
	}
}

// AttachedAmount returns the native amount or zero.
func (op Operation) AttachedAmount() *uint256.Int {
	return cloneAmount(op.Amount)
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// ApproveParams is the FA1.2 approve argument.
type ApproveParams struct {
	Spender crypto.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

// TransferParams is the FA1.2 transfer argument.
type TransferParams struct {
	From  crypto.Address `json:"from"`
	To    crypto.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

// FA2Transfer is one element of an FA2 transfer batch.
type FA2Transfer struct {
	From crypto.Address  `json:"from_"`
	Txs  []FA2TransferTx `json:"txs"`
}

// FA2TransferTx is a single destination inside an FA2 transfer.
type FA2TransferTx struct {
	To      crypto.Address `json:"to_"`
	TokenID uint64         `json:"token_id"`
	Amount  *uint256.Int   `json:"amount"`
}

// Callback names the contract entrypoint a view result is delivered to.
type Callback struct {
	Address    crypto.Address `json:"address"`
	Entrypoint string         `json:"entrypoint"`
}

// GetBalanceParams is the FA1.2 getBalance argument.
type GetBalanceParams struct {
	Owner    crypto.Address `json:"owner"`
	Callback Callback       `json:"callback"`
}

// InvestLiquidityParams carries the token side of a liquidity deposit. The
// native side travels as the operation amount.
type InvestLiquidityParams struct {
	Tokens *uint256.Int `json:"tokens"`
}

// DivestLiquidityParams withdraws liquidity with minimum outputs.
type DivestLiquidityParams struct {
	MinNativeOut *uint256.Int `json:"minNativeOut"`
	MinTokenOut  *uint256.Int `json:"minTokenOut"`
	Shares       *uint256.Int `json:"shares"`
}

// WithdrawProfitParams claims accrued baking rewards.
type WithdrawProfitParams struct {
	Receiver crypto.Address `json:"receiver"`
}

// VoteParams votes for a baker candidate with LP shares.
type VoteParams struct {
	Candidate crypto.KeyHash `json:"candidate"`
	Value     *uint256.Int   `json:"value"`
	Voter     crypto.Address `json:"voter"`
}

// VetoParams vetoes the current baker with LP shares.
type VetoParams struct {
	Value *uint256.Int   `json:"value"`
	Voter crypto.Address `json:"voter"`
}

// TokenToTezPaymentParams sells tokens for native currency.
type TokenToTezPaymentParams struct {
	Amount   *uint256.Int   `json:"amount"`
	MinOut   *uint256.Int   `json:"minOut"`
	Receiver crypto.Address `json:"receiver"`
}

// SetDelegateParams is the payload of a delegation operation.
type SetDelegateParams struct {
	Delegate *crypto.KeyHash `json:"delegate,omitempty"`
}
