package types

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"

	"treasury/crypto"
)

// Invocation is an external request to run one controller entrypoint.
type Invocation struct {
	ID         string          `json:"id,omitempty"`
	Target     crypto.Address  `json:"target"`
	Entrypoint string          `json:"entrypoint"`
	Sender     crypto.Address  `json:"sender"`
	Amount     *uint256.Int    `json:"amount,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CallContext is what a controller observes about the invocation it runs in.
// Balance already includes Amount.
type CallContext struct {
	Self    crypto.Address
	Sender  crypto.Address
	Amount  *uint256.Int
	Balance *uint256.Int
	Now     time.Time
}

// AttachedAmount returns the incoming native amount or zero.
func (c CallContext) AttachedAmount() *uint256.Int {
	return cloneAmount(c.Amount)
}

// NativeBalance returns the controller's native balance or zero.
func (c CallContext) NativeBalance() *uint256.Int {
	return cloneAmount(c.Balance)
}

// EntrypointResolver reports whether a contract exposes an entrypoint.
type EntrypointResolver interface {
	HasEntrypoint(addr crypto.Address, entrypoint string) bool
}

// ResolveAll is an EntrypointResolver that accepts every entrypoint.
type ResolveAll struct{}

// HasEntrypoint implements EntrypointResolver.
func (ResolveAll) HasEntrypoint(crypto.Address, string) bool { return true }
