package common

import (
	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/crypto"
)

// PauseView exposes operator-level module pauses configured for a deployment.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the operator paused the module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return coreerrors.New(coreerrors.CodePaused, "module %s paused", module)
	}
	return nil
}

// RequireCaller fails with code unless sender is the configured role holder.
// An unset role never matches.
func RequireCaller(sender, role crypto.Address, code coreerrors.Code) error {
	if role.IsZero() || sender != role {
		return coreerrors.New(code, "sender %s", sender)
	}
	return nil
}

// RequireNoAmount rejects invocations that attach native currency.
func RequireNoAmount(amount *uint256.Int) error {
	if amount != nil && !amount.IsZero() {
		return coreerrors.New(coreerrors.CodeCannotReceiveFunds, "attached %s", amount.Dec())
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed module set.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
