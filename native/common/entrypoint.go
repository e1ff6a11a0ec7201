package common

import (
	coreerrors "treasury/core/errors"
	"treasury/core/types"
	"treasury/crypto"
)

// RequireEntrypoint fails with code when target does not expose entrypoint.
// A nil resolver accepts every entrypoint.
func RequireEntrypoint(r types.EntrypointResolver, target crypto.Address, entrypoint string, code coreerrors.Code) error {
	if target.IsZero() {
		return coreerrors.New(code, "%s target not configured", entrypoint)
	}
	if r == nil {
		return nil
	}
	if !r.HasEntrypoint(target, entrypoint) {
		return coreerrors.New(code, "%s has no entrypoint %s", target, entrypoint)
	}
	return nil
}
