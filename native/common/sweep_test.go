package common

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
	"treasury/crypto"
)

func makeAddress(kind crypto.AddressKind, fill byte) crypto.Address {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(kind, b)
}

func TestSweepLifecycle(t *testing.T) {
	dest := makeAddress(crypto.ImplicitEd25519, 0x11)
	var sweep Sweep
	if _, ok := sweep.Pending(); ok {
		t.Fatalf("new sweep must be idle")
	}
	waiting, err := sweep.Begin(dest)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got, ok := waiting.Pending(); !ok || got != dest {
		t.Fatalf("expected pending destination %s, got %s (%v)", dest, got, ok)
	}
	if _, err := waiting.Begin(makeAddress(crypto.ImplicitEd25519, 0x22)); !errors.Is(err, coreerrors.ErrBadState) {
		t.Fatalf("second begin must fail with bad state, got %v", err)
	}
	got, idle, err := waiting.Complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != dest || idle.State != SweepIdle || !idle.Destination.IsZero() {
		t.Fatalf("unexpected completion %s %+v", got, idle)
	}
	if _, _, err := idle.Complete(); !errors.Is(err, coreerrors.ErrBadState) {
		t.Fatalf("complete while idle must fail with bad state, got %v", err)
	}
}

func TestGuards(t *testing.T) {
	governor := makeAddress(crypto.ImplicitEd25519, 0x01)
	other := makeAddress(crypto.ImplicitEd25519, 0x02)
	if err := RequireCaller(governor, governor, coreerrors.CodeNotGovernor); err != nil {
		t.Fatalf("governor must pass: %v", err)
	}
	if err := RequireCaller(other, governor, coreerrors.CodeNotGovernor); !errors.Is(err, coreerrors.ErrNotGovernor) {
		t.Fatalf("expected not governor, got %v", err)
	}
	if err := RequireCaller(crypto.Address{}, crypto.Address{}, coreerrors.CodeNotExecutor); !errors.Is(err, coreerrors.ErrNotExecutor) {
		t.Fatalf("unset role must never match, got %v", err)
	}
	if err := RequireNoAmount(uint256.NewInt(1)); !errors.Is(err, coreerrors.ErrCannotReceiveFunds) {
		t.Fatalf("expected cannot receive funds, got %v", err)
	}
	if err := RequireNoAmount(nil); err != nil {
		t.Fatalf("nil amount must pass: %v", err)
	}
	if err := Guard(StaticPauses{"maker": true}, "maker"); !errors.Is(err, coreerrors.ErrPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(StaticPauses{"maker": true}, "liquidity"); err != nil {
		t.Fatalf("unpaused module must pass: %v", err)
	}
}
