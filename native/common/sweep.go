package common

import (
	coreerrors "treasury/core/errors"
	"treasury/crypto"
)

// SweepState is the phase of the two-step balance sweep.
type SweepState uint8

const (
	SweepIdle                   SweepState = 0
	SweepWaitingForTokenBalance SweepState = 1
)

func (s SweepState) String() string {
	switch s {
	case SweepIdle:
		return "IDLE"
	case SweepWaitingForTokenBalance:
		return "WAITING_FOR_TOKEN_BALANCE"
	default:
		return "UNKNOWN"
	}
}

var errSweepDestination = coreerrors.New(coreerrors.CodeInvalidParameter, "sweep: destination required")

// Sweep is the single pending balance request of a controller. Destination is
// set exactly when State is SweepWaitingForTokenBalance.
//
// A callback that never arrives leaves the sweep waiting; nothing expires it.
type Sweep struct {
	State       SweepState
	Destination crypto.Address
}

// Begin moves an idle sweep to waiting for the token balance.
func (s Sweep) Begin(destination crypto.Address) (Sweep, error) {
	if s.State != SweepIdle {
		return s, coreerrors.New(coreerrors.CodeBadState, "sweep already %s", s.State)
	}
	if destination.IsZero() {
		return s, errSweepDestination
	}
	return Sweep{State: SweepWaitingForTokenBalance, Destination: destination}, nil
}

// Complete returns the pending destination and the idle sweep that follows.
func (s Sweep) Complete() (crypto.Address, Sweep, error) {
	if s.State != SweepWaitingForTokenBalance || s.Destination.IsZero() {
		return crypto.Address{}, s, coreerrors.New(coreerrors.CodeBadState, "no sweep pending")
	}
	return s.Destination, Sweep{State: SweepIdle}, nil
}

// Pending returns the destination of an in-flight sweep.
func (s Sweep) Pending() (crypto.Address, bool) {
	if s.State != SweepWaitingForTokenBalance {
		return crypto.Address{}, false
	}
	return s.Destination, true
}
