package oracle

import (
	"time"

	"github.com/holiman/uint256"

	coreerrors "treasury/core/errors"
)

var (
	// Precision is the fixed-point scale of the managed token.
	Precision = uint256.NewInt(1_000_000_000_000_000_000)
	// QuoteScale is the oracle's quote scale: one unit is 10^-6 of the quote currency.
	QuoteScale = uint256.NewInt(1_000_000)
	// PegFloor is 99% of 1.000000 in QuoteScale.
	PegFloor = uint256.NewInt(990_000)
)

// CheckFreshness rejects observations older than maxDelaySec seconds at now.
// An observation exactly maxDelaySec old is accepted. Observations stamped in
// the future are rejected rather than treated as age zero.
func CheckFreshness(point PricePoint, now time.Time, maxDelaySec uint64) error {
	observed := point.ObservedAt.Unix()
	current := now.Unix()
	if observed > current {
		return coreerrors.New(coreerrors.CodeInvalidObservation, "observation at %d is after now %d", observed, current)
	}
	age := uint64(current - observed)
	if age > maxDelaySec {
		return coreerrors.New(coreerrors.CodeStaleData, "data age %ds exceeds %ds", age, maxDelaySec)
	}
	return nil
}

// PercentDiff returns |a - b| * scale / reference, truncated toward zero.
func PercentDiff(a, b, reference *uint256.Int, scale uint64) (*uint256.Int, error) {
	if reference == nil || reference.IsZero() {
		return nil, coreerrors.New(coreerrors.CodeDivisionByZero, "reference price is zero")
	}
	diff := new(uint256.Int)
	if a.Cmp(b) >= 0 {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(diff, uint256.NewInt(scale))
	if overflow {
		return nil, coreerrors.New(coreerrors.CodeOverflow, "percent difference overflows")
	}
	return scaled.Div(scaled, reference), nil
}

// CheckDivergence requires tolerance to strictly exceed diff.
func CheckDivergence(diff *uint256.Int, tolerance uint64, code coreerrors.Code) error {
	if uint256.NewInt(tolerance).Gt(diff) {
		return nil
	}
	return coreerrors.New(code, "divergence %s not below tolerance %d", diff.Dec(), tolerance)
}

// CheckPeg rejects stablecoin prices below PegFloor.
func CheckPeg(point PricePoint) error {
	if point.Price.Lt(PegFloor) {
		return coreerrors.New(coreerrors.CodePegError, "peg price %s below %s", point.Price.Dec(), PegFloor.Dec())
	}
	return nil
}

// Upsample converts a QuoteScale price into Precision scale.
func Upsample(price *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(price, Precision)
	if overflow {
		return nil, coreerrors.New(coreerrors.CodeOverflow, "upsampling %s overflows", price.Dec())
	}
	return out.Div(out, QuoteScale), nil
}
