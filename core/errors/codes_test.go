package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodedErrorsMatchByCode(t *testing.T) {
	err := New(CodeSlippage, "diff %d exceeds tolerance %d", 60, 5)
	if !stderrors.Is(err, ErrSlippage) {
		t.Fatalf("expected slippage match")
	}
	if stderrors.Is(err, ErrVolatility) {
		t.Fatalf("unexpected volatility match")
	}
	wrapped := fmt.Errorf("invoke: %w", err)
	code, ok := CodeOf(wrapped)
	if !ok || code != CodeSlippage {
		t.Fatalf("expected code %d, got %d (%v)", CodeSlippage, code, ok)
	}
}

func TestCodesAreStable(t *testing.T) {
	cases := map[Code]uint16{
		CodeNotGovernor:      1,
		CodeStaleData:        4,
		CodeBadSender:        10,
		CodeDexContractError: 13,
		CodeBadState:         14,
		CodeVolatility:       16,
		CodePegError:         17,
		CodePegViewError:     21,
		CodeInvalidParameter: 22,
	}
	for code, want := range cases {
		if uint16(code) != want {
			t.Fatalf("%s: expected %d, got %d", code, want, uint16(code))
		}
	}
	if ErrOracleViewError.Code != CodeVwapViewError {
		t.Fatalf("oracle view error must share the vwap view code")
	}
	if ErrPegViewError.Code == ErrPegError.Code {
		t.Fatalf("peg view failures must not share the peg break code")
	}
	if got := ErrBadState.Error(); got != "BAD_STATE (14)" {
		t.Fatalf("unexpected message %q", got)
	}
}
