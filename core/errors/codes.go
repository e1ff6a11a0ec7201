package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is the stable numeric identifier surfaced to callers when a controller
// rejects an invocation. Values never change once assigned.
type Code uint16

const (
	CodeNotGovernor        Code = 1
	CodeNotExecutor        Code = 2
	CodeNotPauseGuardian   Code = 3
	CodeStaleData          Code = 4
	CodePaused             Code = 5
	CodeCannotReceiveFunds Code = 6
	CodeTradeTime          Code = 7
	CodeSlippage           Code = 8
	CodeNotEnoughTokens    Code = 9
	CodeBadSender          Code = 10
	CodeVwapViewError      Code = 11
	CodeSpotViewError      Code = 12
	CodeDexContractError   Code = 13
	CodeBadState           Code = 14
	CodeApprovalError      Code = 15
	CodeVolatility         Code = 16
	CodePegError           Code = 17
	CodeDivisionByZero     Code = 18
	CodeInvalidObservation Code = 19
	CodeOverflow           Code = 20
	CodePegViewError       Code = 21
	CodeInvalidParameter   Code = 22
)

var codeNames = map[Code]string{
	CodeNotGovernor:        "NOT_GOVERNOR",
	CodeNotExecutor:        "NOT_EXECUTOR",
	CodeNotPauseGuardian:   "NOT_PAUSE_GUARDIAN",
	CodeStaleData:          "STALE_DATA",
	CodePaused:             "PAUSED",
	CodeCannotReceiveFunds: "CANNOT_RECEIVE_FUNDS",
	CodeTradeTime:          "TRADE_TIME",
	CodeSlippage:           "SLIPPAGE",
	CodeNotEnoughTokens:    "NOT_ENOUGH_TOKENS",
	CodeBadSender:          "BAD_SENDER",
	CodeVwapViewError:      "VWAP_VIEW_ERROR",
	CodeSpotViewError:      "SPOT_VIEW_ERROR",
	CodeDexContractError:   "DEX_CONTRACT_ERROR",
	CodeBadState:           "BAD_STATE",
	CodeApprovalError:      "APPROVAL",
	CodeVolatility:         "VOLATILITY",
	CodePegError:           "PEG_ERROR",
	CodeDivisionByZero:     "DIVISION_BY_ZERO",
	CodeInvalidObservation: "INVALID_OBSERVATION",
	CodeOverflow:           "OVERFLOW",
	CodePegViewError:       "PEG_VIEW_ERROR",
	CodeInvalidParameter:   "INVALID_PARAMETER",
}

// String returns the upper-case symbolic name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", uint16(c))
}

// Error is a coded controller failure.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s (%d)", e.Code, uint16(e.Code))
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, uint16(e.Code), e.Detail)
}

// Is matches any *Error carrying the same code, so the package-level sentinels
// below can be used with errors.Is regardless of the detail text.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New returns a coded error with a formatted detail message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err. ok is false when err carries no code.
func CodeOf(err error) (Code, bool) {
	var coded *Error
	if stderrors.As(err, &coded) && coded != nil {
		return coded.Code, true
	}
	return 0, false
}

var (
	ErrNotGovernor        = &Error{Code: CodeNotGovernor}
	ErrNotExecutor        = &Error{Code: CodeNotExecutor}
	ErrNotPauseGuardian   = &Error{Code: CodeNotPauseGuardian}
	ErrStaleData          = &Error{Code: CodeStaleData}
	ErrPaused             = &Error{Code: CodePaused}
	ErrCannotReceiveFunds = &Error{Code: CodeCannotReceiveFunds}
	ErrTradeTime          = &Error{Code: CodeTradeTime}
	ErrSlippage           = &Error{Code: CodeSlippage}
	ErrNotEnoughTokens    = &Error{Code: CodeNotEnoughTokens}
	ErrBadSender          = &Error{Code: CodeBadSender}
	ErrVwapViewError      = &Error{Code: CodeVwapViewError}
	ErrSpotViewError      = &Error{Code: CodeSpotViewError}
	ErrDexContractError   = &Error{Code: CodeDexContractError}
	ErrBadState           = &Error{Code: CodeBadState}
	ErrApprovalError      = &Error{Code: CodeApprovalError}
	ErrVolatility         = &Error{Code: CodeVolatility}
	ErrPegError           = &Error{Code: CodePegError}
	ErrDivisionByZero     = &Error{Code: CodeDivisionByZero}
	ErrInvalidObservation = &Error{Code: CodeInvalidObservation}
	ErrOverflow           = &Error{Code: CodeOverflow}
	ErrPegViewError       = &Error{Code: CodePegViewError}
	ErrInvalidParameter   = &Error{Code: CodeInvalidParameter}

	// ErrOracleViewError is the liquidity controller's name for an unresolvable
	// price view. It shares the VWAP view code.
	ErrOracleViewError = ErrVwapViewError
)
