package maker

import (
	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/native/common"
)

const (
	DefaultMaxDataDelaySec     uint64 = 300
	DefaultVolatilityTolerance uint64 = 5
	DefaultTradeAmount         uint64 = 10
	DefaultPercentScale        uint64 = 100
	// DefaultLastTradeTime is the unix second the first trade delay is measured from.
	DefaultLastTradeTime int64 = 1
)

// Storage is the persisted configuration and trade state of one maker
// controller. Vwap and Peg are optional feeds; a zero address disables the
// corresponding check.
type Storage struct {
	Governor      crypto.Address
	PauseGuardian crypto.Address
	Receiver      crypto.Address
	Token         crypto.Address
	AMM           crypto.Address
	Vwap          crypto.Address
	Spot          crypto.Address
	Peg           crypto.Address

	Paused              bool
	MaxDataDelaySec     uint64
	MinTradeDelaySec    uint64
	SpreadAmount        uint64
	VolatilityTolerance uint64
	TradeAmount         *uint256.Int
	TokenBalance        *uint256.Int
	LastTradeTime       int64

	// PercentScale is 100 or 1000 and applies to SpreadAmount and
	// VolatilityTolerance alike. It is fixed at deployment.
	PercentScale uint64
	// RevokeApproval appends approve(amm, 0) after every trade.
	RevokeApproval bool

	Sweep common.Sweep
}

// DefaultStorage returns a record with the default policy values.
func DefaultStorage() *Storage {
	return &Storage{
		MaxDataDelaySec:     DefaultMaxDataDelaySec,
		VolatilityTolerance: DefaultVolatilityTolerance,
		TradeAmount:         uint256.NewInt(DefaultTradeAmount),
		TokenBalance:        new(uint256.Int),
		LastTradeTime:       DefaultLastTradeTime,
		PercentScale:        DefaultPercentScale,
	}
}

// Clone returns an independent copy of the record.
func (s *Storage) Clone() *Storage {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TradeAmount = cloneInt(s.TradeAmount)
	clone.TokenBalance = cloneInt(s.TokenBalance)
	return &clone
}

// ValidPercentScale reports whether scale is a supported percent scale.
func ValidPercentScale(scale uint64) bool {
	return scale == 100 || scale == 1000
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
