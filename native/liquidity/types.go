package liquidity

import (
	"treasury/crypto"
	"treasury/native/common"
)

const (
	DefaultSlippageTolerance uint64 = 5
	DefaultMaxDataDelaySec   uint64 = 300
)

// Storage is the persisted configuration and sweep state of one liquidity
// controller.
type Storage struct {
	Governor          crypto.Address
	Executor          crypto.Address
	Token             crypto.Address
	AMM               crypto.Address
	Oracle            crypto.Address
	SlippageTolerance uint64
	MaxDataDelaySec   uint64
	Sweep             common.Sweep
}

// DefaultStorage returns a storage record with the default policy values.
func DefaultStorage() *Storage {
	return &Storage{
		SlippageTolerance: DefaultSlippageTolerance,
		MaxDataDelaySec:   DefaultMaxDataDelaySec,
	}
}

// Clone returns an independent copy of the record.
func (s *Storage) Clone() *Storage {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
