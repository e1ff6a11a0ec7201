package state

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/native/common"
	"treasury/native/liquidity"
	"treasury/native/maker"
)

// ControllerKind names the engine a controller address runs.
type ControllerKind string

const (
	KindLiquidity ControllerKind = "liquidity"
	KindMaker     ControllerKind = "maker"
)

// ControllerRecord binds a deployment name to a controller address.
type ControllerRecord struct {
	Name    string
	Kind    string
	Address string
}

type liquidityRecord struct {
	Governor          string
	Executor          string
	Token             string
	AMM               string
	Oracle            string
	SlippageTolerance uint64
	MaxDataDelaySec   uint64
	SweepState        uint8
	SweepDestination  string
}

type makerRecord struct {
	Governor            string
	PauseGuardian       string
	Receiver            string
	Token               string
	AMM                 string
	Vwap                string
	Spot                string
	Peg                 string
	Paused              bool
	MaxDataDelaySec     uint64
	MinTradeDelaySec    uint64
	SpreadAmount        uint64
	VolatilityTolerance uint64
	TradeAmount         *uint256.Int
	TokenBalance        *uint256.Int
	LastTradeTime       uint64
	PercentScale        uint64
	RevokeApproval      bool
	SweepState          uint8
	SweepDestination    string
}

func decodeAddress(s string) (crypto.Address, error) {
	var addr crypto.Address
	if err := addr.UnmarshalText([]byte(s)); err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

func decodeAddresses(pairs map[*crypto.Address]string) error {
	for dst, raw := range pairs {
		addr, err := decodeAddress(raw)
		if err != nil {
			return fmt.Errorf("state: decode address %q: %w", raw, err)
		}
		*dst = addr
	}
	return nil
}

// LiquidityStorage loads the record of the liquidity controller at addr. A
// missing record yields nil without error.
func (m *Manager) LiquidityStorage(addr crypto.Address) (*liquidity.Storage, error) {
	data, err := m.get(prefixedKey(liquidityPrefix, addr.String()))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var rec liquidityRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	st := &liquidity.Storage{
		SlippageTolerance: rec.SlippageTolerance,
		MaxDataDelaySec:   rec.MaxDataDelaySec,
		Sweep:             common.Sweep{State: common.SweepState(rec.SweepState)},
	}
	if err := decodeAddresses(map[*crypto.Address]string{
		&st.Governor:          rec.Governor,
		&st.Executor:          rec.Executor,
		&st.Token:             rec.Token,
		&st.AMM:               rec.AMM,
		&st.Oracle:            rec.Oracle,
		&st.Sweep.Destination: rec.SweepDestination,
	}); err != nil {
		return nil, err
	}
	return st, nil
}

// PutLiquidityStorage persists the record of the liquidity controller at addr.
func (m *Manager) PutLiquidityStorage(addr crypto.Address, s *liquidity.Storage) error {
	if s == nil {
		return fmt.Errorf("state: liquidity storage must not be nil")
	}
	rec := liquidityRecord{
		Governor:          s.Governor.String(),
		Executor:          s.Executor.String(),
		Token:             s.Token.String(),
		AMM:               s.AMM.String(),
		Oracle:            s.Oracle.String(),
		SlippageTolerance: s.SlippageTolerance,
		MaxDataDelaySec:   s.MaxDataDelaySec,
		SweepState:        uint8(s.Sweep.State),
		SweepDestination:  s.Sweep.Destination.String(),
	}
	return m.put(prefixedKey(liquidityPrefix, addr.String()), rec)
}

// MakerStorage loads the record of the maker controller at addr. A missing
// record yields nil without error.
func (m *Manager) MakerStorage(addr crypto.Address) (*maker.Storage, error) {
	data, err := m.get(prefixedKey(makerPrefix, addr.String()))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var rec makerRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	st := &maker.Storage{
		Paused:              rec.Paused,
		MaxDataDelaySec:     rec.MaxDataDelaySec,
		MinTradeDelaySec:    rec.MinTradeDelaySec,
		SpreadAmount:        rec.SpreadAmount,
		VolatilityTolerance: rec.VolatilityTolerance,
		TradeAmount:         rec.TradeAmount,
		TokenBalance:        rec.TokenBalance,
		LastTradeTime:       int64(rec.LastTradeTime),
		PercentScale:        rec.PercentScale,
		RevokeApproval:      rec.RevokeApproval,
		Sweep:               common.Sweep{State: common.SweepState(rec.SweepState)},
	}
	if st.TradeAmount == nil {
		st.TradeAmount = new(uint256.Int)
	}
	if st.TokenBalance == nil {
		st.TokenBalance = new(uint256.Int)
	}
	if err := decodeAddresses(map[*crypto.Address]string{
		&st.Governor:          rec.Governor,
		&st.PauseGuardian:     rec.PauseGuardian,
		&st.Receiver:          rec.Receiver,
		&st.Token:             rec.Token,
		&st.AMM:               rec.AMM,
		&st.Vwap:              rec.Vwap,
		&st.Spot:              rec.Spot,
		&st.Peg:               rec.Peg,
		&st.Sweep.Destination: rec.SweepDestination,
	}); err != nil {
		return nil, err
	}
	return st, nil
}

// PutMakerStorage persists the record of the maker controller at addr.
func (m *Manager) PutMakerStorage(addr crypto.Address, s *maker.Storage) error {
	if s == nil {
		return fmt.Errorf("state: maker storage must not be nil")
	}
	if s.LastTradeTime < 0 {
		return fmt.Errorf("state: negative last trade time %d", s.LastTradeTime)
	}
	rec := makerRecord{
		Governor:            s.Governor.String(),
		PauseGuardian:       s.PauseGuardian.String(),
		Receiver:            s.Receiver.String(),
		Token:               s.Token.String(),
		AMM:                 s.AMM.String(),
		Vwap:                s.Vwap.String(),
		Spot:                s.Spot.String(),
		Peg:                 s.Peg.String(),
		Paused:              s.Paused,
		MaxDataDelaySec:     s.MaxDataDelaySec,
		MinTradeDelaySec:    s.MinTradeDelaySec,
		SpreadAmount:        s.SpreadAmount,
		VolatilityTolerance: s.VolatilityTolerance,
		TradeAmount:         orZero(s.TradeAmount),
		TokenBalance:        orZero(s.TokenBalance),
		LastTradeTime:       uint64(s.LastTradeTime),
		PercentScale:        s.PercentScale,
		RevokeApproval:      s.RevokeApproval,
		SweepState:          uint8(s.Sweep.State),
		SweepDestination:    s.Sweep.Destination.String(),
	}
	return m.put(prefixedKey(makerPrefix, addr.String()), rec)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// RegisterController records a named controller. Registering the same name
// again replaces its binding.
func (m *Manager) RegisterController(name string, kind ControllerKind, addr crypto.Address) error {
	if name == "" || addr.IsZero() {
		return fmt.Errorf("state: controller name and address required")
	}
	if kind != KindLiquidity && kind != KindMaker {
		return fmt.Errorf("state: unknown controller kind %q", kind)
	}
	names, err := m.controllerNames()
	if err != nil {
		return err
	}
	found := false
	for _, existing := range names {
		if existing == name {
			found = true
			break
		}
	}
	if !found {
		names = append(names, name)
		sort.Strings(names)
		if err := m.put(controllerList, names); err != nil {
			return err
		}
	}
	rec := ControllerRecord{Name: name, Kind: string(kind), Address: addr.String()}
	return m.put(prefixedKey(controllerPrefix, name), rec)
}

// Controller returns the record registered under name.
func (m *Manager) Controller(name string) (*ControllerRecord, error) {
	data, err := m.get(prefixedKey(controllerPrefix, name))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var rec ControllerRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Controllers lists every registered controller sorted by name.
func (m *Manager) Controllers() ([]ControllerRecord, error) {
	names, err := m.controllerNames()
	if err != nil {
		return nil, err
	}
	out := make([]ControllerRecord, 0, len(names))
	for _, name := range names {
		rec, err := m.Controller(name)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *Manager) controllerNames() ([]string, error) {
	data, err := m.get(controllerList)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	var names []string
	if err := rlp.DecodeBytes(data, &names); err != nil {
		return nil, err
	}
	return names, nil
}
