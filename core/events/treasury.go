package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"treasury/core/types"
	"treasury/crypto"
)

const (
	// TypeLiquidityAdded is emitted after an oracle-validated liquidity deposit is queued.
	TypeLiquidityAdded = "liquidity.added"
	// TypeLiquidityRemoved is emitted when governance divests liquidity.
	TypeLiquidityRemoved = "liquidity.removed"
	// TypeSweepRequested is emitted when a balance query starts a sweep.
	TypeSweepRequested = "sweep.requested"
	// TypeSweepCompleted is emitted when the balance callback transfers the tokens out.
	TypeSweepCompleted = "sweep.completed"
	// TypeFundsMoved is emitted for every governance transfer or rescue.
	TypeFundsMoved = "treasury.funds_moved"
	// TypeParameterUpdated is emitted by every setter.
	TypeParameterUpdated = "controller.parameter_updated"
	// TypeMakerTrade is emitted when the maker queues a sale into the pool.
	TypeMakerTrade = "maker.trade"
	// TypePauseChanged is emitted when the maker is paused or unpaused.
	TypePauseChanged = "maker.pause_changed"
)

// AssetNative labels movements of the native currency in FundsMoved events.
const AssetNative = "native"

type LiquidityAdded struct {
	Controller  crypto.Address
	Tokens      *uint256.Int
	Mutez       *uint256.Int
	InputPrice  *uint256.Int
	OraclePrice *uint256.Int
}

func (LiquidityAdded) EventType() string { return TypeLiquidityAdded }

func (e LiquidityAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityAdded,
		Attributes: map[string]string{
			"controller":  e.Controller.String(),
			"tokens":      amountString(e.Tokens),
			"mutez":       amountString(e.Mutez),
			"inputPrice":  amountString(e.InputPrice),
			"oraclePrice": amountString(e.OraclePrice),
		},
	}
}

type LiquidityRemoved struct {
	Controller   crypto.Address
	Shares       *uint256.Int
	MinNativeOut *uint256.Int
	MinTokenOut  *uint256.Int
}

func (LiquidityRemoved) EventType() string { return TypeLiquidityRemoved }

func (e LiquidityRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityRemoved,
		Attributes: map[string]string{
			"controller":   e.Controller.String(),
			"shares":       amountString(e.Shares),
			"minNativeOut": amountString(e.MinNativeOut),
			"minTokenOut":  amountString(e.MinTokenOut),
		},
	}
}

type SweepRequested struct {
	Controller  crypto.Address
	Token       crypto.Address
	Destination crypto.Address
}

func (SweepRequested) EventType() string { return TypeSweepRequested }

func (e SweepRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeSweepRequested,
		Attributes: map[string]string{
			"controller":  e.Controller.String(),
			"token":       e.Token.String(),
			"destination": e.Destination.String(),
		},
	}
}

type SweepCompleted struct {
	Controller  crypto.Address
	Token       crypto.Address
	Destination crypto.Address
	Amount      *uint256.Int
}

func (SweepCompleted) EventType() string { return TypeSweepCompleted }

func (e SweepCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeSweepCompleted,
		Attributes: map[string]string{
			"controller":  e.Controller.String(),
			"token":       e.Token.String(),
			"destination": e.Destination.String(),
			"amount":      amountString(e.Amount),
		},
	}
}

// FundsMoved records a transfer out of a controller. Asset is AssetNative or
// the token contract address; TokenID is only set for FA2 rescues.
type FundsMoved struct {
	Controller  crypto.Address
	Asset       string
	TokenID     *uint64
	Destination crypto.Address
	Amount      *uint256.Int
}

func (FundsMoved) EventType() string { return TypeFundsMoved }

func (e FundsMoved) Event() *types.Event {
	attrs := map[string]string{
		"controller":  e.Controller.String(),
		"asset":       strings.TrimSpace(e.Asset),
		"destination": e.Destination.String(),
		"amount":      amountString(e.Amount),
	}
	if e.TokenID != nil {
		attrs["tokenId"] = strconv.FormatUint(*e.TokenID, 10)
	}
	return &types.Event{Type: TypeFundsMoved, Attributes: attrs}
}

type ParameterUpdated struct {
	Controller crypto.Address
	Field      string
	Value      string
}

func (ParameterUpdated) EventType() string { return TypeParameterUpdated }

func (e ParameterUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeParameterUpdated,
		Attributes: map[string]string{
			"controller": e.Controller.String(),
			"field":      strings.TrimSpace(e.Field),
			"value":      strings.TrimSpace(e.Value),
		},
	}
}

type MakerTrade struct {
	Controller  crypto.Address
	TokensSold  *uint256.Int
	NeutralOut  *uint256.Int
	RequiredOut *uint256.Int
	SpotPrice   *uint256.Int
	Receiver    crypto.Address
	TradeTime   int64
}

func (MakerTrade) EventType() string { return TypeMakerTrade }

func (e MakerTrade) Event() *types.Event {
	return &types.Event{
		Type: TypeMakerTrade,
		Attributes: map[string]string{
			"controller":  e.Controller.String(),
			"tokensSold":  amountString(e.TokensSold),
			"neutralOut":  amountString(e.NeutralOut),
			"requiredOut": amountString(e.RequiredOut),
			"spotPrice":   amountString(e.SpotPrice),
			"receiver":    e.Receiver.String(),
			"tradeTime":   strconv.FormatInt(e.TradeTime, 10),
		},
	}
}

type PauseChanged struct {
	Controller crypto.Address
	Paused     bool
	By         crypto.Address
}

func (PauseChanged) EventType() string { return TypePauseChanged }

func (e PauseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePauseChanged,
		Attributes: map[string]string{
			"controller": e.Controller.String(),
			"paused":     strconv.FormatBool(e.Paused),
			"by":         e.By.String(),
		},
	}
}

// Converter is implemented by events that render into the generic envelope.
type Converter interface {
	Event() *types.Event
}

// Envelope converts a typed event into its generic form. Events without a
// converter keep only their type.
func Envelope(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if conv, ok := evt.(Converter); ok {
		return conv.Event()
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
