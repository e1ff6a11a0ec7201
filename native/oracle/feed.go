package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	coreerrors "treasury/core/errors"
	"treasury/crypto"
)

// DefaultAssetCode is the pair identifier passed to every price view.
const DefaultAssetCode = "XTZ-USD"

// ErrNoView is returned by View implementations when no oracle is deployed at
// the requested address or the deployed contract exposes no price view.
var ErrNoView = errors.New("oracle: price view not available")

// Layout describes how a feed orders the values returned by its price view.
type Layout uint8

const (
	// LayoutTimePrice returns (observedAt, price).
	LayoutTimePrice Layout = iota + 1
	// LayoutPriceTime returns (price, observedAt).
	LayoutPriceTime
	// LayoutCandle returns (start, end, open, high, low, close, volume). The
	// price is the close and the observation time is the end of the candle.
	LayoutCandle
)

func (l Layout) String() string {
	switch l {
	case LayoutTimePrice:
		return "time_price"
	case LayoutPriceTime:
		return "price_time"
	case LayoutCandle:
		return "candle"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// ParseLayout maps a configuration string onto a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time_price", "time-price":
		return LayoutTimePrice, nil
	case "price_time", "price-time":
		return LayoutPriceTime, nil
	case "candle":
		return LayoutCandle, nil
	default:
		return 0, fmt.Errorf("oracle: unknown feed layout %q", s)
	}
}

// Payload is the raw value returned by a price view.
type Payload interface {
	Layout() Layout
}

// TimePrice is the (timestamp, price) pair published by normalizer feeds.
type TimePrice struct {
	ObservedAt time.Time
	Price      *uint256.Int
}

func (TimePrice) Layout() Layout { return LayoutTimePrice }

// PriceTime is the (price, timestamp) pair published by peg feeds.
type PriceTime struct {
	Price      *uint256.Int
	ObservedAt time.Time
}

func (PriceTime) Layout() Layout { return LayoutPriceTime }

// Candle is the OHLCV record published by spot feeds.
type Candle struct {
	Start  time.Time
	End    time.Time
	Open   *uint256.Int
	High   *uint256.Int
	Low    *uint256.Int
	Close  *uint256.Int
	Volume *uint256.Int
}

func (Candle) Layout() Layout { return LayoutCandle }

// View resolves the price view of the oracle contract deployed at feed.
type View interface {
	GetPrice(ctx context.Context, feed crypto.Address, asset string) (Payload, error)
}

// PricePoint is a single observation in the oracle's 10^6 quote scale.
type PricePoint struct {
	Price      *uint256.Int
	ObservedAt time.Time
}

// Feed binds an oracle address to the layout its view returns.
type Feed struct {
	Address crypto.Address
	Layout  Layout
}

// Read invokes the feed's price view and extracts the observation. Any failure
// to resolve the view, or a payload shaped differently from the feed's layout,
// is reported with the supplied code.
func Read(ctx context.Context, view View, feed Feed, asset string, code coreerrors.Code) (PricePoint, error) {
	if view == nil || feed.Address.IsZero() {
		return PricePoint{}, coreerrors.New(code, "no price view for feed %s", feed.Address)
	}
	payload, err := view.GetPrice(ctx, feed.Address, NormalizeAsset(asset))
	if err != nil {
		return PricePoint{}, coreerrors.New(code, "price view %s: %v", feed.Address, err)
	}
	if payload == nil || payload.Layout() != feed.Layout {
		return PricePoint{}, coreerrors.New(code, "price view %s returned unexpected layout", feed.Address)
	}
	var point PricePoint
	switch p := payload.(type) {
	case TimePrice:
		point = PricePoint{Price: p.Price, ObservedAt: p.ObservedAt}
	case PriceTime:
		point = PricePoint{Price: p.Price, ObservedAt: p.ObservedAt}
	case Candle:
		point = PricePoint{Price: p.Close, ObservedAt: p.End}
	default:
		return PricePoint{}, coreerrors.New(code, "price view %s returned unsupported payload %T", feed.Address, payload)
	}
	if point.Price == nil {
		return PricePoint{}, coreerrors.New(code, "price view %s returned no price", feed.Address)
	}
	point.Price = new(uint256.Int).Set(point.Price)
	return point, nil
}

// NormalizeAsset canonicalises an asset pair identifier.
func NormalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return DefaultAssetCode
	}
	return strings.ToUpper(norm.NFKC.String(trimmed))
}
