package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/native/oracle"
)

// Feeds is a settable set of oracle price views keyed by feed address.
// Standing quotes published with Quote are observed at the current clock time
// on every read, so they never go stale.
type Feeds struct {
	mu     sync.RWMutex
	views  map[crypto.Address]oracle.Payload
	quotes map[crypto.Address]quote
	clock  func() time.Time
}

type quote struct {
	layout oracle.Layout
	price  *uint256.Int
}

// NewFeeds returns an empty feed set.
func NewFeeds() *Feeds {
	return &Feeds{
		views:  make(map[crypto.Address]oracle.Payload),
		quotes: make(map[crypto.Address]quote),
		clock:  time.Now,
	}
}

// SetClock sets the clock standing quotes are stamped with.
func (f *Feeds) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	f.mu.Lock()
	f.clock = clock
	f.mu.Unlock()
}

// GetPrice implements oracle.View. A fixed observation set at feed wins over
// a standing quote.
func (f *Feeds) GetPrice(_ context.Context, feed crypto.Address, _ string) (oracle.Payload, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if payload, ok := f.views[feed]; ok {
		return payload, nil
	}
	q, ok := f.quotes[feed]
	if !ok {
		return nil, oracle.ErrNoView
	}
	return observe(q, f.clock()), nil
}

// Quote publishes a standing price at feed in the given layout.
func (f *Feeds) Quote(feed crypto.Address, layout oracle.Layout, price uint64) error {
	switch layout {
	case oracle.LayoutTimePrice, oracle.LayoutPriceTime, oracle.LayoutCandle:
	default:
		return fmt.Errorf("sandbox: unsupported feed layout %s", layout)
	}
	if price == 0 {
		return fmt.Errorf("sandbox: feed %s price must be positive", feed)
	}
	f.mu.Lock()
	f.quotes[feed] = quote{layout: layout, price: uint256.NewInt(price)}
	f.mu.Unlock()
	return nil
}

func observe(q quote, now time.Time) oracle.Payload {
	price := new(uint256.Int).Set(q.price)
	switch q.layout {
	case oracle.LayoutPriceTime:
		return oracle.PriceTime{Price: price, ObservedAt: now}
	case oracle.LayoutCandle:
		return flatCandle(price, now)
	default:
		return oracle.TimePrice{ObservedAt: now, Price: price}
	}
}

func flatCandle(p *uint256.Int, end time.Time) oracle.Candle {
	return oracle.Candle{
		Start:  end.Add(-time.Minute),
		End:    end,
		Open:   p,
		High:   p,
		Low:    p,
		Close:  p,
		Volume: new(uint256.Int),
	}
}

// Set publishes payload at feed.
func (f *Feeds) Set(feed crypto.Address, payload oracle.Payload) {
	f.mu.Lock()
	f.views[feed] = payload
	f.mu.Unlock()
}

// SetTimePrice publishes a (timestamp, price) observation.
func (f *Feeds) SetTimePrice(feed crypto.Address, price uint64, at time.Time) {
	f.Set(feed, oracle.TimePrice{ObservedAt: at, Price: uint256.NewInt(price)})
}

// SetPriceTime publishes a (price, timestamp) observation.
func (f *Feeds) SetPriceTime(feed crypto.Address, price uint64, at time.Time) {
	f.Set(feed, oracle.PriceTime{Price: uint256.NewInt(price), ObservedAt: at})
}

// SetCandle publishes a flat one-minute candle closing at price.
func (f *Feeds) SetCandle(feed crypto.Address, price uint64, end time.Time) {
	f.Set(feed, flatCandle(uint256.NewInt(price), end))
}

// Remove withdraws the view and any standing quote at feed.
func (f *Feeds) Remove(feed crypto.Address) {
	f.mu.Lock()
	delete(f.views, feed)
	delete(f.quotes, feed)
	f.mu.Unlock()
}
