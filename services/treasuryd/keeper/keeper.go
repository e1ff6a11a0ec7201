package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	coreerrors "treasury/core/errors"
	"treasury/core/runtime"
	"treasury/core/state"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/maker"
	"treasury/observability"
)

// uncodedFailure is recorded for failures that carry no controller code,
// such as a cancelled context.
const uncodedFailure = math.MaxUint16

// Host is the slice of the runtime host the keeper drives.
type Host interface {
	Lookup(name string) (crypto.Address, runtime.Contract, bool)
	Invoke(ctx context.Context, inv types.Invocation) (*runtime.Receipt, error)
}

// Outcome is the result of one trade attempt.
type Outcome struct {
	Controller string
	ReceiptID  string
	Code       uint16
	Err        error
}

// Keeper calls tokenToTezPayment on maker controllers at a fixed interval.
// A failed attempt is logged and counted; the next attempt happens on the
// next tick.
type Keeper struct {
	host        Host
	address     crypto.Address
	controllers []string
	interval    time.Duration
	logger      *slog.Logger
	clock       func() time.Time
	once        sync.Once
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Keeper) {
		k.logger = l
	}
}

// WithClock overrides the time source used for metrics.
func WithClock(clock func() time.Time) Option {
	return func(k *Keeper) {
		k.clock = clock
	}
}

// New constructs a keeper. Every named controller must be a deployed maker.
func New(host Host, address crypto.Address, controllers []string, interval time.Duration, opts ...Option) (*Keeper, error) {
	if host == nil {
		return nil, fmt.Errorf("keeper: host required")
	}
	if address.IsZero() {
		return nil, fmt.Errorf("keeper: address required")
	}
	if len(controllers) == 0 {
		return nil, fmt.Errorf("keeper: at least one controller required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("keeper: interval must be positive")
	}
	for _, name := range controllers {
		_, contract, ok := host.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("keeper: unknown controller %q", name)
		}
		if contract.Kind() != state.KindMaker {
			return nil, fmt.Errorf("keeper: controller %q is not a maker", name)
		}
	}
	k := &Keeper{
		host:        host,
		address:     address,
		controllers: append([]string(nil), controllers...),
		interval:    interval,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k, nil
}

// Run blocks, attempting a trade on every controller each interval until the
// context is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	k.once.Do(func() {
		k.logger.Info("keeper started", slog.Int("controllers", len(k.controllers)), slog.Duration("interval", k.interval))
	})
	for {
		k.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one trade attempt per controller.
func (k *Keeper) Tick(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(k.controllers))
	for _, name := range k.controllers {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, k.trade(ctx, name))
	}
	return outcomes
}

func (k *Keeper) trade(ctx context.Context, name string) Outcome {
	out := Outcome{Controller: name}
	addr, _, ok := k.host.Lookup(name)
	if !ok {
		out.Err = fmt.Errorf("keeper: controller %q no longer deployed", name)
		out.Code = uncodedFailure
	} else {
		receipt, err := k.host.Invoke(ctx, types.Invocation{
			Target:     addr,
			Entrypoint: maker.EntrypointTokenToTezPayment,
			Sender:     k.address,
		})
		if receipt != nil {
			out.ReceiptID = receipt.ID
		}
		if err != nil {
			out.Err = err
			out.Code = uncodedFailure
			if code, coded := coreerrors.CodeOf(err); coded {
				out.Code = uint16(code)
			}
		}
	}
	observability.Keeper().RecordTick(name, out.Code, k.clock())
	if out.Err != nil {
		k.logger.Info("keeper: trade skipped",
			slog.String("controller", name),
			slog.Int("code", int(out.Code)),
			slog.String("error", out.Err.Error()))
	}
	return out
}
