package runtime

import (
	"context"
	"encoding/json"

	"treasury/core/state"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/liquidity"
	"treasury/native/maker"
)

// Contract is a controller engine the host can deploy at an address.
type Contract interface {
	Kind() state.ControllerKind
	HasEntrypoint(entrypoint string) bool
	// Initialise writes the controller's first storage record.
	Initialise(env Env, self crypto.Address) error
	// Storage returns a JSON-serialisable copy of the controller record.
	Storage(env Env, self crypto.Address) (any, error)
	Dispatch(ctx context.Context, env Env, call types.CallContext, entrypoint string, payload json.RawMessage) ([]types.Operation, error)
}

// LiquidityContract deploys the liquidity controller engine.
type LiquidityContract struct {
	Initial   *liquidity.Storage
	AssetCode string
}

func (c *LiquidityContract) engine(env Env) *liquidity.Engine {
	engine := liquidity.NewEngine()
	engine.SetState(env.State)
	engine.SetViews(env.Views)
	engine.SetResolver(env.Resolver)
	engine.SetEmitter(env.Emitter)
	engine.SetPauses(env.Pauses)
	if c.AssetCode != "" {
		engine.SetAssetCode(c.AssetCode)
	}
	return engine
}

func (c *LiquidityContract) Kind() state.ControllerKind { return state.KindLiquidity }

func (c *LiquidityContract) HasEntrypoint(entrypoint string) bool {
	return liquidity.HasEntrypoint(entrypoint)
}

func (c *LiquidityContract) Initialise(env Env, self crypto.Address) error {
	return c.engine(env).Initialise(self, c.Initial)
}

func (c *LiquidityContract) Storage(env Env, self crypto.Address) (any, error) {
	return c.engine(env).Storage(self)
}

func (c *LiquidityContract) Dispatch(ctx context.Context, env Env, call types.CallContext, entrypoint string, payload json.RawMessage) ([]types.Operation, error) {
	return c.engine(env).Dispatch(ctx, call, entrypoint, payload)
}

// MakerContract deploys the maker controller engine.
type MakerContract struct {
	Initial   *maker.Storage
	AssetCode string
	Layouts   maker.Layouts
}

func (c *MakerContract) engine(env Env) *maker.Engine {
	engine := maker.NewEngine()
	engine.SetState(env.State)
	engine.SetViews(env.Views)
	engine.SetResolver(env.Resolver)
	engine.SetEmitter(env.Emitter)
	engine.SetPauses(env.Pauses)
	engine.SetLayouts(c.Layouts)
	if c.AssetCode != "" {
		engine.SetAssetCode(c.AssetCode)
	}
	return engine
}

func (c *MakerContract) Kind() state.ControllerKind { return state.KindMaker }

func (c *MakerContract) HasEntrypoint(entrypoint string) bool {
	return maker.HasEntrypoint(entrypoint)
}

func (c *MakerContract) Initialise(env Env, self crypto.Address) error {
	return c.engine(env).Initialise(self, c.Initial)
}

func (c *MakerContract) Storage(env Env, self crypto.Address) (any, error) {
	return c.engine(env).Storage(self)
}

func (c *MakerContract) Dispatch(ctx context.Context, env Env, call types.CallContext, entrypoint string, payload json.RawMessage) ([]types.Operation, error) {
	return c.engine(env).Dispatch(ctx, call, entrypoint, payload)
}
