package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holiman/uint256"
	bolt "go.etcd.io/bbolt"

	"treasury/core/runtime"
	"treasury/crypto"
	"treasury/native/liquidity"
	"treasury/native/maker"
	"treasury/native/oracle"
	"treasury/sandbox"
	"treasury/storage"
)

// OpenDatabase opens the configured controller state backend under DataDir.
func (c *Config) OpenDatabase() (storage.Database, error) {
	switch c.Backend {
	case BackendMemory:
		return storage.NewMemDB(), nil
	case BackendLevelDB:
		return storage.NewLevelDB(filepath.Join(c.DataDir, "state"))
	case BackendBolt:
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(c.DataDir, "state.db"), &bolt.Options{Timeout: time.Second})
	default:
		return nil, fmt.Errorf("config: unknown backend %q", c.Backend)
	}
}

// SandboxAddresses decodes the sandbox collaborator placement.
func (c *Config) SandboxAddresses() (token, pool, fa2 crypto.Address, err error) {
	if token, err = crypto.DecodeAddress(c.Sandbox.Token); err != nil {
		return token, pool, fa2, fmt.Errorf("sandbox token: %w", err)
	}
	if pool, err = crypto.DecodeAddress(c.Sandbox.Pool); err != nil {
		return token, pool, fa2, fmt.Errorf("sandbox pool: %w", err)
	}
	if strings.TrimSpace(c.Sandbox.FA2) != "" {
		if fa2, err = crypto.DecodeAddress(c.Sandbox.FA2); err != nil {
			return token, pool, fa2, fmt.Errorf("sandbox fa2: %w", err)
		}
	}
	return token, pool, fa2, nil
}

// SeedSandbox publishes the configured standing quotes on the stack's feeds
// and tops up the configured balances.
func (c *Config) SeedSandbox(ctx context.Context, host *runtime.Host, stack *sandbox.Stack) error {
	for _, feed := range c.Sandbox.Feeds {
		addr, err := crypto.DecodeAddress(feed.Address)
		if err != nil {
			return fmt.Errorf("sandbox feed: %w", err)
		}
		layout, err := oracle.ParseLayout(feed.Layout)
		if err != nil {
			return err
		}
		if err := stack.Feeds.Quote(addr, layout, feed.Price); err != nil {
			return err
		}
	}
	for _, balance := range c.Sandbox.Balances {
		addr, err := crypto.DecodeAddress(balance.Address)
		if err != nil {
			return fmt.Errorf("sandbox balance: %w", err)
		}
		tokens, mutez, err := balance.amounts()
		if err != nil {
			return fmt.Errorf("sandbox balance %s: %w", addr, err)
		}
		if err := stack.TopUp(ctx, host, addr, tokens, mutez); err != nil {
			return fmt.Errorf("sandbox balance %s: %w", addr, err)
		}
	}
	return nil
}

// Deploy installs every configured controller on host. Controllers already
// registered in state keep their stored record.
func (c *Config) Deploy(ctx context.Context, host *runtime.Host) error {
	for _, lc := range c.Liquidity {
		addr, contract, err := lc.Contract(c.AssetCode)
		if err != nil {
			return err
		}
		if err := host.Deploy(ctx, lc.Name, addr, contract); err != nil {
			return fmt.Errorf("deploy %s: %w", lc.Name, err)
		}
	}
	for _, mc := range c.Maker {
		addr, contract, err := mc.Contract(c.AssetCode)
		if err != nil {
			return err
		}
		if err := host.Deploy(ctx, mc.Name, addr, contract); err != nil {
			return fmt.Errorf("deploy %s: %w", mc.Name, err)
		}
	}
	return nil
}

// Contract builds the liquidity engine adapter and its initial record.
func (lc LiquidityConfig) Contract(defaultAsset string) (crypto.Address, *runtime.LiquidityContract, error) {
	var (
		self crypto.Address
		err  error
	)
	st := liquidity.DefaultStorage()
	st.SlippageTolerance = lc.SlippageTolerance
	st.MaxDataDelaySec = lc.MaxDataDelaySec
	for _, field := range []struct {
		raw string
		dst *crypto.Address
	}{
		{lc.Address, &self},
		{lc.Governor, &st.Governor},
		{lc.Executor, &st.Executor},
		{lc.Token, &st.Token},
		{lc.AMM, &st.AMM},
		{lc.Oracle, &st.Oracle},
	} {
		if *field.dst, err = crypto.DecodeAddress(field.raw); err != nil {
			return crypto.Address{}, nil, fmt.Errorf("controller %q: %w", lc.Name, err)
		}
	}
	return self, &runtime.LiquidityContract{Initial: st, AssetCode: pick(lc.AssetCode, defaultAsset)}, nil
}

// Contract builds the maker engine adapter and its initial record.
func (mc MakerConfig) Contract(defaultAsset string) (crypto.Address, *runtime.MakerContract, error) {
	var (
		self crypto.Address
		err  error
	)
	st := maker.DefaultStorage()
	st.Paused = mc.Paused
	st.MaxDataDelaySec = mc.MaxDataDelaySec
	st.MinTradeDelaySec = mc.MinTradeDelaySec
	st.SpreadAmount = mc.SpreadAmount
	st.VolatilityTolerance = mc.VolatilityTolerance
	st.PercentScale = mc.PercentScale
	st.RevokeApproval = mc.RevokeApproval
	if st.TradeAmount, err = uint256.FromDecimal(mc.TradeAmount); err != nil {
		return crypto.Address{}, nil, fmt.Errorf("controller %q: trade amount: %w", mc.Name, err)
	}
	required := []struct {
		raw string
		dst *crypto.Address
	}{
		{mc.Address, &self},
		{mc.Governor, &st.Governor},
		{mc.PauseGuardian, &st.PauseGuardian},
		{mc.Receiver, &st.Receiver},
		{mc.Token, &st.Token},
		{mc.AMM, &st.AMM},
		{mc.Spot, &st.Spot},
	}
	for _, field := range required {
		if *field.dst, err = crypto.DecodeAddress(field.raw); err != nil {
			return crypto.Address{}, nil, fmt.Errorf("controller %q: %w", mc.Name, err)
		}
	}
	if strings.TrimSpace(mc.Vwap) != "" {
		if st.Vwap, err = crypto.DecodeAddress(mc.Vwap); err != nil {
			return crypto.Address{}, nil, fmt.Errorf("controller %q: vwap: %w", mc.Name, err)
		}
	}
	if strings.TrimSpace(mc.Peg) != "" {
		if st.Peg, err = crypto.DecodeAddress(mc.Peg); err != nil {
			return crypto.Address{}, nil, fmt.Errorf("controller %q: peg: %w", mc.Name, err)
		}
	}
	layouts, err := mc.layouts()
	if err != nil {
		return crypto.Address{}, nil, fmt.Errorf("controller %q: %w", mc.Name, err)
	}
	return self, &runtime.MakerContract{Initial: st, AssetCode: pick(mc.AssetCode, defaultAsset), Layouts: layouts}, nil
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
