package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"treasury/crypto"
	"treasury/native/common"
	"treasury/native/liquidity"
	"treasury/native/maker"
)

// Load loads the deployment from the given path. A missing file is replaced by
// a local sandbox deployment written to path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = BackendLevelDB
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./treasury-data"
	}
	for i := range cfg.Liquidity {
		lc := &cfg.Liquidity[i]
		if lc.SlippageTolerance == 0 {
			lc.SlippageTolerance = liquidity.DefaultSlippageTolerance
		}
		if lc.MaxDataDelaySec == 0 {
			lc.MaxDataDelaySec = liquidity.DefaultMaxDataDelaySec
		}
	}
	for i := range cfg.Maker {
		mc := &cfg.Maker[i]
		if mc.MaxDataDelaySec == 0 {
			mc.MaxDataDelaySec = maker.DefaultMaxDataDelaySec
		}
		if mc.PercentScale == 0 {
			mc.PercentScale = maker.DefaultPercentScale
		}
		if strings.TrimSpace(mc.TradeAmount) == "" {
			mc.TradeAmount = fmt.Sprint(maker.DefaultTradeAmount)
		}
	}
}

// Pauses returns the operator pause set of the deployment.
func (c *Config) Pauses() common.StaticPauses {
	pauses := make(common.StaticPauses, len(c.PausedModules))
	for _, module := range c.PausedModules {
		pauses[strings.ToLower(strings.TrimSpace(module))] = true
	}
	return pauses
}

// createDefault creates and saves a single-pair sandbox deployment.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       "./treasury-data",
		Backend:       BackendLevelDB,
		PausedModules: []string{},
		Sandbox: SandboxConfig{
			Token: fill(crypto.Originated, 0x10).String(),
			Pool:  fill(crypto.Originated, 0x11).String(),
			FA2:   fill(crypto.Originated, 0x12).String(),
			Feeds: []SandboxFeed{
				{Address: fill(crypto.Originated, 0x30).String(), Layout: "time_price", Price: 2_000_000},
				{Address: fill(crypto.Originated, 0x31).String(), Layout: "candle", Price: 2_000_000},
			},
			Balances: []SandboxBalance{
				{Address: fill(crypto.Originated, 0x20).String(), Tokens: "10000000000000000000", Mutez: "5000000"},
				{Address: fill(crypto.Originated, 0x21).String(), Tokens: "1000000000000000000000"},
				{Address: fill(crypto.Originated, 0x11).String(), Mutez: "1000000000000"},
			},
		},
		Liquidity: []LiquidityConfig{{
			Name:              "liquidity",
			Address:           fill(crypto.Originated, 0x20).String(),
			Governor:          fill(crypto.ImplicitEd25519, 0x01).String(),
			Executor:          fill(crypto.ImplicitEd25519, 0x02).String(),
			Token:             fill(crypto.Originated, 0x10).String(),
			AMM:               fill(crypto.Originated, 0x11).String(),
			Oracle:            fill(crypto.Originated, 0x30).String(),
			SlippageTolerance: liquidity.DefaultSlippageTolerance,
			MaxDataDelaySec:   liquidity.DefaultMaxDataDelaySec,
		}},
		Maker: []MakerConfig{{
			Name:                "maker",
			Address:             fill(crypto.Originated, 0x21).String(),
			Governor:            fill(crypto.ImplicitEd25519, 0x01).String(),
			PauseGuardian:       fill(crypto.ImplicitEd25519, 0x03).String(),
			Receiver:            fill(crypto.Originated, 0x20).String(),
			Token:               fill(crypto.Originated, 0x10).String(),
			AMM:                 fill(crypto.Originated, 0x11).String(),
			Vwap:                fill(crypto.Originated, 0x30).String(),
			Spot:                fill(crypto.Originated, 0x31).String(),
			MaxDataDelaySec:     maker.DefaultMaxDataDelaySec,
			VolatilityTolerance: maker.DefaultVolatilityTolerance,
			TradeAmount:         fmt.Sprint(maker.DefaultTradeAmount),
			PercentScale:        maker.DefaultPercentScale,
		}},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fill(kind crypto.AddressKind, b byte) crypto.Address {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = b
	}
	return crypto.NewAddress(kind, payload)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
