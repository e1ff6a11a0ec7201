package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/native/maker"
	"treasury/native/oracle"
)

// Validate checks that every controller in the deployment is addressable and
// carries a usable policy.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil deployment")
	}
	switch cfg.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("backend: unknown database %q", cfg.Backend)
	}
	names := make(map[string]struct{})
	addrs := make(map[string]struct{})
	claim := func(name, address string) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("controller name required")
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("controller %q declared twice", name)
		}
		names[name] = struct{}{}
		addr, err := crypto.DecodeAddress(address)
		if err != nil {
			return fmt.Errorf("controller %q: address: %w", name, err)
		}
		if !addr.IsContract() {
			return fmt.Errorf("controller %q: address %s is not a KT1 address", name, addr)
		}
		if _, dup := addrs[addr.String()]; dup {
			return fmt.Errorf("controller %q: address %s already used", name, addr)
		}
		addrs[addr.String()] = struct{}{}
		return nil
	}

	if err := validateSandbox(cfg.Sandbox); err != nil {
		return err
	}

	for _, lc := range cfg.Liquidity {
		if err := claim(lc.Name, lc.Address); err != nil {
			return err
		}
		if err := requireAddresses(lc.Name, map[string]string{
			"Governor": lc.Governor,
			"Executor": lc.Executor,
			"Token":    lc.Token,
			"AMM":      lc.AMM,
			"Oracle":   lc.Oracle,
		}); err != nil {
			return err
		}
		if lc.SlippageTolerance == 0 {
			return fmt.Errorf("controller %q: SlippageTolerance must be positive", lc.Name)
		}
	}
	for _, mc := range cfg.Maker {
		if err := claim(mc.Name, mc.Address); err != nil {
			return err
		}
		if err := requireAddresses(mc.Name, map[string]string{
			"Governor":      mc.Governor,
			"PauseGuardian": mc.PauseGuardian,
			"Receiver":      mc.Receiver,
			"Token":         mc.Token,
			"AMM":           mc.AMM,
			"Spot":          mc.Spot,
		}); err != nil {
			return err
		}
		for field, value := range map[string]string{"Vwap": mc.Vwap, "Peg": mc.Peg} {
			if strings.TrimSpace(value) == "" {
				continue
			}
			if _, err := crypto.DecodeAddress(value); err != nil {
				return fmt.Errorf("controller %q: %s: %w", mc.Name, field, err)
			}
		}
		if !maker.ValidPercentScale(mc.PercentScale) {
			return fmt.Errorf("controller %q: PercentScale must be 100 or 1000", mc.Name)
		}
		if _, err := uint256.FromDecimal(mc.TradeAmount); err != nil {
			return fmt.Errorf("controller %q: TradeAmount: %w", mc.Name, err)
		}
		if _, err := mc.layouts(); err != nil {
			return fmt.Errorf("controller %q: %w", mc.Name, err)
		}
	}
	return nil
}

func validateSandbox(sc SandboxConfig) error {
	for i, feed := range sc.Feeds {
		if _, err := crypto.DecodeAddress(feed.Address); err != nil {
			return fmt.Errorf("sandbox feed %d: address: %w", i, err)
		}
		if _, err := oracle.ParseLayout(feed.Layout); err != nil {
			return fmt.Errorf("sandbox feed %d: %w", i, err)
		}
		if feed.Price == 0 {
			return fmt.Errorf("sandbox feed %d: Price must be positive", i)
		}
	}
	for i, balance := range sc.Balances {
		if _, err := crypto.DecodeAddress(balance.Address); err != nil {
			return fmt.Errorf("sandbox balance %d: address: %w", i, err)
		}
		if _, _, err := balance.amounts(); err != nil {
			return fmt.Errorf("sandbox balance %d: %w", i, err)
		}
	}
	return nil
}

func (b SandboxBalance) amounts() (tokens, mutez *uint256.Int, err error) {
	if raw := strings.TrimSpace(b.Tokens); raw != "" {
		if tokens, err = uint256.FromDecimal(raw); err != nil {
			return nil, nil, fmt.Errorf("Tokens: %w", err)
		}
	}
	if raw := strings.TrimSpace(b.Mutez); raw != "" {
		if mutez, err = uint256.FromDecimal(raw); err != nil {
			return nil, nil, fmt.Errorf("Mutez: %w", err)
		}
	}
	return tokens, mutez, nil
}

func requireAddresses(name string, fields map[string]string) error {
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("controller %q: %s required", name, field)
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("controller %q: %s: %w", name, field, err)
		}
	}
	return nil
}

func (mc MakerConfig) layouts() (maker.Layouts, error) {
	layouts := maker.DefaultLayouts()
	for _, slot := range []struct {
		raw string
		dst *oracle.Layout
	}{
		{mc.VwapLayout, &layouts.Vwap},
		{mc.SpotLayout, &layouts.Spot},
		{mc.PegLayout, &layouts.Peg},
	} {
		if strings.TrimSpace(slot.raw) == "" {
			continue
		}
		layout, err := oracle.ParseLayout(slot.raw)
		if err != nil {
			return maker.Layouts{}, err
		}
		*slot.dst = layout
	}
	return layouts, nil
}
