package config

// Backend names accepted for the controller state database.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Config describes one treasury deployment: where controller state lives and
// which controller instances are hosted.
type Config struct {
	DataDir       string   `toml:"DataDir"`
	Backend       string   `toml:"Backend"`
	AssetCode     string   `toml:"AssetCode"`
	PausedModules []string `toml:"PausedModules"`

	Sandbox   SandboxConfig     `toml:"sandbox"`
	Liquidity []LiquidityConfig `toml:"liquidity"`
	Maker     []MakerConfig     `toml:"maker"`
}

// SandboxConfig places the local collaborator doubles. It is only consulted
// when the daemon runs in sandbox mode.
type SandboxConfig struct {
	Token string `toml:"Token"`
	Pool  string `toml:"Pool"`
	FA2   string `toml:"FA2,omitempty"`

	Feeds    []SandboxFeed    `toml:"Feeds"`
	Balances []SandboxBalance `toml:"Balances"`
}

// SandboxFeed is a standing oracle quote. Price is in the 10^6 quote scale
// and Layout is one of time_price, price_time or candle.
type SandboxFeed struct {
	Address string `toml:"Address"`
	Layout  string `toml:"Layout"`
	Price   uint64 `toml:"Price"`
}

// SandboxBalance is the minimum balance an address holds at startup. Tokens
// is in token base units and Mutez in native base units, both decimal.
type SandboxBalance struct {
	Address string `toml:"Address"`
	Tokens  string `toml:"Tokens,omitempty"`
	Mutez   string `toml:"Mutez,omitempty"`
}

// LiquidityConfig deploys one liquidity controller.
type LiquidityConfig struct {
	Name              string `toml:"Name"`
	Address           string `toml:"Address"`
	Governor          string `toml:"Governor"`
	Executor          string `toml:"Executor"`
	Token             string `toml:"Token"`
	AMM               string `toml:"AMM"`
	Oracle            string `toml:"Oracle"`
	SlippageTolerance uint64 `toml:"SlippageTolerance"`
	MaxDataDelaySec   uint64 `toml:"MaxDataDelaySec"`
	AssetCode         string `toml:"AssetCode,omitempty"`
}

// MakerConfig deploys one maker controller.
type MakerConfig struct {
	Name                string `toml:"Name"`
	Address             string `toml:"Address"`
	Governor            string `toml:"Governor"`
	PauseGuardian       string `toml:"PauseGuardian"`
	Receiver            string `toml:"Receiver"`
	Token               string `toml:"Token"`
	AMM                 string `toml:"AMM"`
	Vwap                string `toml:"Vwap,omitempty"`
	Spot                string `toml:"Spot"`
	Peg                 string `toml:"Peg,omitempty"`
	MaxDataDelaySec     uint64 `toml:"MaxDataDelaySec"`
	MinTradeDelaySec    uint64 `toml:"MinTradeDelaySec"`
	SpreadAmount        uint64 `toml:"SpreadAmount"`
	VolatilityTolerance uint64 `toml:"VolatilityTolerance"`
	TradeAmount         string `toml:"TradeAmount"`
	PercentScale        uint64 `toml:"PercentScale"`
	RevokeApproval      bool   `toml:"RevokeApproval"`
	Paused              bool   `toml:"Paused"`
	AssetCode           string `toml:"AssetCode,omitempty"`

	VwapLayout string `toml:"VwapLayout,omitempty"`
	SpotLayout string `toml:"SpotLayout,omitempty"`
	PegLayout  string `toml:"PegLayout,omitempty"`
}
