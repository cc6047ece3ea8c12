package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`             // debug/info/warn/error
	File       string `yaml:"file" json:"file"`               // 为空则只输出控制台
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // 单文件上限
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

func (c *LoggingConfig) Defaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 7
	}
}

// VenueConfig 主平台（CLOB）配置
type VenueConfig struct {
	Host    string `yaml:"host" json:"host"`
	ChainID int    `yaml:"chain_id" json:"chain_id"`
	WSURL   string `yaml:"ws_url" json:"ws_url"` // 行情 WebSocket
	// API 凭证从环境变量读取，不进配置文件
	APIKeyEnv        string `yaml:"api_key_env" json:"api_key_env"`
	APISecretEnv     string `yaml:"api_secret_env" json:"api_secret_env"`
	APIPassphraseEnv string `yaml:"api_passphrase_env" json:"api_passphrase_env"`
}

func (c *VenueConfig) Defaults() {
	if c.Host == "" {
		c.Host = "https://clob.polymarket.com"
	}
	if c.ChainID == 0 {
		c.ChainID = 137
	}
	if c.WSURL == "" {
		c.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "ARBOT_API_KEY"
	}
	if c.APISecretEnv == "" {
		c.APISecretEnv = "ARBOT_API_SECRET"
	}
	if c.APIPassphraseEnv == "" {
		c.APIPassphraseEnv = "ARBOT_API_PASSPHRASE"
	}
}

func (c *VenueConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("venue.host is required")
	}
	return nil
}

// ChainConfig 链上交易配置
type ChainConfig struct {
	// RPCEndpoints 按优先级排列，首个为主节点，其余为备用
	RPCEndpoints []string `yaml:"rpc_endpoints" json:"rpc_endpoints"`
	// POLPriceUSD gas 成本折美元用的 POL 静态参考价
	POLPriceUSD float64 `yaml:"pol_price_usd" json:"pol_price_usd"`
}

func (c *ChainConfig) Defaults() {
	if len(c.RPCEndpoints) == 0 {
		c.RPCEndpoints = []string{
			"https://polygon-rpc.com",
			"https://rpc-mainnet.matic.quiknode.pro",
			"https://polygon-bor-rpc.publicnode.com",
		}
	}
	if c.POLPriceUSD == 0 {
		c.POLPriceUSD = 0.40
	}
}

func (c *ChainConfig) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("chain.rpc_endpoints must not be empty")
	}
	return nil
}

// SecretsConfig 密钥存储配置
type SecretsConfig struct {
	StorePath        string `yaml:"store_path" json:"store_path"`
	EncryptionKeyEnv string `yaml:"encryption_key_env" json:"encryption_key_env"`
	// PrivateKeyEnv 直接提供私钥的环境变量（优先于 keystore，便于容器部署）
	PrivateKeyEnv string `yaml:"private_key_env" json:"private_key_env"`
}

func (c *SecretsConfig) Defaults() {
	if c.StorePath == "" {
		c.StorePath = "data/keystore"
	}
	if c.EncryptionKeyEnv == "" {
		c.EncryptionKeyEnv = "ARBOT_KEYSTORE_KEY"
	}
	if c.PrivateKeyEnv == "" {
		c.PrivateKeyEnv = "ARBOT_PRIVATE_KEY"
	}
}

// FeedConfig 外部行情源配置
type FeedConfig struct {
	WSURL            string   `yaml:"ws_url" json:"ws_url"`
	Symbols          []string `yaml:"symbols" json:"symbols"` // 例如 ["BTCUSDT", "ETHUSDT"]
	WindowSeconds    int      `yaml:"window_seconds" json:"window_seconds"`
	ReconnectSeconds int      `yaml:"reconnect_seconds" json:"reconnect_seconds"`
}

func (c *FeedConfig) Defaults() {
	if c.WSURL == "" {
		c.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 120
	}
	if c.ReconnectSeconds == 0 {
		c.ReconnectSeconds = 5
	}
}

func (c *FeedConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// OracleConfig 决策顾问（LLM）配置
type OracleConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	URL            string `yaml:"url" json:"url"`
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

func (c *OracleConfig) Defaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 2
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "ARBOT_ORACLE_KEY"
	}
}

func (c *OracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PairedArbConfig 同场配对套利配置
type PairedArbConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinProfitPct float64 `yaml:"min_profit_pct" json:"min_profit_pct"` // 默认 0.005（0.5%）
}

func (c *PairedArbConfig) Defaults() {
	if c.MinProfitPct == 0 {
		c.MinProfitPct = 0.005
	}
}

// CrossVenueConfig 跨平台套利配置
type CrossVenueConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	SecondVenueHost   string  `yaml:"second_venue_host" json:"second_venue_host"`
	SecondVenueName   string  `yaml:"second_venue_name" json:"second_venue_name"`
	MinProfitPct      float64 `yaml:"min_profit_pct" json:"min_profit_pct"`
	WithdrawalFeeA    float64 `yaml:"withdrawal_fee_a" json:"withdrawal_fee_a"`         // 本平台出金费率
	WithdrawalFeeB    float64 `yaml:"withdrawal_fee_b" json:"withdrawal_fee_b"`         // 对手平台出金费率
	SecondVenueFeePct float64 `yaml:"second_venue_fee_pct" json:"second_venue_fee_pct"` // 对手平台 taker 费率
	QuoteTTLSeconds   int     `yaml:"quote_ttl_seconds" json:"quote_ttl_seconds"`
	SecondVenueKeyEnv string  `yaml:"second_venue_key_env" json:"second_venue_key_env"`
}

func (c *CrossVenueConfig) Defaults() {
	if c.SecondVenueHost == "" {
		c.SecondVenueHost = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if c.SecondVenueName == "" {
		c.SecondVenueName = "kalshi"
	}
	if c.MinProfitPct == 0 {
		c.MinProfitPct = 0.005
	}
	if c.WithdrawalFeeA == 0 {
		c.WithdrawalFeeA = 0.001
	}
	if c.WithdrawalFeeB == 0 {
		c.WithdrawalFeeB = 0.002
	}
	if c.SecondVenueFeePct == 0 {
		c.SecondVenueFeePct = 0.01
	}
	if c.QuoteTTLSeconds == 0 {
		c.QuoteTTLSeconds = 10
	}
	if c.SecondVenueKeyEnv == "" {
		c.SecondVenueKeyEnv = "ARBOT_KALSHI_KEY"
	}
}

// LatencyArbConfig 延迟套利配置
type LatencyArbConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MoveThresholds 每个标的的相对波动触发阈值，默认 1%
	MoveThresholds       map[string]float64 `yaml:"move_thresholds" json:"move_thresholds"`
	DefaultMoveThreshold float64            `yaml:"default_move_threshold" json:"default_move_threshold"`
	MinLagPct            float64            `yaml:"min_lag_pct" json:"min_lag_pct"`
	VolatilityCeiling    float64            `yaml:"volatility_ceiling" json:"volatility_ceiling"` // 1 分钟波动率上限
	MinProfitPct         float64            `yaml:"min_profit_pct" json:"min_profit_pct"`
}

func (c *LatencyArbConfig) Defaults() {
	if c.DefaultMoveThreshold == 0 {
		c.DefaultMoveThreshold = 0.01
	}
	if c.MinLagPct == 0 {
		c.MinLagPct = 0.01
	}
	if c.VolatilityCeiling == 0 {
		c.VolatilityCeiling = 0.05
	}
	if c.MinProfitPct == 0 {
		c.MinProfitPct = 0.005
	}
}

// CertaintyConfig 临近结算确定性收割配置
type CertaintyConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	WindowSeconds  int     `yaml:"window_seconds" json:"window_seconds"` // 距截止时间窗口
	BandLow        float64 `yaml:"band_low" json:"band_low"`
	BandHigh       float64 `yaml:"band_high" json:"band_high"`
	MinProfitPct   float64 `yaml:"min_profit_pct" json:"min_profit_pct"`
}

func (c *CertaintyConfig) Defaults() {
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 120
	}
	if c.BandLow == 0 {
		c.BandLow = 0.97
	}
	if c.BandHigh == 0 {
		c.BandHigh = 0.99
	}
	if c.MinProfitPct == 0 {
		c.MinProfitPct = 0.01
	}
}

// ScannersConfig 扫描器配置
type ScannersConfig struct {
	Paired     PairedArbConfig  `yaml:"paired" json:"paired"`
	CrossVenue CrossVenueConfig `yaml:"cross_venue" json:"cross_venue"`
	Latency    LatencyArbConfig `yaml:"latency" json:"latency"`
	Certainty  CertaintyConfig  `yaml:"certainty" json:"certainty"`
	// Priority 同周期竞争资金时的并列裁决顺序（利润率相同时生效）
	Priority []string `yaml:"priority" json:"priority"`
}

func (c *ScannersConfig) Defaults() {
	c.Paired.Defaults()
	c.CrossVenue.Defaults()
	c.Latency.Defaults()
	c.Certainty.Defaults()
	if len(c.Priority) == 0 {
		c.Priority = []string{"paired_arb", "cross_venue", "certainty", "latency"}
	}
}

// CapitalTier 小资金分层：资金低于 BelowUSD 时放宽仓位/热度上限。
// 业务策略而非结构约束，保持可配置。
type CapitalTier struct {
	BelowUSD       float64 `yaml:"below_usd" json:"below_usd"`
	MaxPositionPct float64 `yaml:"max_position_pct" json:"max_position_pct"`
	MaxHeatPct     float64 `yaml:"max_heat_pct" json:"max_heat_pct"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	ConsecutiveFailures int     `yaml:"consecutive_failures" json:"consecutive_failures"`
	WinRateFloor        float64 `yaml:"win_rate_floor" json:"win_rate_floor"`
	WinRateWindow       int     `yaml:"win_rate_window" json:"win_rate_window"`
	HeartbeatFailures   int     `yaml:"heartbeat_failures" json:"heartbeat_failures"`
}

func (c *BreakerConfig) Defaults() {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 10
	}
	if c.WinRateFloor == 0 {
		c.WinRateFloor = 0.90
	}
	if c.WinRateWindow == 0 {
		c.WinRateWindow = 100
	}
	if c.HeartbeatFailures == 0 {
		c.HeartbeatFailures = 3
	}
}

// RiskConfig 风控配置
type RiskConfig struct {
	WinProb           float64       `yaml:"win_prob" json:"win_prob"`                     // 套利成交后获胜概率（接近 1）
	MinEdgePct        float64       `yaml:"min_edge_pct" json:"min_edge_pct"`             // Kelly 最小边际，默认 2.5%
	KellyFractionMin  float64       `yaml:"kelly_fraction_min" json:"kelly_fraction_min"` // 默认 0.25
	KellyFractionMax  float64       `yaml:"kelly_fraction_max" json:"kelly_fraction_max"` // 默认 0.50
	TrailingWindow    int           `yaml:"trailing_window" json:"trailing_window"`       // 自适应窗口，默认 20
	MaxPositionPct    float64       `yaml:"max_position_pct" json:"max_position_pct"`     // 严格默认 5%
	MaxHeatPct        float64       `yaml:"max_heat_pct" json:"max_heat_pct"`             // 默认 30%
	MinPositionUSD    float64       `yaml:"min_position_usd" json:"min_position_usd"`     // 平台最小单约束
	PerAssetCap       int           `yaml:"per_asset_cap" json:"per_asset_cap"`           // 单标的并发仓位数
	CapitalTiers      []CapitalTier `yaml:"capital_tiers" json:"capital_tiers"`
	Breaker           BreakerConfig `yaml:"breaker" json:"breaker"`
	DailyDrawdownPct  float64       `yaml:"daily_drawdown_pct" json:"daily_drawdown_pct"`
	MinCapitalUSD     float64       `yaml:"min_capital_usd" json:"min_capital_usd"`
	GasCeilingGwei    float64       `yaml:"gas_ceiling_gwei" json:"gas_ceiling_gwei"`
}

func (c *RiskConfig) Defaults() {
	if c.WinProb == 0 {
		c.WinProb = 0.995
	}
	if c.MinEdgePct == 0 {
		c.MinEdgePct = 0.025
	}
	if c.KellyFractionMin == 0 {
		c.KellyFractionMin = 0.25
	}
	if c.KellyFractionMax == 0 {
		c.KellyFractionMax = 0.50
	}
	if c.TrailingWindow == 0 {
		c.TrailingWindow = 20
	}
	if c.MaxPositionPct == 0 {
		c.MaxPositionPct = 0.05
	}
	if c.MaxHeatPct == 0 {
		c.MaxHeatPct = 0.30
	}
	if c.MinPositionUSD == 0 {
		c.MinPositionUSD = 3.50
	}
	if c.PerAssetCap == 0 {
		c.PerAssetCap = 2
	}
	if len(c.CapitalTiers) == 0 {
		c.CapitalTiers = []CapitalTier{
			{BelowUSD: 5, MaxPositionPct: 0.80, MaxHeatPct: 0.80},
			{BelowUSD: 10, MaxPositionPct: 0.60, MaxHeatPct: 0.60},
			{BelowUSD: 20, MaxPositionPct: 0.40, MaxHeatPct: 0.40},
		}
	}
	c.Breaker.Defaults()
	if c.DailyDrawdownPct == 0 {
		c.DailyDrawdownPct = 0.10
	}
	if c.MinCapitalUSD == 0 {
		c.MinCapitalUSD = 10
	}
	if c.GasCeilingGwei == 0 {
		c.GasCeilingGwei = 800
	}
}

func (c *RiskConfig) Validate() error {
	if c.KellyFractionMin > c.KellyFractionMax {
		return fmt.Errorf("risk.kelly_fraction_min must not exceed kelly_fraction_max")
	}
	if c.WinProb <= 0 || c.WinProb > 1 {
		return fmt.Errorf("risk.win_prob out of range (0,1]: %v", c.WinProb)
	}
	for i, t := range c.CapitalTiers {
		if t.BelowUSD <= 0 || t.MaxPositionPct <= 0 || t.MaxHeatPct <= 0 {
			return fmt.Errorf("risk.capital_tiers[%d] has non-positive field", i)
		}
	}
	return nil
}

// ExecutionConfig 执行配置
type ExecutionConfig struct {
	SlippageTol       float64 `yaml:"slippage_tol" json:"slippage_tol"` // 默认 0.001（0.1%）
	LegTimeoutSeconds int     `yaml:"leg_timeout_seconds" json:"leg_timeout_seconds"`
	UnwindBidOffset   float64 `yaml:"unwind_bid_offset" json:"unwind_bid_offset"` // 紧急平仓让价
	MinOrderUSD       float64 `yaml:"min_order_usd" json:"min_order_usd"`
	DedupeTTLSeconds  int     `yaml:"dedupe_ttl_seconds" json:"dedupe_ttl_seconds"`
}

func (c *ExecutionConfig) Defaults() {
	if c.SlippageTol == 0 {
		c.SlippageTol = 0.001
	}
	if c.LegTimeoutSeconds == 0 {
		c.LegTimeoutSeconds = 10
	}
	if c.UnwindBidOffset == 0 {
		c.UnwindBidOffset = 0.01
	}
	if c.MinOrderUSD == 0 {
		c.MinOrderUSD = 3.50
	}
	if c.DedupeTTLSeconds == 0 {
		c.DedupeTTLSeconds = 30
	}
}

func (c *ExecutionConfig) LegTimeout() time.Duration {
	return time.Duration(c.LegTimeoutSeconds) * time.Second
}

// TxManagerConfig 链上交易生命周期配置
type TxManagerConfig struct {
	PendingLimit        int     `yaml:"pending_limit" json:"pending_limit"`
	StuckTimeoutSeconds int     `yaml:"stuck_timeout_seconds" json:"stuck_timeout_seconds"`
	GasBumpPct          float64 `yaml:"gas_bump_pct" json:"gas_bump_pct"` // 默认 0.10（每次 +10%）
	MaxEscalations      int     `yaml:"max_escalations" json:"max_escalations"`
	BackoffBaseSeconds  int     `yaml:"backoff_base_seconds" json:"backoff_base_seconds"`
	BackoffCapSeconds   int     `yaml:"backoff_cap_seconds" json:"backoff_cap_seconds"`
	MaxAttempts         int     `yaml:"max_attempts" json:"max_attempts"`
}

func (c *TxManagerConfig) Defaults() {
	if c.PendingLimit == 0 {
		c.PendingLimit = 5
	}
	if c.StuckTimeoutSeconds == 0 {
		c.StuckTimeoutSeconds = 60
	}
	if c.GasBumpPct == 0 {
		c.GasBumpPct = 0.10
	}
	if c.MaxEscalations == 0 {
		c.MaxEscalations = 5
	}
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = 1
	}
	if c.BackoffCapSeconds == 0 {
		c.BackoffCapSeconds = 60
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
}

func (c *TxManagerConfig) StuckTimeout() time.Duration {
	return time.Duration(c.StuckTimeoutSeconds) * time.Second
}

// EngineConfig 主循环配置
type EngineConfig struct {
	ScanIntervalSeconds      int  `yaml:"scan_interval_seconds" json:"scan_interval_seconds"`
	HeartbeatIntervalSeconds int  `yaml:"heartbeat_interval_seconds" json:"heartbeat_interval_seconds"`
	ShutdownTimeoutSeconds   int  `yaml:"shutdown_timeout_seconds" json:"shutdown_timeout_seconds"`
	DryRun                   bool `yaml:"dry_run" json:"dry_run"`
}

func (c *EngineConfig) Defaults() {
	if c.ScanIntervalSeconds == 0 {
		c.ScanIntervalSeconds = 5
	}
	if c.HeartbeatIntervalSeconds == 0 {
		c.HeartbeatIntervalSeconds = 60
	}
	if c.ShutdownTimeoutSeconds == 0 {
		c.ShutdownTimeoutSeconds = 30
	}
}

func (c *EngineConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// StorageConfig 交易历史存储配置
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

func (c *StorageConfig) Defaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "data/trades.db"
	}
}

// PersistenceConfig 状态持久化配置
type PersistenceConfig struct {
	StateDir string `yaml:"state_dir" json:"state_dir"`
}

func (c *PersistenceConfig) Defaults() {
	if c.StateDir == "" {
		c.StateDir = "data/state"
	}
}

// Config 应用配置根
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Venue       VenueConfig       `yaml:"venue" json:"venue"`
	Chain       ChainConfig       `yaml:"chain" json:"chain"`
	Secrets     SecretsConfig     `yaml:"secrets" json:"secrets"`
	Feed        FeedConfig        `yaml:"feed" json:"feed"`
	Oracle      OracleConfig      `yaml:"oracle" json:"oracle"`
	Scanners    ScannersConfig    `yaml:"scanners" json:"scanners"`
	Risk        RiskConfig        `yaml:"risk" json:"risk"`
	Execution   ExecutionConfig   `yaml:"execution" json:"execution"`
	TxManager   TxManagerConfig   `yaml:"txmanager" json:"txmanager"`
	Engine      EngineConfig      `yaml:"engine" json:"engine"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
}

// Defaults 填充所有节的默认值
func (c *Config) Defaults() {
	c.Logging.Defaults()
	c.Venue.Defaults()
	c.Chain.Defaults()
	c.Secrets.Defaults()
	c.Feed.Defaults()
	c.Oracle.Defaults()
	c.Scanners.Defaults()
	c.Risk.Defaults()
	c.Execution.Defaults()
	c.TxManager.Defaults()
	c.Engine.Defaults()
	c.Storage.Defaults()
	c.Persistence.Defaults()
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Venue.Validate(); err != nil {
		return err
	}
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	return c.Risk.Validate()
}

// Load 从 YAML 文件加载配置；先加载 .env（存在时），再读文件，
// 最后补默认值并校验。路径为空时返回纯默认配置。
func Load(path string) (*Config, error) {
	// .env 仅用于密钥类环境变量，缺失不算错误
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
