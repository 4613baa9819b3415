package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Chain      ChainConfig       `mapstructure:"chain"`
	Oracle     OracleConfig      `mapstructure:"oracle"`
	Market     MarketConfig      `mapstructure:"market"`
	Venue      VenueConfig       `mapstructure:"venue"`
	Buyback    BuybackConfig     `mapstructure:"buyback"`
	Thresholds []ThresholdConfig `mapstructure:"thresholds" validate:"dive"`
	Sources    []SourceConfig    `mapstructure:"sources" validate:"min=1,dive"`
	Treasury   TreasuryConfig    `mapstructure:"treasury"`
	Rebalance  RebalanceConfig   `mapstructure:"rebalance"`
	Addresses  AddressConfig     `mapstructure:"addresses"`
	Actors     []ActorConfig     `mapstructure:"actors" validate:"dive"`
	Scheduler  SchedulerConfig   `mapstructure:"scheduler"`
	Events     EventsConfig      `mapstructure:"events"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port" validate:"required"`
	ReadOnly bool   `mapstructure:"read_only"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type AuthConfig struct {
	RequireAPIKey  bool   `mapstructure:"require_api_key"`
	AdminKey       string `mapstructure:"admin_key"`
	AdminSecretKey string `mapstructure:"admin_secret_key"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	EventRetentionDays        int    `mapstructure:"event_retention_days"`
}

type RedisConfig struct {
	Addr                  string        `mapstructure:"addr"`
	Password              string        `mapstructure:"password"`
	DB                    int           `mapstructure:"db"`
	IdempotencyTTLSeconds int           `mapstructure:"idempotency_ttl_seconds"`
	LockKey               string        `mapstructure:"lock_key"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
	EventListKey          string        `mapstructure:"event_list_key"`
	EventListMax          int           `mapstructure:"event_list_max"`
}

type ChainConfig struct {
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries" validate:"gte=0,lte=5"`
}

type OracleConfig struct {
	// Backend is static, feed or chainlink.
	Backend   string        `mapstructure:"backend" validate:"oneof=static feed chainlink"`
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// StaticPrice is used by the static backend, in quote units ("0.45").
	StaticPrice string `mapstructure:"static_price"`
	// Aggregator is the Chainlink AggregatorV3 address.
	Aggregator string `mapstructure:"aggregator"`
}

type MarketConfig struct {
	WSURL   string   `mapstructure:"ws_url"`
	TokenID string   `mapstructure:"token_id"`
	Extra   []string `mapstructure:"extra_token_ids"`
}

type VenueConfig struct {
	// Backend is oracle (price-based simulation) or book (walks the live ask side).
	Backend         string        `mapstructure:"backend" validate:"oneof=oracle book"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxSlippageBps  uint64        `mapstructure:"max_slippage_bps" validate:"lte=10000"`
	MaxBookAge      time.Duration `mapstructure:"max_book_age"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type BuybackConfig struct {
	MinimumAmount    string        `mapstructure:"minimum_amount" validate:"required"`
	Cooldown         time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	BasePressureBps  uint64        `mapstructure:"base_pressure_bps" validate:"lte=10000"`
	MaxPressureBps   uint64        `mapstructure:"max_pressure_bps" validate:"lte=10000,gtefield=BasePressureBps"`
	IncreaseRateBps  uint64        `mapstructure:"increase_rate_bps" validate:"lte=10000"`
	MaxPressureLevel uint64        `mapstructure:"max_pressure_level" validate:"gte=1"`
	BurnRatioBps     uint64        `mapstructure:"burn_ratio_bps" validate:"lte=10000"`
	EmergencyDropBps uint64        `mapstructure:"emergency_drop_bps" validate:"gte=1,lte=10000"`
}

type ThresholdConfig struct {
	Price  string `mapstructure:"price" validate:"required"`
	Level  uint64 `mapstructure:"level" validate:"gte=1"`
	Active bool   `mapstructure:"active"`
}

type SourceConfig struct {
	Name       string `mapstructure:"name" validate:"required"`
	BuybackBps uint64 `mapstructure:"buyback_bps" validate:"lte=10000"`
}

type TreasuryConfig struct {
	BuybackBps      uint64          `mapstructure:"buyback_bps"`
	StakingBps      uint64          `mapstructure:"staking_bps"`
	LiquidityBps    uint64          `mapstructure:"liquidity_bps"`
	OperationsBps   uint64          `mapstructure:"operations_bps"`
	StakingFloorBps uint64          `mapstructure:"staking_floor_bps"`
	Adaptive        []BracketConfig `mapstructure:"adaptive" validate:"dive"`
}

type BracketConfig struct {
	Below      string `mapstructure:"below" validate:"required"`
	BuybackBps uint64 `mapstructure:"buyback_bps" validate:"lte=10000"`
}

type RebalanceConfig struct {
	TargetRatioBps uint64        `mapstructure:"target_ratio_bps" validate:"lte=10000"`
	ThresholdBps   uint64        `mapstructure:"threshold_bps" validate:"lte=10000"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	MinAdjustment  string        `mapstructure:"min_adjustment"`
}

type AddressConfig struct {
	BurnSink         string `mapstructure:"burn_sink" validate:"omitempty,eth_addr"`
	RewardsPool      string `mapstructure:"rewards_pool" validate:"required,eth_addr"`
	StakingPool      string `mapstructure:"staking_pool" validate:"required,eth_addr"`
	LiquidityPool    string `mapstructure:"liquidity_pool" validate:"required,eth_addr"`
	OperationsWallet string `mapstructure:"operations_wallet" validate:"required,eth_addr"`
}

type ActorConfig struct {
	Name    string   `mapstructure:"name" validate:"required"`
	Address string   `mapstructure:"address" validate:"required,eth_addr"`
	APIKey  string   `mapstructure:"api_key" validate:"required"`
	Roles   []string `mapstructure:"roles" validate:"dive,oneof=admin operator revenue_source rebalancer"`
	QPS     float64  `mapstructure:"qps" validate:"gte=0"`
	Burst   int      `mapstructure:"burst" validate:"gte=0"`
}

type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Actor            string `mapstructure:"actor" validate:"omitempty,eth_addr"`
	DistributionCron string `mapstructure:"distribution_cron"`
	// DistributionMode is fixed or adaptive.
	DistributionMode string        `mapstructure:"distribution_mode" validate:"oneof=fixed adaptive"`
	RebalanceCron    string        `mapstructure:"rebalance_cron"`
	BuybackCron      string        `mapstructure:"buyback_cron"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
}

type EventsConfig struct {
	// Backend is memory, postgres, redis or sqlite.
	Backend    string `mapstructure:"backend" validate:"oneof=memory postgres redis sqlite"`
	SQLitePath string `mapstructure:"sqlite_path"`
	LogDir     string `mapstructure:"log_dir"`
	BufferSize int    `mapstructure:"buffer_size" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.require_api_key", true)
	v.SetDefault("database.idempotency_retention_hours", 168)
	v.SetDefault("database.event_retention_days", 90)
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("redis.lock_key", "burngate:engine:lock")
	v.SetDefault("redis.lock_ttl", "30s")
	v.SetDefault("redis.event_list_key", "burngate:events")
	v.SetDefault("redis.event_list_max", 10000)
	v.SetDefault("chain.timeout", "5s")
	v.SetDefault("chain.retries", 1)
	v.SetDefault("oracle.backend", "static")
	v.SetDefault("oracle.heartbeat", "1h")
	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("oracle.static_price", "1")
	v.SetDefault("market.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("venue.backend", "oracle")
	v.SetDefault("venue.timeout", "10s")
	v.SetDefault("venue.max_slippage_bps", 300)
	v.SetDefault("venue.max_book_age", "10s")
	v.SetDefault("venue.breaker_failures", 5)
	v.SetDefault("venue.breaker_cooldown", "30s")

	v.SetDefault("buyback.minimum_amount", "100")
	v.SetDefault("buyback.cooldown", "1h")
	v.SetDefault("buyback.base_pressure_bps", 5000)
	v.SetDefault("buyback.max_pressure_bps", 8000)
	v.SetDefault("buyback.increase_rate_bps", 500)
	v.SetDefault("buyback.max_pressure_level", 5)
	v.SetDefault("buyback.burn_ratio_bps", 5000)
	v.SetDefault("buyback.emergency_drop_bps", 2000)
	v.SetDefault("thresholds", []map[string]any{
		{"price": "0.50", "level": 1, "active": true},
		{"price": "0.40", "level": 2, "active": true},
		{"price": "0.30", "level": 3, "active": true},
		{"price": "0.25", "level": 4, "active": true},
	})
	v.SetDefault("sources", []map[string]any{
		{"name": "NFT_SALES", "buyback_bps": 3000},
		{"name": "AUCTION_FEES", "buyback_bps": 2500},
		{"name": "LENDING_INTEREST", "buyback_bps": 2000},
		{"name": "LIQUIDATION_PENALTIES", "buyback_bps": 4000},
		{"name": TreasurySource, "buyback_bps": 10000},
	})

	v.SetDefault("treasury.buyback_bps", 2000)
	v.SetDefault("treasury.staking_bps", 3000)
	v.SetDefault("treasury.liquidity_bps", 3000)
	v.SetDefault("treasury.operations_bps", 2000)
	v.SetDefault("treasury.staking_floor_bps", 1000)
	v.SetDefault("treasury.adaptive", []map[string]any{
		{"below": "0.50", "buyback_bps": 3000},
		{"below": "0.30", "buyback_bps": 3500},
	})

	v.SetDefault("rebalance.target_ratio_bps", 3000)
	v.SetDefault("rebalance.threshold_bps", 500)
	v.SetDefault("rebalance.cooldown", "24h")
	v.SetDefault("rebalance.min_adjustment", "10")

	v.SetDefault("addresses.burn_sink", model.BurnSinkAddress.Hex())

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.distribution_cron", "0 0 0 * * *")
	v.SetDefault("scheduler.distribution_mode", "adaptive")
	v.SetDefault("scheduler.rebalance_cron", "0 30 0 * * *")
	v.SetDefault("scheduler.buyback_cron", "0 */15 * * * *")
	v.SetDefault("scheduler.job_timeout", "1m")

	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.sqlite_path", "./data/events.db")
	v.SetDefault("events.log_dir", "./logs")
	v.SetDefault("events.buffer_size", 1000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

const TreasurySource = model.TreasurySource

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// Environment variables support
	// e.g. BURNGATE_DATABASE_DSN
	v.SetEnvPrefix("burngate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults returns the configuration with only defaults applied.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Validate runs the struct tags first, then builds the policy to catch semantic errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, a := range c.Actors {
		for _, r := range a.Roles {
			if _, ok := model.ParseRole(r); !ok {
				return fmt.Errorf("invalid config: actor %s: unknown role %q", a.Name, r)
			}
		}
	}
	return nil
}

// Policy builds the initial policy (version 1) from configuration.
func (c *Config) Policy() (*model.Policy, error) {
	minimum, err := units.Parse(c.Buyback.MinimumAmount)
	if err != nil {
		return nil, fmt.Errorf("buyback.minimum_amount: %w", err)
	}
	p := &model.Policy{
		Version: 1,
		Buyback: model.BuybackPolicy{
			MinimumAmount:    minimum,
			Cooldown:         c.Buyback.Cooldown,
			BasePressureBps:  c.Buyback.BasePressureBps,
			MaxPressureBps:   c.Buyback.MaxPressureBps,
			IncreaseRateBps:  c.Buyback.IncreaseRateBps,
			MaxPressureLevel: c.Buyback.MaxPressureLevel,
			BurnRatioBps:     c.Buyback.BurnRatioBps,
			EmergencyDropBps: c.Buyback.EmergencyDropBps,
		},
		Sources: make(map[model.SourceTag]model.SourceRate, len(c.Sources)),
		Shares: model.DistributionShares{
			Buyback:    c.Treasury.BuybackBps,
			Staking:    c.Treasury.StakingBps,
			Liquidity:  c.Treasury.LiquidityBps,
			Operations: c.Treasury.OperationsBps,
		},
		StakingFloorBps: c.Treasury.StakingFloorBps,
		Rebalance: model.RebalancePolicy{
			TargetRatioBps: c.Rebalance.TargetRatioBps,
			ThresholdBps:   c.Rebalance.ThresholdBps,
			Cooldown:       c.Rebalance.Cooldown,
		},
		UpdatedAt: time.Now().UTC(),
	}
	if c.Rebalance.MinAdjustment != "" {
		if p.Rebalance.MinAdjustment, err = units.Parse(c.Rebalance.MinAdjustment); err != nil {
			return nil, fmt.Errorf("rebalance.min_adjustment: %w", err)
		}
	}
	for i, th := range c.Thresholds {
		price, err := units.Parse(th.Price)
		if err != nil {
			return nil, fmt.Errorf("thresholds[%d].price: %w", i, err)
		}
		p.Thresholds = append(p.Thresholds, model.PriceThreshold{Price: price, Level: th.Level, Active: th.Active})
	}
	for _, s := range c.Sources {
		name := model.NormalizeSourceName(s.Name)
		tag := model.TagOf(name)
		if _, dup := p.Sources[tag]; dup {
			return nil, fmt.Errorf("sources: duplicate source %s", name)
		}
		p.Sources[tag] = model.SourceRate{Name: name, BuybackBps: s.BuybackBps}
	}
	if _, ok := p.Sources[model.TagOf(TreasurySource)]; !ok {
		return nil, fmt.Errorf("sources: %s source is required for treasury buybacks", TreasurySource)
	}
	for i, br := range c.Treasury.Adaptive {
		below, err := units.Parse(br.Below)
		if err != nil {
			return nil, fmt.Errorf("treasury.adaptive[%d].below: %w", i, err)
		}
		p.Adaptive = append(p.Adaptive, model.AdaptiveBracket{Below: below, BuybackBps: br.BuybackBps})
	}
	burn := c.Addresses.BurnSink
	if burn == "" {
		burn = model.BurnSinkAddress.Hex()
	}
	addrs, err := model.AddressesDocument{
		BurnSink:         burn,
		RewardsPool:      c.Addresses.RewardsPool,
		StakingPool:      c.Addresses.StakingPool,
		LiquidityPool:    c.Addresses.LiquidityPool,
		OperationsWallet: c.Addresses.OperationsWallet,
	}.Addresses()
	if err != nil {
		return nil, fmt.Errorf("addresses: %w", err)
	}
	p.Addresses = addrs
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SchedulerActor returns the address scheduled jobs run as.
func (c *Config) SchedulerActor() common.Address {
	if c.Scheduler.Actor == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Scheduler.Actor)
}
