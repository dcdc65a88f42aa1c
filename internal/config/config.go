package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	ProcessorSimulate = "simulate"
	ProcessorChain    = "chain"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `mapstructure:"APP_NAME"`
	AppEnv         string        `mapstructure:"APP_ENV"`
	Port           string        `mapstructure:"PORT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	DBMaxConns     int32         `mapstructure:"DATABASE_MAX_CONNS"`
	ConnectTimeout time.Duration `mapstructure:"CONNECT_TIMEOUT"`
	ShutdownPeriod time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	WalletSalt string `mapstructure:"WALLET_GENERATION_SALT"`

	ChainRPCURL      string `mapstructure:"CHAIN_RPC_URL"`
	TokenAddress     string `mapstructure:"TOKEN_ADDRESS"`
	TokenSymbol      string `mapstructure:"TOKEN_SYMBOL"`
	TokenDecimals    int32  `mapstructure:"TOKEN_DECIMALS"`
	NativeSymbol     string `mapstructure:"NATIVE_SYMBOL"`
	FaucetPrivateKey string `mapstructure:"FAUCET_PRIVATE_KEY"`
	TreasuryAddress  string `mapstructure:"TREASURY_ADDRESS"`

	GasFundingAmount decimal.Decimal `mapstructure:"-"`
	FundGasOnDeposit bool            `mapstructure:"FUND_GAS_ON_DEPOSIT"`
	DepositRate      decimal.Decimal `mapstructure:"-"`
	WithdrawRate     decimal.Decimal `mapstructure:"-"`
	SettlementRate   decimal.Decimal `mapstructure:"-"`
	LocalCurrency    string          `mapstructure:"LOCAL_CURRENCY"`
	ProcessorMode    string          `mapstructure:"DEPOSIT_PROCESSOR_MODE"`

	ReceiptTimeout      time.Duration `mapstructure:"RECEIPT_TIMEOUT"`
	ReceiptPollInterval time.Duration `mapstructure:"RECEIPT_POLL_INTERVAL"`

	SessionIdleTimeout       time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SessionSweepSchedule     string        `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	PayoutCheckSchedule      string        `mapstructure:"PAYOUT_CHECK_SCHEDULE"`
	PayoutSettleAfter        time.Duration `mapstructure:"PAYOUT_SETTLE_AFTER"`
	DepositProcessSchedule   string        `mapstructure:"DEPOSIT_PROCESS_SCHEDULE"`
	ReceiptReconcileSchedule string        `mapstructure:"RECEIPT_RECONCILE_SCHEDULE"`

	USSDRateLimit int           `mapstructure:"USSD_RATE_LIMIT"`
	USSDReplayTTL time.Duration `mapstructure:"USSD_REPLAY_TTL"`
	AdminAPIKey   string        `mapstructure:"ADMIN_API_KEY"`
	FrontendURL   string        `mapstructure:"FRONTEND_URL"`

	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange string `mapstructure:"NOTIFICATION_EXCHANGE"`
}

var defaults = map[string]any{
	"APP_NAME":                   "avanomad",
	"APP_ENV":                    EnvDevelopment,
	"PORT":                       "8080",
	"LOG_LEVEL":                  "info",
	"SHUTDOWN_TIMEOUT":           "10s",
	"DATABASE_MAX_CONNS":         10,
	"CONNECT_TIMEOUT":            "5s",
	"TOKEN_SYMBOL":               "USDC.e",
	"TOKEN_DECIMALS":             6,
	"NATIVE_SYMBOL":              "AVAX",
	"GAS_FUNDING_AMOUNT":         "0.05",
	"FUND_GAS_ON_DEPOSIT":        true,
	"DEPOSIT_RATE":               "0.00083",
	"WITHDRAW_RATE":              "1200",
	"SETTLEMENT_RATE":            "0.0005",
	"LOCAL_CURRENCY":             "NGN",
	"DEPOSIT_PROCESSOR_MODE":     ProcessorSimulate,
	"RECEIPT_TIMEOUT":            "60s",
	"RECEIPT_POLL_INTERVAL":      "5s",
	"SESSION_IDLE_TIMEOUT":       "1h",
	"SESSION_SWEEP_SCHEDULE":     "@every 1h",
	"PAYOUT_CHECK_SCHEDULE":      "@every 5m",
	"PAYOUT_SETTLE_AFTER":        "1m",
	"DEPOSIT_PROCESS_SCHEDULE":   "@every 30s",
	"RECEIPT_RECONCILE_SCHEDULE": "@every 1m",
	"USSD_RATE_LIMIT":            30,
	"USSD_REPLAY_TTL":            "2m",
	"FRONTEND_URL":               "*",
	"NOTIFICATION_EXCHANGE":      "avanomad.events",
}

// bound without defaults so AutomaticEnv values show up in Unmarshal.
var optional = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"WALLET_GENERATION_SALT",
	"CHAIN_RPC_URL",
	"TOKEN_ADDRESS",
	"FAUCET_PRIVATE_KEY",
	"TREASURY_ADDRESS",
	"ADMIN_API_KEY",
	"RABBITMQ_URL",
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for _, key := range optional {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	var err error
	if cfg.GasFundingAmount, err = decimalKey(v, "GAS_FUNDING_AMOUNT"); err != nil {
		return Config{}, err
	}
	if cfg.DepositRate, err = decimalKey(v, "DEPOSIT_RATE"); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawRate, err = decimalKey(v, "WITHDRAW_RATE"); err != nil {
		return Config{}, err
	}
	if cfg.SettlementRate, err = decimalKey(v, "SETTLEMENT_RATE"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WalletSalt == "" {
		return fmt.Errorf("WALLET_GENERATION_SALT must be set")
	}
	if !c.DepositRate.IsPositive() || !c.WithdrawRate.IsPositive() || !c.SettlementRate.IsPositive() {
		return fmt.Errorf("exchange rates must be positive")
	}
	if c.GasFundingAmount.IsNegative() {
		return fmt.Errorf("GAS_FUNDING_AMOUNT must not be negative")
	}

	durations := map[string]time.Duration{
		"SHUTDOWN_TIMEOUT":      c.ShutdownPeriod,
		"CONNECT_TIMEOUT":       c.ConnectTimeout,
		"RECEIPT_TIMEOUT":       c.ReceiptTimeout,
		"RECEIPT_POLL_INTERVAL": c.ReceiptPollInterval,
		"SESSION_IDLE_TIMEOUT":  c.SessionIdleTimeout,
		"PAYOUT_SETTLE_AFTER":   c.PayoutSettleAfter,
		"USSD_REPLAY_TTL":       c.USSDReplayTTL,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	schedules := map[string]string{
		"SESSION_SWEEP_SCHEDULE":     c.SessionSweepSchedule,
		"PAYOUT_CHECK_SCHEDULE":      c.PayoutCheckSchedule,
		"DEPOSIT_PROCESS_SCHEDULE":   c.DepositProcessSchedule,
		"RECEIPT_RECONCILE_SCHEDULE": c.ReceiptReconcileSchedule,
	}
	for key, s := range schedules {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be positive")
	}

	switch c.ProcessorMode {
	case ProcessorSimulate, ProcessorChain:
	default:
		return fmt.Errorf("invalid DEPOSIT_PROCESSOR_MODE %q", c.ProcessorMode)
	}

	if c.ChainRPCURL != "" {
		if c.TokenAddress == "" {
			return fmt.Errorf("TOKEN_ADDRESS must be set when CHAIN_RPC_URL is set")
		}
		if c.FaucetPrivateKey == "" {
			return fmt.Errorf("FAUCET_PRIVATE_KEY must be set when CHAIN_RPC_URL is set")
		}
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if c.ChainRPCURL == "" {
			return fmt.Errorf("CHAIN_RPC_URL must be set")
		}
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsProduction reports whether the service runs against real backing services only.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
