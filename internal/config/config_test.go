package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WALLET_GENERATION_SALT", "pepper")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.TokenSymbol != "USDC.e" || cfg.TokenDecimals != 6 {
		t.Fatalf("unexpected token config %q/%d", cfg.TokenSymbol, cfg.TokenDecimals)
	}
	if cfg.SessionIdleTimeout != time.Hour {
		t.Fatalf("unexpected idle timeout %s", cfg.SessionIdleTimeout)
	}
	if cfg.ReceiptTimeout != 60*time.Second || cfg.ReceiptPollInterval != 5*time.Second {
		t.Fatalf("unexpected receipt timings %s/%s", cfg.ReceiptTimeout, cfg.ReceiptPollInterval)
	}
	if cfg.WithdrawRate.String() != "1200" || cfg.DepositRate.String() != "0.00083" {
		t.Fatalf("unexpected rates %s/%s", cfg.WithdrawRate, cfg.DepositRate)
	}
	if !cfg.FundGasOnDeposit {
		t.Fatalf("expected gas funding enabled by default")
	}
	if cfg.ProcessorMode != ProcessorSimulate {
		t.Fatalf("unexpected processor mode %q", cfg.ProcessorMode)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WALLET_GENERATION_SALT", "pepper")
	t.Setenv("PORT", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30m")
	t.Setenv("WITHDRAW_RATE", "1500.5")
	t.Setenv("FUND_GAS_ON_DEPOSIT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lower-cased log level, got %q", cfg.LogLevel)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected idle timeout %s", cfg.SessionIdleTimeout)
	}
	if cfg.WithdrawRate.String() != "1500.5" {
		t.Fatalf("unexpected withdraw rate %s", cfg.WithdrawRate)
	}
	if cfg.FundGasOnDeposit {
		t.Fatalf("expected gas funding disabled")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing salt", env: map[string]string{}},
		{name: "bad rate", env: map[string]string{"WALLET_GENERATION_SALT": "s", "DEPOSIT_RATE": "abc"}},
		{name: "zero rate", env: map[string]string{"WALLET_GENERATION_SALT": "s", "WITHDRAW_RATE": "0"}},
		{name: "bad processor", env: map[string]string{"WALLET_GENERATION_SALT": "s", "DEPOSIT_PROCESSOR_MODE": "magic"}},
		{name: "chain without token", env: map[string]string{"WALLET_GENERATION_SALT": "s", "CHAIN_RPC_URL": "http://localhost:8545"}},
		{name: "production without database", env: map[string]string{"WALLET_GENERATION_SALT": "s", "APP_ENV": "production"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
