package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/avanomad/avanomad/internal/chain"
	"github.com/avanomad/avanomad/internal/config"
	"github.com/avanomad/avanomad/internal/funding"
	"github.com/avanomad/avanomad/internal/identity"
	"github.com/avanomad/avanomad/internal/jobs"
	"github.com/avanomad/avanomad/internal/keys"
	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/notification"
	"github.com/avanomad/avanomad/internal/payments"
	"github.com/avanomad/avanomad/internal/payout"
	"github.com/avanomad/avanomad/internal/session"
	"github.com/avanomad/avanomad/internal/ussd"
	"github.com/avanomad/avanomad/internal/wallet"
)

// devTreasury receives withdrawals on the simulated chain when no
// TREASURY_ADDRESS is configured.
const devTreasury = "0x000000000000000000000000000000000000bEEF"

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Chain overrides the gateway chosen from configuration.
	Chain chain.Gateway
}

// Services is the assembled application.
type Services struct {
	Keys     *keys.Provider
	Chain    chain.Gateway
	Identity *identity.Service
	Wallets  *wallet.Service
	Ledger   *ledger.Service
	Payouts  *payout.Service
	Payments *payments.Service
	Funding  *funding.Processor
	Sessions session.Store
	Machine  *ussd.Machine
	Notifier notification.Notifier
	Jobs     *jobs.Jobs

	closers []func() error
}

// NewServices builds every service, choosing Postgres, Redis, an EVM node
// and RabbitMQ when they are configured and in-process fallbacks otherwise.
func NewServices(ctx context.Context, d Deps) (*Services, error) {
	if d.Cfg.IsProduction() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	cfg := d.Cfg
	s := &Services{}

	provider, err := keys.NewProvider(cfg.WalletSalt)
	if err != nil {
		return nil, err
	}
	s.Keys = provider

	if s.Chain, err = s.gateway(ctx, d); err != nil {
		return nil, err
	}

	var (
		identityRepo identity.Repository
		walletRepo   wallet.Repository
		ledgerRepo   ledger.Repository
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		ledgerRepo = ledger.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("no database configured, using in-memory storage")
		identityRepo = identity.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		ledgerRepo = ledger.NewInMemory()
	}
	s.Identity = identity.NewService(identityRepo)
	s.Wallets = wallet.NewService(walletRepo, s.Chain, cfg.TokenSymbol)
	s.Ledger = ledger.NewService(ledgerRepo)

	if cfg.RabbitMQURL != "" {
		n, err := notification.NewAMQPNotifier(cfg.RabbitMQURL, cfg.NotificationExchange, d.Logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Notifier = n
		s.closers = append(s.closers, n.Close)
	} else {
		s.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	s.Payouts = payout.NewService(s.Ledger, payout.NewMockGateway(cfg.PayoutSettleAfter), cfg.LocalCurrency, d.Logger)
	s.Payments = payments.NewService(payments.Config{
		DepositRate:    cfg.DepositRate,
		WithdrawRate:   cfg.WithdrawRate,
		GasAmount:      cfg.GasFundingAmount,
		FundGas:        cfg.FundGasOnDeposit,
		Treasury:       cfg.TreasuryAddress,
		LocalCurrency:  cfg.LocalCurrency,
		TokenSymbol:    cfg.TokenSymbol,
		NativeSymbol:   cfg.NativeSymbol,
		TokenDecimals:  cfg.TokenDecimals,
		ReceiptTimeout: cfg.ReceiptTimeout,
		ReceiptPoll:    cfg.ReceiptPollInterval,
	}, s.Chain, s.Keys, s.Ledger, s.Payouts, s.Notifier, d.Logger)

	s.Funding, err = funding.NewProcessor(funding.Config{
		Mode:           funding.Mode(cfg.ProcessorMode),
		SettlementRate: cfg.SettlementRate,
		TokenDecimals:  cfg.TokenDecimals,
	}, s.Ledger, s.Wallets, s.Chain, d.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	if d.Cache != nil {
		s.Sessions = session.NewRedisStore(d.Cache, cfg.SessionIdleTimeout)
	} else {
		s.Sessions = session.NewMemoryStore()
	}

	s.Machine = ussd.NewMachine(ussd.Config{
		TokenSymbol:   cfg.TokenSymbol,
		NativeSymbol:  cfg.NativeSymbol,
		LocalCurrency: cfg.LocalCurrency,
	}, ussd.Deps{
		Accounts: s.Identity,
		Wallets:  s.Wallets,
		Payments: s.Payments,
		Keys:     s.Keys,
		Chain:    s.Chain,
		Sessions: s.Sessions,
		Logger:   d.Logger,
	})

	s.Jobs = jobs.NewJobs(s.Payouts, s.Funding, s.Payments, s.Sessions, cfg.SessionIdleTimeout, d.Logger)
	return s, nil
}

func (s *Services) gateway(ctx context.Context, d Deps) (chain.Gateway, error) {
	if d.Chain != nil {
		return d.Chain, nil
	}
	cfg := d.Cfg
	if cfg.ChainRPCURL == "" {
		treasury := cfg.TreasuryAddress
		if treasury == "" {
			treasury = devTreasury
		}
		d.Logger.Warn("no chain rpc configured, using simulated chain")
		return chain.NewSimulated(treasury), nil
	}

	faucet, err := keys.ParsePrivateKey(cfg.FaucetPrivateKey)
	if err != nil {
		return nil, err
	}
	gw, client, err := chain.DialEVM(ctx, cfg.ChainRPCURL, chain.EVMConfig{
		TokenAddress: cfg.TokenAddress,
		Decimals:     cfg.TokenDecimals,
		Faucet:       faucet,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { client.Close(); return nil })
	if err := gw.Ping(ctx); err != nil {
		d.Logger.Warn("chain connectivity check failed", "error", err)
	} else {
		d.Logger.Info("connected to chain", "token", cfg.TokenAddress, "operator", gw.Operator())
	}
	return gw, nil
}

// Close releases connections opened by NewServices.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
