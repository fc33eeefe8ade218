package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/chains/evm"
	"github.com/sigweihq/billpay/pkg/config"
	"github.com/sigweihq/billpay/pkg/ledger"
	"github.com/sigweihq/billpay/pkg/ledger/pgsql"
	"github.com/sigweihq/billpay/pkg/metrics"
	"github.com/sigweihq/billpay/pkg/payment"
	"github.com/sigweihq/billpay/pkg/rates"
	"github.com/sigweihq/billpay/pkg/server"
	"github.com/sigweihq/billpay/pkg/tokens"
	"github.com/sigweihq/billpay/pkg/verification"
	"github.com/sigweihq/billpay/pkg/wallet"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	recorder, err := metrics.NewPrometheusRecorder()
	if err != nil {
		return err
	}

	// --- Chain access ---
	chainRegistry, err := initChains(ctx, cfg, logger)
	if err != nil {
		return err
	}
	adapter, err := chainRegistry.Get(cfg.Network)
	if err != nil {
		return err
	}

	tokenRegistry, err := tokens.ForNetwork(cfg.Network)
	if err != nil {
		return err
	}
	feeCurrency := cfg.FeeCurrency
	if feeCurrency == (common.Address{}) {
		if feeCurrency, err = tokens.DefaultFeeCurrency(cfg.Network); err != nil {
			return err
		}
	}

	var provider wallet.Provider
	if cfg.WalletRPCURL != "" {
		rpcProvider, err := wallet.DialProvider(ctx, cfg.WalletRPCURL)
		if err != nil {
			return err
		}
		defer rpcProvider.Close()
		provider = rpcProvider
	}
	walletClient := wallet.NewClient(provider, adapter.RPCClient(), logger).WithGasLimit(cfg.GasLimit)

	verifier, err := verification.NewVerifierForNetwork(chainRegistry, cfg.Network, logger, recorder)
	if err != nil {
		return err
	}

	// --- Rates ---
	rateSource, err := newRateSource(cfg)
	if err != nil {
		return err
	}
	rateCache := rates.NewCache(rateSource, cfg.RateTTL, logger, recorder)

	// --- Ledger ---
	store, guard, closeStore, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator, err := payment.NewOrchestrator(payment.Dependencies{
		Tokens:   tokenRegistry,
		Chain:    walletClient,
		Verifier: verifier,
		Rates:    rateCache,
		Store:    store,
		Guard:    guard,
		Logger:   logger,
		Recorder: recorder,
	}, payment.Config{
		FeeCurrency:          feeCurrency,
		StepTimeout:          cfg.StepTimeout,
		VerificationTimeout:  cfg.VerificationTimeout,
		VerificationInterval: cfg.VerificationPollInterval,
	})
	if err != nil {
		return err
	}

	router, err := server.NewRouter(server.Services{
		Payments: orchestrator,
		Tokens:   tokenRegistry,
		Wallet:   walletClient,
		Rates:    rateCache,
		Metrics:  recorder.Handler(),
		ChainID:  cfg.ChainID(),
	}, server.Options{
		IsProduction: cfg.IsProduction,
		RateLimit:    cfg.RateLimit,
		CORSOrigins:  cfg.CORSOrigins,
	}, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("network", cfg.Network))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func initChains(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*chains.Registry, error) {
	if len(cfg.RPCURLs) > 0 {
		return evm.InitEVMChainsWithEndpoints(logger, map[string][]string{cfg.Network: cfg.RPCURLs})
	}
	return evm.InitEVMChains(ctx, logger, cfg.Network)
}

func newRateSource(cfg *config.Config) (rates.Source, error) {
	pegged := rates.NewPeggedSource()
	if cfg.RateSourceURL == "" {
		return pegged, nil
	}
	httpSource, err := rates.NewHTTPSource(cfg.RateSourceURL, cfg.RateAPIKey, nil)
	if err != nil {
		return nil, err
	}
	return rates.FallbackSource{httpSource, pegged}, nil
}

func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ledger.Store, ledger.ReplayGuard, func(), error) {
	if cfg.DatabaseURL == "" {
		store := ledger.NewMemoryStore()
		return store, store, func() {}, nil
	}

	logger.Info("Running database migrations...")
	if err := pgsql.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgsql.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Database connection pool established.")

	store := pgsql.NewStore(pool)
	return store, store, pool.Close, nil
}
