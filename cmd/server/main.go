package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sheikh-saqib/giving-vault/internal/events"
	"github.com/sheikh-saqib/giving-vault/internal/events/kafka"
	"github.com/sheikh-saqib/giving-vault/internal/gateway/custody"
	"github.com/sheikh-saqib/giving-vault/internal/gateway/memory"
	"github.com/sheikh-saqib/giving-vault/internal/httpapi"
	"github.com/sheikh-saqib/giving-vault/internal/infra"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/sheikh-saqib/giving-vault/internal/ledger"
	"github.com/sheikh-saqib/giving-vault/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	db, err := infra.NewDB(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if db != nil {
		defer db.Close()
	}

	store, err := storage.Open(ctx, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger store")
	}
	if !storage.Durable(store) {
		logger.Warn().Msg("DATABASE_URL not set, ledger is kept in memory only")
	}

	var gateway interfaces.AssetGateway
	var sim *memory.Gateway
	if cfg.Simulated() {
		sim = memory.New()
		gateway = sim
		logger.Warn().Msg("GATEWAY_URL not set, using the simulated gateway")
	} else {
		gateway, err = custody.New(custody.Config{
			BaseURL:           cfg.GatewayURL,
			Token:             cfg.GatewayToken,
			Timeout:           cfg.GatewayTimeout,
			RequestsPerSecond: cfg.GatewayRPS,
			Burst:             int(cfg.GatewayRPS) + 1,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure custody gateway")
		}
	}

	var publisher interfaces.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		defer kp.Close()
		publisher = kp
	}

	vault, err := ledger.New(ctx, ledger.Config{
		VaultID:        cfg.VaultAddress,
		Beneficiary:    cfg.BeneficiaryAddress,
		Store:          store,
		Gateway:        gateway,
		Publisher:      publisher,
		Logger:         logger,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open vault")
	}

	pending, err := vault.Recover(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to inspect pending intents")
	}
	if len(pending) > 0 {
		logger.Warn().Int("pending", len(pending)).Msg("resolve pending intents via POST /intents/{id}/resolve")
	}

	handlers := httpapi.NewHandlers(vault, cfg.AssetDecimals, logger, sim)
	limiter := httpapi.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.NewRouter(handlers, logger, limiter),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info().
			Str("vault", cfg.VaultAddress).
			Str("beneficiary", cfg.BeneficiaryAddress).
			Msgf("giving vault listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
