package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genbot/internal/adapter/repo"
	"genbot/internal/http/handlers"
	"genbot/internal/http/httpapi"
	"genbot/internal/infra"
	"genbot/internal/infra/geoip"
	"genbot/internal/ledger"
	"genbot/internal/middleware"
	"genbot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("admin: db connection failed")
	}
	defer pool.Close()

	if err := infra.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("admin: schema bootstrap failed")
	}

	store, err := storage.NewZoneStore(cfg.StoragePath, cfg.MaxFileSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("admin: storage init failed")
	}

	users := repo.NewUserRepository(pool, cfg.InitialCredits)
	actions := repo.NewActionRepository(pool)
	creditRequests := repo.NewCreditRequestRepository(pool)

	app := &handlers.App{
		Users:          users,
		Actions:        actions,
		CreditRequests: creditRequests,
		Ledger:         ledger.New(users, actions, creditRequests, cfg.GenerationCost, cfg.CreditRequestAmount, &logger),
		Store:          store,
		Logger:         &logger,
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("admin: geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	router := httpapi.NewRouter(app, cfg.AdminToken, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("admin listening on :%s", cfg.AdminPort)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("admin: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin: shutdown failed")
	}
	logger.Info().Msg("admin stopped")
}
