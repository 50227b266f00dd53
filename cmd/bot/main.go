package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genbot/internal/adapter/repo"
	"genbot/internal/genapi"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/orchestrator"
	"genbot/internal/promptassist"
	"genbot/internal/storage"
	"genbot/internal/uploadcache"
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
		logger.Fatal().Err(err).Msg("bot: db connection failed")
	}
	defer pool.Close()

	if err := infra.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("bot: schema bootstrap failed")
	}

	store, err := storage.NewZoneStore(cfg.StoragePath, cfg.MaxFileSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: storage init failed")
	}

	users := repo.NewUserRepository(pool, cfg.InitialCredits)
	actions := repo.NewActionRepository(pool)
	sets := repo.NewImageSetRepository(pool)
	creditRequests := repo.NewCreditRequestRepository(pool)
	cache := uploadcache.New(repo.NewUploadCacheRepository(pool), cfg.UploadCacheTTL, logger)

	generator, err := genapi.NewClient(genapi.Options{
		BaseURL:       cfg.PlatformBaseURL,
		APIKey:        cfg.PlatformAPIKey,
		APISecret:     cfg.PlatformAPISecret,
		PublicBaseURL: cfg.PublicBaseURL,
		StorageRoot:   cfg.StoragePath,
		PollInterval:  cfg.PollInterval,
		MaxWait:       cfg.GenerationTimeout,
		Uploader:      genapi.NewPlatformUploader(cfg.PlatformBaseURL, cfg.PlatformAPIKey, cfg.PlatformAPISecret, nil),
		Cache:         cache,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: generation client init failed")
	}

	var assist orchestrator.PromptAssistant
	if cfg.AssistAPIKey != "" {
		client, err := promptassist.NewClient(promptassist.Options{
			APIKey:  cfg.AssistAPIKey,
			BaseURL: cfg.AssistBaseURL,
			Model:   cfg.AssistModel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: prompt assistant init failed")
		}
		assist = client
	}

	transport := &consoleTransport{out: os.Stdout}
	orch := orchestrator.New(orchestrator.Options{
		Users:     users,
		Actions:   actions,
		Sets:      sets,
		Ledger:    ledger.New(users, actions, creditRequests, cfg.GenerationCost, cfg.CreditRequestAmount, &logger),
		Store:     store,
		Generator: generator,
		Assist:    assist,
		Transport: transport,
		Logger:    &logger,
	})
	dispatcher := orchestrator.NewDispatcher(orch)

	logger.Info().Msg("bot ready, reading events from stdin")
	go readLoop(ctx, dispatcher, 1, "console", logger)

	<-ctx.Done()
	dispatcher.Wait()
	logger.Info().Msg("bot stopped")
}
