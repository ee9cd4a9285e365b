package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaenox/recipebot/internal/api"
	"github.com/xaenox/recipebot/internal/assistant"
	"github.com/xaenox/recipebot/internal/bot"
	"github.com/xaenox/recipebot/internal/catalog"
	"github.com/xaenox/recipebot/internal/classifier"
	"github.com/xaenox/recipebot/internal/composer"
	"github.com/xaenox/recipebot/internal/conversation"
	"github.com/xaenox/recipebot/internal/criteria"
	"github.com/xaenox/recipebot/internal/llm"
	"github.com/xaenox/recipebot/internal/ranker"
	"github.com/xaenox/recipebot/internal/storage"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const configPath = "config.yaml"

func main() {
	// Load configuration; without a file, defaults and environment apply
	path := configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.LoadConfig(path)

	// Initialize logger
	logger, _ := zap.NewProduction()
	if err == nil && cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var (
		store    storage.Storage
		postgres *storage.PostgresStorage
	)
	switch cfg.Database.Driver {
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		postgres, err = storage.NewPostgresStorage(cfg.Database, logger)
		store = postgres
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Database.SQLitePath))
		store, err = storage.NewSQLiteStorage(cfg.Database.SQLitePath, logger)
	default:
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	}
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// Initialize catalog
	var reader catalog.Reader
	if cfg.Catalog.Source == "postgres" {
		logger.Info("Reading recipes from PostgreSQL")
		reader = catalog.NewPostgresCatalog(postgres.DB())
	} else {
		memory := catalog.NewMemoryCatalog()
		if cfg.Catalog.SeedFile != "" {
			memory, err = catalog.LoadSeedFile(cfg.Catalog.SeedFile)
			if err != nil {
				logger.Fatal("Failed to load catalog seed", zap.Error(err), zap.String("path", cfg.Catalog.SeedFile))
			}
		}
		logger.Info("Using in-memory catalog", zap.String("seed_file", cfg.Catalog.SeedFile))
		reader = memory
	}

	// Initialize inference
	var inference llm.Inference = llm.NewOpenAIClient(cfg.OpenAI, logger)
	if cfg.Breaker.Enabled {
		inference = llm.NewBreakerInference(inference, cfg.Breaker, logger)
	}

	service := assistant.New(assistant.Stages{
		Classifier: classifier.NewLLMClassifier(inference, classifier.FailurePolicy(cfg.Classifier.FailurePolicy), logger),
		Extractor:  criteria.NewExtractor(inference, logger),
		Ranker:     ranker.New(reader, cfg.Ranker, logger),
		Composer:   composer.New(inference, cfg.Composer, logger),
	}, conversation.NewManager(store, reader, logger), cfg.Assistant, logger)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewRouter(api.NewHandler(service, logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Telegram.Enabled {
		b, err := bot.New(cfg.Telegram.Token, service, store, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		g.Go(func() error {
			return b.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Shut down")
}
