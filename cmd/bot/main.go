package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper-bot/internal/admission"
	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/database"
	"gatekeeper-bot/internal/dedup"
	"gatekeeper-bot/internal/dispatch"
	"gatekeeper-bot/internal/models"
	"gatekeeper-bot/internal/moderation"
	"gatekeeper-bot/internal/queue"
	"gatekeeper-bot/internal/server"
	"gatekeeper-bot/internal/telegram"
	"gatekeeper-bot/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		switch {
		case errors.Is(err, config.ErrEmptyBotToken):
			fmt.Fprintln(os.Stderr, "Error: BOT_TOKEN environment variable is required")
		case errors.Is(err, config.ErrEmptyDBPassword):
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required")
		case errors.Is(err, config.ErrNoChannel):
			fmt.Fprintln(os.Stderr, "Error: BOT_CHANNEL_ID environment variable is required")
		case errors.Is(err, config.ErrNoAdmins):
			fmt.Fprintln(os.Stderr, "Error: BOT_ADMINS environment variable is required")
		default:
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, cfg.App.LogFormat, nil)
	logger.Info("Starting gatekeeper-bot",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to connect to database",
				logger.Err(err),
			)
		}
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database")

	requestRepo := database.NewRequestRepository(db)
	moderationRepo := database.NewModerationRepository(db)
	updateRepo := database.NewUpdateLogRepository(db)

	stopWords, err := moderation.LoadStopWords(cfg.Moderation.StopWordsFile)
	if err != nil {
		logger.Error("Failed to load stop words", logger.Err(err))
		os.Exit(1)
	}
	logger.Info("Stop words loaded",
		logger.String("file", cfg.Moderation.StopWordsFile),
		logger.Int("count", stopWords.Len()),
	)

	client, err := telegram.NewClient(telegram.Settings{Token: cfg.Bot.Token})
	if err != nil {
		logger.Error("Failed to create telegram client", logger.Err(err))
		os.Exit(1)
	}

	if cfg.Bot.WebhookURL != "" {
		if err := client.RegisterWebhook(cfg.Bot.WebhookURL, cfg.Bot.WebhookSecret); err != nil {
			logger.Error("Failed to register webhook", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("Webhook registered", logger.String("url", cfg.Bot.WebhookURL))
	}

	dispatcher := dispatch.New(cfg.Bot, cfg.Moderation, dispatch.Deps{
		Admission:  admission.NewService(requestRepo, client, cfg.Bot),
		Moderation: moderation.New(moderationRepo, client, cfg.Bot, cfg.Moderation, stopWords),
		Gateway:    client,
		Stats:      statsSource{requestRepo, moderationRepo},
		StopWords:  stopWords.Len(),
	})

	var opts []server.Option

	if cfg.NATS.Enabled {
		q, err := queue.New(cfg.NATS)
		if err != nil {
			logger.Error("Failed to connect to NATS", logger.Err(err))
			os.Exit(1)
		}
		defer q.Close()
		logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))

		go func() {
			logger.Info("Starting update archiver...")
			if err := q.ConsumeUpdates(ctx, func(msg *queue.UpdateMessage) error {
				return updateRepo.Save(ctx, &models.RawUpdate{
					UpdateID:   msg.UpdateID,
					Payload:    msg.Payload,
					ReceivedAt: msg.ReceivedAt,
				})
			}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Update archiver error", logger.Err(err))
			}
		}()

		opts = append(opts, server.WithArchiver(q))
	} else {
		opts = append(opts, server.WithArchiver(updateRepo))
	}

	if cfg.Redis.Enabled {
		guard, err := dedup.New(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to redis", logger.Err(err))
			os.Exit(1)
		}
		defer guard.Close()
		logger.Info("Connected to redis", logger.String("addr", cfg.Redis.Addr))

		opts = append(opts, server.WithDeduplicator(guard))
	}

	srv := server.New(cfg.HTTP, cfg.Bot.WebhookSecret, dispatcher, opts...)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("HTTP server error", logger.Err(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", logger.Err(err))
	}

	logger.Info("Bot stopped gracefully")
}

type statsSource struct {
	*database.RequestRepository
	*database.ModerationRepository
}
