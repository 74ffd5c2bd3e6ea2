package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget-tracker-bot/internal/amqp"
	"budget-tracker-bot/internal/api"
	"budget-tracker-bot/internal/config"
	"budget-tracker-bot/internal/database"
	"budget-tracker-bot/internal/handlers"
	"budget-tracker-bot/internal/insights"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Budget tracker stopped with error")
	}
	log.Info().Msg("Budget tracker exited")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	appLog := logger.WithComponent(log, logger.ComponentApp)

	// Initialize record store
	records, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ledgerSvc := ledger.NewService(records,
		ledger.WithLocation(cfg.Location),
		ledger.WithLogger(log))

	insightOpts := []insights.Option{
		insights.WithRetention(cfg.NotificationRetention),
		insights.WithLogger(log),
	}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, log)
		if err != nil {
			appLog.Warn().Err(err).Msg("Failed to initialize AMQP publisher, notifications stay local")
		} else {
			defer publisher.Close()
			insightOpts = append(insightOpts, insights.WithPublisher(publisher))
			appLog.Info().Str("exchange", cfg.AMQPExchange).Msg("AMQP publisher initialized")
		}
	}
	insightSvc := insights.NewService(ledgerSvc, insightOpts...)

	// Set up handlers
	eventHandler := handlers.NewEventHandler(ledgerSvc, insightSvc, cfg, log)

	var bot *tgbotapi.BotAPI
	var sender handlers.Sender
	if cfg.TelegramEnabled() {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		bot.Debug = false
		sender = bot
		appLog.Info().Str("bot", bot.Self.UserName).Msg("Telegram bot started")
	} else {
		appLog.Info().Msg("TELEGRAM_BOT_TOKEN not set, running API only")
	}

	// Scheduled jobs
	scheduler, err := newScheduler(ctx, cfg, eventHandler, sender, log)
	if err != nil {
		return err
	}

	server := api.NewServer(ledgerSvc, insightSvc, log).NewHTTPServer(":" + cfg.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLog.Info().Str("port", cfg.HTTPPort).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	if bot != nil {
		g.Go(func() error {
			return pollUpdates(gctx, bot, eventHandler)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLog.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore builds the configured RecordStore backend.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.RecordStore, func(), error) {
	storeLog := logger.WithComponent(log, logger.ComponentStore)

	switch cfg.StoreBackend {
	case config.BackendMongo:
		mongoStore, err := database.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoCollection, log)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize mongo store: %w", err)
		}
		storeLog.Info().Str("db", cfg.MongoDB).Msg("Using MongoDB record store")
		return mongoStore, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoStore.Close(closeCtx); err != nil {
				storeLog.Error().Err(err).Msg("Failed to close MongoDB")
			}
		}, nil
	case config.BackendSQLite:
		sqliteStore, err := database.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		storeLog.Info().Str("path", cfg.SQLiteDBPath).Msg("Using SQLite record store")
		return sqliteStore, func() {
			if err := sqliteStore.Close(); err != nil {
				storeLog.Error().Err(err).Msg("Failed to close SQLite")
			}
		}, nil
	default:
		storeLog.Warn().Msg("Using in-memory record store, data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}
}

// newScheduler registers the automatic rollover, insight polling and
// pending expense cleanup jobs.
func newScheduler(ctx context.Context, cfg *config.Config, events *handlers.EventHandler, sender handlers.Sender, log zerolog.Logger) (*cron.Cron, error) {
	cronLog := logger.WithComponent(log, logger.ComponentCron)
	c := cron.New(cron.WithLocation(cfg.Location))
	commands := events.Commands()

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"auto rollover", cfg.RolloverSchedule, func() { commands.RunAutoRollover(ctx, sender) }},
		{"insights", cfg.InsightsSchedule, func() { commands.PushInsights(ctx, sender) }},
		{"pending cleanup", "@every 5m", func() {
			if n := events.Pending().CleanExpired(); n > 0 {
				cronLog.Debug().Int("removed", n).Msg("Expired pending expenses removed")
			}
		}},
	}
	for _, job := range jobs {
		if _, err := c.AddFunc(job.spec, func() {
			cronLog.Info().Str("job", job.name).Msg("Running scheduled job")
			job.run()
		}); err != nil {
			return nil, fmt.Errorf("add %s job: %w", job.name, err)
		}
	}
	return c, nil
}

// pollUpdates feeds Telegram updates to the event handler until ctx ends.
func pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, events *handlers.EventHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.Message != nil:
				events.HandleMessage(ctx, bot, update.Message)
			case update.EditedMessage != nil:
				events.HandleMessage(ctx, bot, update.EditedMessage)
			case update.CallbackQuery != nil:
				events.HandleCallbackQuery(ctx, bot, update.CallbackQuery)
			}
		}
	}
}
