package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/ai"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/availability"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/calendar"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/channels/telegram"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/channels/whatsapp"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/config"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/database"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/handler"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/jobs"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/middleware"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/quick"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/redis"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/router"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	stateRepo := repository.NewStateRepository(db.DB)
	messageLogRepo := repository.NewMessageLogRepository(db.DB)
	learnedRepo := repository.NewLearnedResponseRepository(db.DB)
	topicRepo := repository.NewTopicMappingRepository(db.DB)

	conversationStore := store.New(stateRepo, cfg.ConversationTTL(), cfg.SweepInterval())
	hydrateCtx, cancelHydrate := context.WithTimeout(context.Background(), 30*time.Second)
	conversationStore.Hydrate(hydrateCtx)
	cancelHydrate()
	conversationStore.Start()
	defer conversationStore.Close()

	quickResponder := quick.New(learnedRepo)

	replyGen, err := ai.NewGenerator(
		context.Background(), cfg.GeminiAPIKey, cfg.GeminiModelID,
		messageLogRepo, cfg.MessageHistoryMaxMessages,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reply generator")
	}
	defer replyGen.Close()

	loc, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.CalendarTimezone).Msg("invalid calendar timezone")
	}

	var calendarSource availability.CalendarSource
	if cfg.CalendarConfigured() {
		calClient, err := calendar.NewClient(
			context.Background(), cfg.CalendarID, cfg.CalendarClientEmail, cfg.CalendarKey(), loc,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize calendar client")
		}
		calendarSource = calClient
		log.Info().Msg("google calendar connected")
	}

	schedule := availability.DefaultSchedule()
	engine := availability.NewEngine(calendarSource, schedule, loc, config.SlotDuration, config.CalendarQueryTimeout)
	availProvider := availability.NewProvider(engine, schedule, cfg.AvailabilityLookaheadDays)

	waClient := whatsapp.NewClient(cfg.WhatsAppAPIToken, cfg.WhatsAppPhoneNumberID)
	tgClient := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramGroupChatID)
	notifier := telegram.NewNotifier(tgClient, topicRepo)

	dialogueRouter := router.New(router.Deps{
		Store:              conversationStore,
		Quick:              quickResponder,
		AI:                 replyGen,
		Avail:              availProvider,
		Sender:             waClient,
		Notifier:           notifier,
		History:            messageLogRepo,
		HandoffWindow:      cfg.HandoffWindow(),
		HandoffWarningLead: cfg.HandoffWarningLead(),
	})
	defer dialogueRouter.Close()
	dialogueRouter.ResumeHandoffs()

	signatureMiddleware := middleware.NewMetaSignatureMiddleware(cfg.WhatsAppAppSecret)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminTokenHash)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(os.Getenv("FLY_APP_NAME") != "")

	whatsappHandler := handler.NewWhatsAppHandler(dialogueRouter, cfg.WhatsAppVerifyToken)
	telegramHandler := handler.NewTelegramHandler(
		dialogueRouter, topicRepo, messageLogRepo, quickResponder, tgClient, cfg.TelegramGroupChatID,
	)
	adminHandler := handler.NewAdminHandler(conversationStore, dialogueRouter, messageLogRepo, topicRepo, learnedRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/webhook/whatsapp", func(r chi.Router) {
		r.Get("/", whatsappHandler.Verify)
		r.With(rateLimitMiddleware.Handler, signatureMiddleware.Handler).Post("/", whatsappHandler.Webhook)
	})

	r.With(rateLimitMiddleware.Handler).Post("/telegram/webhook", telegramHandler.Webhook)

	r.Route("/admin", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)
		r.Use(adminAuthMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(messageLogRepo, cfg.HistoryRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
