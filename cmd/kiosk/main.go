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

	"github.com/stacyai/kiosk-agent-go/internal/broker"
	"github.com/stacyai/kiosk-agent-go/internal/config"
	"github.com/stacyai/kiosk-agent-go/internal/gateway"
	"github.com/stacyai/kiosk-agent-go/internal/handler"
	"github.com/stacyai/kiosk-agent-go/internal/handshake"
	"github.com/stacyai/kiosk-agent-go/internal/jobs"
	"github.com/stacyai/kiosk-agent-go/internal/middleware"
	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
	"github.com/stacyai/kiosk-agent-go/internal/speech"
	"github.com/stacyai/kiosk-agent-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open device store")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.StorePingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping device store")
	}
	if err := store.Seed(ctx, db.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to seed device store")
	}
	cancel()
	log.Info().Str("path", cfg.StorePath).Msg("device store ready")

	deviceRepo := store.NewDeviceSessionRepository(db.DB)
	viewRepo := store.NewViewRepository(db.DB)

	events := broker.NewBroker()
	defer events.Close()

	provisioning := gateway.NewProvisioningClient(cfg.BackendBaseURL)
	queryClient := gateway.NewQueryClient(cfg.BackendBaseURL, cfg.QueryTimeout())

	recognizer, err := speech.NewWSRecognizer(speech.RecognizerConfig{
		URL:      cfg.RecognizerURL,
		Language: cfg.RecognizerLanguage,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure recognizer")
	}
	synth := speech.NewExecSynthesizer(cfg.SynthesizerCommand)

	orch := orchestrator.New(recognizer, synth, queryClient, events)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	handoff := func(user *model.UserProfile, backendSessionID string) {
		sessCtx, sessCancel := context.WithTimeout(rootCtx, config.StorePingTimeout)
		defer sessCancel()

		session, err := deviceRepo.EnsureCurrent(sessCtx)
		if err != nil {
			log.Error().Err(err).Msg("failed to open device session")
			session = &model.Session{ID: backendSessionID, StartedAt: time.Now()}
		}
		session.User = user

		log.Info().
			Str("sessionId", session.ID).
			Str("backendSessionId", backendSessionID).
			Msg("handshake complete, starting conversation")
		orch.BeginSession(session)
	}

	machineFactory := func() *handshake.Machine {
		return handshake.NewMachine(
			provisioning,
			cfg.PollInterval(),
			cfg.HandoffGrace(),
			handoff,
			handshake.WithChangeListener(func(s handshake.Snapshot) {
				events.Publish("handshake", s)
			}),
		)
	}

	conversationHandler := handler.NewConversationHandler(orch)
	handshakeHandler := handler.NewHandshakeHandler(rootCtx, machineFactory)
	eventsHandler := handler.NewEventsHandler(events, orch)
	viewsHandler := handler.NewViewsHandler(viewRepo, orch)
	sessionHandler := handler.NewSessionHandler(orch, deviceRepo, handshakeHandler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.BodyLimit(config.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		// The event stream outlives the request timeout, so it is routed
		// outside the timed group.
		r.Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Mount("/conversation", conversationHandler.Routes())
			r.Mount("/handshake", handshakeHandler.Routes())
			r.Mount("/session", sessionHandler.Routes())

			r.Get("/profile", viewsHandler.GetProfile)
			r.Get("/trips", viewsHandler.GetTrips)
			r.Get("/wishlist", viewsHandler.GetWishlist)
			r.Post("/wishlist", viewsHandler.AddWishlistItem)
			r.Get("/store-map", viewsHandler.GetStoreMap)
			r.Get("/promos", viewsHandler.GetPromos)
		})
	})

	endTrip := func() {
		orch.EndSession()
		handshakeHandler.Reset()

		endCtx, endCancel := context.WithTimeout(rootCtx, config.StorePingTimeout)
		defer endCancel()
		if current, err := deviceRepo.Current(endCtx); err == nil && current != nil {
			if err := deviceRepo.End(endCtx, current.ID); err != nil {
				log.Error().Err(err).Str("sessionId", current.ID).Msg("failed to close device session")
			}
		}
	}

	watchdog := jobs.NewIdleWatchdog(orch, cfg.IdleTimeout(), config.IdleCheckInterval, endTrip)
	watchdog.Start()
	defer watchdog.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting kiosk agent")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down kiosk agent")

	handshakeHandler.Reset()
	orch.EndSession()
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("kiosk agent stopped")
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
