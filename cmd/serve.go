package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/chat-relay/internal/admin"
	"github.com/Vovarama1992/chat-relay/internal/ai"
	"github.com/Vovarama1992/chat-relay/internal/chat"
	"github.com/Vovarama1992/chat-relay/internal/config"
	"github.com/Vovarama1992/chat-relay/internal/sitemap"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat relay, admin API and sitemap",
		PreRunE: func(*cobra.Command, []string) error {
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// --- Store ---
	var store chat.Store
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, conversations are lost on restart")
		store = chat.NewMemStore()
	default:
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		store = chat.NewRepo(db)
	}

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, chat requests will fail")
	}

	handler, err := newRouter(cfg, store)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, store chat.Store) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "apikey", "X-Client-Info"},
		ExposedHeaders: []string{chat.ConversationIDHeader},
	}))

	// --- Chat wiring ---
	aiClient := ai.NewOpenAIClient(ai.Options{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
	})
	chatService := chat.NewService(store, aiClient, cfg.SystemPrompt, cfg.ProviderTimeout)
	chat.RegisterRoutes(r, chat.NewHandler(chatService))

	// --- Back-office ---
	admin.RegisterRoutes(r, admin.NewHandler(store, cfg.AdminToken))

	sitemapHandler, err := sitemap.NewHandler(cfg.SiteURL, sitemap.DefaultPages)
	if err != nil {
		return nil, errors.Wrap(err, "build sitemap")
	}
	sitemap.RegisterRoutes(r, sitemapHandler)

	// --- health & metrics ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r, nil
}
