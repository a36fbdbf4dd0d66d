package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"inapppay/internal/api"
	"inapppay/internal/config"
	"inapppay/internal/coordinator"
	"inapppay/internal/database"
	"inapppay/internal/middleware"
	"inapppay/internal/models"
	"inapppay/internal/notify"
	"inapppay/internal/payment"
	"inapppay/internal/queue"
	"inapppay/internal/session"
	"inapppay/internal/verification"
	"inapppay/pkg/logging"
)

func newServeCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP harness over a simulated payment queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitConfig(); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			if port != "" {
				config.AppConfig.Port = port
			}
			if err := logging.InitLogging(config.AppConfig.LogLevel, config.AppConfig.LogFormat); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logging.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.AppConfig)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port, overrides PORT")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := database.InitDatabase(cfg); err != nil {
		return err
	}
	defer database.CloseDatabase()
	ledger := database.NewVerificationRepository(database.DB)

	var cache verification.ResponseCache
	if cfg.RedisURL != "" {
		redisCache, err := verification.NewRedisCache(ctx, cfg.RedisURL, cfg.ResponseCacheTTL)
		if err != nil {
			logging.Warnf("Response cache disabled: %v", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	products := &queue.StaticCatalogService{}
	if cfg.CatalogPath != "" {
		loaded, err := queue.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			return err
		}
		products = loaded
	}

	hooks := []coordinator.Hook{ledger}
	var flushers []func()
	flushers = append(flushers, ledger.Flush)
	if cfg.WebhookURL != "" {
		webhook := notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret)
		hooks = append(hooks, webhook)
		flushers = append(flushers, webhook.Flush)
	}
	if cfg.BrevoAPIKey != "" && cfg.AlertEmail != "" {
		alerter := notify.NewBrevoAlerter(notify.AlertConfig{
			APIKey:    cfg.BrevoAPIKey,
			FromEmail: cfg.BrevoFromEmail,
			FromName:  cfg.BrevoFromName,
			To:        cfg.AlertEmail,
		})
		hooks = append(hooks, alerter)
		flushers = append(flushers, alerter.Flush)
	}

	sim := queue.NewSimulator()
	defer sim.Close()

	store := payment.New(payment.Options{
		Queue:    sim,
		Receipts: queue.FileReceiptStore{Path: cfg.ReceiptPath},
		Catalog:  products,
		Verifier: newVerifier(cfg, cache),
		Defaults: session.Settings{
			Environment:  models.EnvironmentFor(cfg.UseSandbox),
			SharedSecret: cfg.SharedSecret,
		},
		RestoreMode: coordinator.RestoreMode(cfg.RestoreMode),
		Hooks:       hooks,
	})
	defer store.Close()

	gin.SetMode(cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	api.SetupRoutes(r, api.NewHandler(store, ledger, cfg.PurchaseWaitTimeout), cfg.APIKey)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logging.Infof("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server shutdown failed: %v", err)
	}
	for _, flush := range flushers {
		flush()
	}
	return nil
}

func newVerifier(cfg *config.Config, cache verification.ResponseCache) *verification.Client {
	return verification.NewClient(verification.Options{
		SandboxURL:    cfg.Verify.SandboxURL,
		ProductionURL: cfg.Verify.ProductionURL,
		Timeout:       cfg.Verify.Timeout,
		MaxAttempts:   cfg.Verify.MaxAttempts,
		Cache:         cache,
	})
}
